package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Metadata хранит плоский набор полей метаданных, значения приведены к строкам
type Metadata map[string]string

// Ключи, которые проставляет сам пайплайн
const (
	KeyExtractionMethod = "ExtractionMethod"
	KeyExtractionError  = "ExtractionError"
	KeyFileSize         = "FileSize"
	KeyNote             = "_NOTE"
	KeyPurged           = "_purged"
)

// TombstoneValue задаёт значение снимка метаданных после удаления файла
const TombstoneValue = "ZeroHold Enforcement"

// Tombstone возвращает снимок, которым затирается metadata_snapshot
func Tombstone() Metadata {
	return Metadata{KeyPurged: TombstoneValue}
}

// IsTombstone сообщает, что снимок уже затёрт
func (m Metadata) IsTombstone() bool {
	return len(m) == 1 && m[KeyPurged] == TombstoneValue
}

// Value сохраняет метаданные как JSON-строку (jsonb в postgres, text в sqlite).
// Строка, а не []byte: lib/pq отправляет []byte как bytea.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(data), nil
}

// Scan читает JSON из базы
func (m *Metadata) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata column type %T", src)
	}

	out := Metadata{}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	*m = out
	return nil
}
