package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FileStatus описывает стадию жизненного цикла файла
type FileStatus string

const (
	StatusStaging FileStatus = "staging" // загружен, ещё не подтверждён
	StatusStored  FileStatus = "stored"  // очищен и лежит в secure бакете
	StatusExpired FileStatus = "expired" // срок хранения истёк, данные удалены
)

// AnonymousOwner записывается владельцем файлов, загруженных без аутентификации.
// Такие файлы доступны по id, но не попадают в списки владельцев.
const AnonymousOwner = "anonymous"

type File struct {
	UUID             uuid.UUID  `json:"uuid" db:"uuid"`
	OwnerID          string     `json:"owner_id" db:"owner_id"`
	Name             string     `json:"name" db:"name"`
	MIMEType         string     `json:"mime_type" db:"mime_type"`
	SizeBytes        int64      `json:"size_bytes" db:"size_bytes"`
	StorageLocator   string     `json:"-" db:"storage_locator"`
	Status           FileStatus `json:"status" db:"status"`
	IsSanitized      bool       `json:"is_sanitized" db:"is_sanitized"`
	SanitizeMethod   string     `json:"sanitize_method,omitempty" db:"sanitize_method"`
	MetadataSnapshot Metadata   `json:"-" db:"metadata_snapshot"`
	ExpiryHours      *int       `json:"expiry_hours,omitempty" db:"expiry_hours"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// StoredUpdate содержит изменения, которые фиксируются при подтверждении файла
type StoredUpdate struct {
	StorageLocator string
	IsSanitized    bool
	SanitizeMethod string
	SizeBytes      int64
	ExpiryHours    int
	ExpiresAt      time.Time
}

// IsAnonymous сообщает, загружен ли файл без владельца
func (f *File) IsAnonymous() bool {
	return f.OwnerID == AnonymousOwner
}

// IsGone сообщает, что файл логически удалён на момент now:
// либо уже помечен expired, либо срок хранения прошёл, но сборщик ещё не дошёл до него.
func (f *File) IsGone(now time.Time) bool {
	if f.Status == StatusExpired {
		return true
	}
	return f.ExpiresAt != nil && !now.Before(*f.ExpiresAt)
}

// Validate проверяет инварианты состояния файла
func (f *File) Validate() error {
	switch f.Status {
	case StatusStaging:
		if f.ExpiresAt != nil {
			return fmt.Errorf("staging file %s has expires_at set", f.UUID)
		}
		if f.IsSanitized {
			return fmt.Errorf("staging file %s is marked sanitized", f.UUID)
		}
		if !LocatorInBucket(f.StorageLocator, BucketStaging) {
			return fmt.Errorf("staging file %s locator %q is outside the staging bucket", f.UUID, f.StorageLocator)
		}
	case StatusStored:
		if f.ExpiresAt == nil {
			return fmt.Errorf("stored file %s has no expires_at", f.UUID)
		}
		if !LocatorInBucket(f.StorageLocator, BucketSecure) {
			return fmt.Errorf("stored file %s locator %q is outside the secure bucket", f.UUID, f.StorageLocator)
		}
	case StatusExpired:
		if f.StorageLocator != PurgedLocator {
			return fmt.Errorf("expired file %s still references %q", f.UUID, f.StorageLocator)
		}
		if !f.MetadataSnapshot.IsTombstone() {
			return fmt.Errorf("expired file %s metadata snapshot is not scrubbed", f.UUID)
		}
	default:
		return fmt.Errorf("file %s has unknown status %q", f.UUID, f.Status)
	}
	return nil
}

// SweepCursor указывает на последнюю просмотренную запись в выборке просроченных файлов.
// Порядок выборки: (expires_at, uuid).
type SweepCursor struct {
	ExpiresAt time.Time
	UUID      uuid.UUID
}

// StageResult возвращается загрузившему до подтверждения
type StageResult struct {
	File         *File    `json:"file"`
	RawMetadata  Metadata `json:"metadata_raw"`
	CleanPreview Metadata `json:"metadata_preview_clean"`
}
