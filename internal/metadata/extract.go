package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"fidera/internal/domain"
)

// Engine извлекает встроенные метаданные.
// Порядок: exiftool, затем нативный разбор по типу файла, затем минимальный набор полей.
type Engine struct {
	tools   Tools
	formats map[string]format
}

func NewEngine(tools Tools) *Engine {
	return &Engine{tools: tools, formats: formatsFor(tools)}
}

// Extract никогда не возвращает ошибку: при любом сбое результат деградирует
// до минимального набора, в ExtractionMethod записан способ получения.
func (e *Engine) Extract(ctx context.Context, path string) domain.Metadata {
	logger := log.With().Str("component", "extractor").Str("file", filepath.Base(path)).Logger()

	if available(e.tools.Exiftool) {
		meta, err := e.exiftool(ctx, path)
		if err == nil {
			meta[domain.KeyExtractionMethod] = MethodExiftool
			return meta
		}
		logger.Warn().Err(err).Msg("exiftool extraction failed, using native extractor")
	}

	kind := kindOf(path)
	f, ok := e.formats[kind]
	if !ok {
		logger.Info().Err(domain.ErrExtractionDegraded).Msg("no extractor for file type")
		return minimal(path)
	}

	meta, err := f.extract(ctx, path)
	if err != nil {
		logger.Warn().Err(err).Str("method", nativePrefix+f.name()).Msg("native extraction failed")
		out := minimal(path)
		out[domain.KeyExtractionError] = err.Error()
		return out
	}

	meta[domain.KeyExtractionMethod] = nativePrefix + f.name()
	if _, ok := meta[domain.KeyFileSize]; !ok {
		meta[domain.KeyFileSize] = fileSize(path)
	}
	meta["FileName"] = filepath.Base(path)
	if _, ok := meta["MIMEType"]; !ok {
		meta["MIMEType"] = DetectContentType(path)
	}
	return meta
}

// IsDegraded сообщает, что ни один структурный экстрактор не сработал
func IsDegraded(meta domain.Metadata) bool {
	return meta[domain.KeyExtractionMethod] == MethodNone
}

func minimal(path string) domain.Metadata {
	return domain.Metadata{
		domain.KeyFileSize:         fileSize(path),
		domain.KeyExtractionMethod: MethodNone,
	}
}

func fileSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "unknown"
	}
	return humanize.Bytes(uint64(info.Size()))
}

// exiftool -j печатает массив из одного объекта; значения приводятся к строкам как есть
func (e *Engine) exiftool(ctx context.Context, path string) (domain.Metadata, error) {
	out, err := e.tools.run(ctx, e.tools.Exiftool, "-j", path)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(out)))
	dec.UseNumber()
	var records []map[string]interface{}
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to parse exiftool output: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("exiftool returned no records")
	}

	meta := make(domain.Metadata, len(records[0]))
	for key, value := range records[0] {
		meta[key] = stringify(value)
	}
	return meta, nil
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return ""
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}

// put записывает непустое значение как строку
func put(meta domain.Metadata, key string, value interface{}) {
	s := fmt.Sprint(value)
	if s == "" || s == "0" {
		return
	}
	meta[key] = s
}
