package storage

import (
	"context"
	"io"
)

// Backend представляет физическое хранилище объектов: S3-совместимое или локальная ФС.
// Delete обязан быть идемпотентным, Get отсутствующего ключа возвращает domain.ErrObjectNotFound.
type Backend interface {
	Name() string
	EnsureBucket(ctx context.Context, bucket string) error
	Put(ctx context.Context, bucket, key string, body io.ReadSeeker, size int64, contentType string) error
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error)
	Delete(ctx context.Context, bucket, key string) error
}
