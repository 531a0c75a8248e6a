package service

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"fidera/internal/domain"
	"fidera/internal/metadata"
)

// FileRepository хранит записи File
type FileRepository interface {
	Create(ctx context.Context, file *domain.File) error
	GetByUUID(ctx context.Context, id uuid.UUID) (*domain.File, error)
	MarkStored(ctx context.Context, id uuid.UUID, upd domain.StoredUpdate, now time.Time) error
	ListByOwner(ctx context.Context, ownerID string, now time.Time) ([]domain.File, error)
}

// ExpiryRepository выбирает и пакетно помечает просроченные файлы
type ExpiryRepository interface {
	ListExpired(ctx context.Context, now time.Time, after *domain.SweepCursor, limit int) ([]domain.File, error)
	MarkExpired(ctx context.Context, ids []uuid.UUID, now time.Time) (int64, error)
}

// ObjectStorage предоставляет два логических бакета поверх выбранного бэкенда
type ObjectStorage interface {
	PutFile(ctx context.Context, bucket domain.Bucket, key, localPath, contentType string) (string, int64, error)
	FetchToLocal(ctx context.Context, bucket domain.Bucket, key, localPath string) error
	OpenLocator(ctx context.Context, locator string) (io.ReadCloser, int64, error)
	Delete(ctx context.Context, bucket domain.Bucket, key string) error
	DeleteLocator(ctx context.Context, locator string) error
}

type Extractor interface {
	Extract(ctx context.Context, path string) domain.Metadata
}

type Sanitizer interface {
	Sanitize(ctx context.Context, in, out string) (metadata.Outcome, error)
}

// Indexer представляет внешний сервис поиска. Ошибки только логируются.
type Indexer interface {
	Index(ctx context.Context, id uuid.UUID, locator string) error
	DropIndex(ctx context.Context, id uuid.UUID) error
}
