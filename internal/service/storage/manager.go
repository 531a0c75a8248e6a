package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"fidera/internal/domain"
)

// Manager даёт единый интерфейс к двум логическим бакетам (staging и secure)
// поверх бэкенда, выбранного при старте процесса.
type Manager struct {
	backend Backend
	buckets map[domain.Bucket]string
}

func NewManager(backend Backend, stagingBucket, secureBucket string) *Manager {
	storageBackendInfo.WithLabelValues(backend.Name()).Set(1)
	return &Manager{
		backend: backend,
		buckets: map[domain.Bucket]string{
			domain.BucketStaging: stagingBucket,
			domain.BucketSecure:  secureBucket,
		},
	}
}

// BackendName возвращает имя активного бэкенда
func (m *Manager) BackendName() string {
	return m.backend.Name()
}

// EnsureBuckets создаёт оба физических бакета, если их нет
func (m *Manager) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []domain.Bucket{domain.BucketStaging, domain.BucketSecure} {
		if err := m.backend.EnsureBucket(ctx, m.buckets[bucket]); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) physical(bucket domain.Bucket) (string, error) {
	name, ok := m.buckets[bucket]
	if !ok {
		return "", fmt.Errorf("%w: unknown bucket %q", domain.ErrInvalidArgument, bucket)
	}
	return name, nil
}

// Put загружает объект и возвращает его локатор. Перезапись существующего ключа допустима.
func (m *Manager) Put(ctx context.Context, bucket domain.Bucket, key string, body io.ReadSeeker, size int64, contentType string) (string, error) {
	name, err := m.physical(bucket)
	if err != nil {
		return "", err
	}
	err = m.backend.Put(ctx, name, key, body, size, contentType)
	observe(m.backend.Name(), "put", err)
	if err != nil {
		return "", err
	}

	log.Debug().Str("bucket", string(bucket)).Str("key", key).Int64("size", size).Msg("object stored")
	return domain.FormatLocator(bucket, key), nil
}

// PutFile загружает локальный файл, возвращает локатор и размер
func (m *Manager) PutFile(ctx context.Context, bucket domain.Bucket, key, localPath, contentType string) (string, int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", 0, fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	locator, err := m.Put(ctx, bucket, key, f, info.Size(), contentType)
	if err != nil {
		return "", 0, err
	}
	return locator, info.Size(), nil
}

// FetchToLocal материализует объект в локальный файл для внешних утилит.
// При ошибке частично записанный файл удаляется.
func (m *Manager) FetchToLocal(ctx context.Context, bucket domain.Bucket, key, localPath string) (err error) {
	body, _, err := m.OpenStream(ctx, bucket, key)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o750); err != nil {
		return fmt.Errorf("failed to create dir for %s: %w", localPath, err)
	}
	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", localPath, err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close %s: %w", localPath, cerr)
		}
		if err != nil {
			os.Remove(localPath)
		}
	}()

	if _, err = io.Copy(out, body); err != nil {
		return fmt.Errorf("%w: failed to download %s/%s: %v", domain.ErrStorageUnavailable, bucket, key, err)
	}
	return nil
}

// OpenStream отдаёт поток объекта без буферизации целиком
func (m *Manager) OpenStream(ctx context.Context, bucket domain.Bucket, key string) (io.ReadCloser, int64, error) {
	name, err := m.physical(bucket)
	if err != nil {
		return nil, 0, err
	}
	body, size, err := m.backend.Get(ctx, name, key)
	if errors.Is(err, domain.ErrObjectNotFound) {
		observe(m.backend.Name(), "get", nil)
	} else {
		observe(m.backend.Name(), "get", err)
	}
	return body, size, err
}

// Delete идемпотентен: удаление отсутствующего ключа успешно
func (m *Manager) Delete(ctx context.Context, bucket domain.Bucket, key string) error {
	name, err := m.physical(bucket)
	if err != nil {
		return err
	}
	err = m.backend.Delete(ctx, name, key)
	if errors.Is(err, domain.ErrObjectNotFound) {
		err = nil
	}
	observe(m.backend.Name(), "delete", err)
	return err
}

// Move делает put в dst и затем delete в src. Операция не атомарна: после сбоя между шагами
// объект лежит в обоих бакетах, повтор с тем же dstKey перезапишет копию.
func (m *Manager) Move(ctx context.Context, srcBucket domain.Bucket, srcKey string, dstBucket domain.Bucket, dstKey, contentType string) (string, error) {
	tmp, err := os.CreateTemp("", "fidera-move-*")
	if err != nil {
		return "", fmt.Errorf("failed to create scratch file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := m.FetchToLocal(ctx, srcBucket, srcKey, tmpPath); err != nil {
		return "", err
	}
	locator, _, err := m.PutFile(ctx, dstBucket, dstKey, tmpPath, contentType)
	if err != nil {
		return "", err
	}
	if err := m.Delete(ctx, srcBucket, srcKey); err != nil {
		return "", err
	}
	return locator, nil
}

// DeleteLocator удаляет объект по локатору. Локатор purged считается уже удалённым.
func (m *Manager) DeleteLocator(ctx context.Context, locator string) error {
	if locator == domain.PurgedLocator {
		return nil
	}
	bucket, key, err := domain.ParseLocator(locator)
	if err != nil {
		return err
	}
	return m.Delete(ctx, bucket, key)
}

// OpenLocator открывает поток объекта по локатору
func (m *Manager) OpenLocator(ctx context.Context, locator string) (io.ReadCloser, int64, error) {
	bucket, key, err := domain.ParseLocator(locator)
	if err != nil {
		return nil, 0, err
	}
	return m.OpenStream(ctx, bucket, key)
}
