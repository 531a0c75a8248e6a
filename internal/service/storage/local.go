package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"

	"fidera/internal/domain"
)

// LocalBackend хранит объекты в дереве <base>/<bucket>/<key>
type LocalBackend struct {
	fs afero.Fs
}

// NewLocalBackend создаёт локальное хранилище поверх произвольной afero.Fs
func NewLocalBackend(fs afero.Fs) *LocalBackend {
	return &LocalBackend{fs: fs}
}

// NewLocalBackendDir создаёт локальное хранилище в каталоге baseDir
func NewLocalBackendDir(baseDir string) (*LocalBackend, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage dir %s: %w", baseDir, err)
	}
	return NewLocalBackend(afero.NewBasePathFs(afero.NewOsFs(), baseDir)), nil
}

func (b *LocalBackend) Name() string {
	return "local"
}

func (b *LocalBackend) EnsureBucket(_ context.Context, bucket string) error {
	if err := b.fs.MkdirAll(bucket, 0o750); err != nil {
		return fmt.Errorf("%w: failed to create bucket dir %s: %v", domain.ErrStorageUnavailable, bucket, err)
	}
	return nil
}

// Put пишет во временный файл и переименовывает его, читатели не видят частичных объектов
func (b *LocalBackend) Put(_ context.Context, bucket, key string, body io.ReadSeeker, _ int64, _ string) error {
	target, err := objectPath(bucket, key)
	if err != nil {
		return err
	}
	dir := path.Dir(target)
	if err := b.fs.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("%w: failed to create dir %s: %v", domain.ErrStorageUnavailable, dir, err)
	}

	tmp, err := afero.TempFile(b.fs, dir, ".put-*")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file: %v", domain.ErrStorageUnavailable, err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		b.fs.Remove(tmpName)
		return fmt.Errorf("%w: failed to write %s: %v", domain.ErrStorageUnavailable, target, err)
	}
	if err := tmp.Close(); err != nil {
		b.fs.Remove(tmpName)
		return fmt.Errorf("%w: failed to close %s: %v", domain.ErrStorageUnavailable, target, err)
	}
	if err := b.fs.Rename(tmpName, target); err != nil {
		b.fs.Remove(tmpName)
		return fmt.Errorf("%w: failed to commit %s: %v", domain.ErrStorageUnavailable, target, err)
	}
	return nil
}

func (b *LocalBackend) Get(_ context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	target, err := objectPath(bucket, key)
	if err != nil {
		return nil, 0, err
	}

	f, err := b.fs.Open(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: %s/%s", domain.ErrObjectNotFound, bucket, key)
		}
		return nil, 0, fmt.Errorf("%w: failed to open %s: %v", domain.ErrStorageUnavailable, target, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("%w: failed to stat %s: %v", domain.ErrStorageUnavailable, target, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, fmt.Errorf("%w: %s/%s", domain.ErrObjectNotFound, bucket, key)
	}
	return f, info.Size(), nil
}

func (b *LocalBackend) Delete(_ context.Context, bucket, key string) error {
	target, err := objectPath(bucket, key)
	if err != nil {
		return err
	}
	if err := b.fs.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: failed to delete %s: %v", domain.ErrStorageUnavailable, target, err)
	}
	return nil
}

// objectPath не даёт ключу выйти за пределы каталога бакета
func objectPath(bucket, key string) (string, error) {
	if bucket == "" || key == "" {
		return "", fmt.Errorf("%w: bucket and key are required", domain.ErrInvalidArgument)
	}
	clean := path.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: invalid object key %q", domain.ErrInvalidArgument, key)
	}
	return path.Join(bucket, clean), nil
}
