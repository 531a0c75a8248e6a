package service

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"fidera/internal/config"
	"fidera/internal/domain"
	"fidera/internal/metadata"
	"fidera/internal/repository"
	"fidera/internal/service/storage"
)

var noTools = metadata.Tools{
	Exiftool: "fidera-test-missing-exiftool",
	FFprobe:  "fidera-test-missing-ffprobe",
	FFmpeg:   "fidera-test-missing-ffmpeg",
}

// recordingIndexer запоминает вызовы и может падать по требованию
type recordingIndexer struct {
	mu      sync.Mutex
	indexed []uuid.UUID
	dropped []uuid.UUID
	fail    bool
}

func (r *recordingIndexer) Index(_ context.Context, id uuid.UUID, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexed = append(r.indexed, id)
	if r.fail {
		return errors.New("indexer unavailable")
	}
	return nil
}

func (r *recordingIndexer) DropIndex(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped = append(r.dropped, id)
	if r.fail {
		return errors.New("indexer unavailable")
	}
	return nil
}

func (r *recordingIndexer) Indexed() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uuid.UUID(nil), r.indexed...)
}

func (r *recordingIndexer) Dropped() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uuid.UUID(nil), r.dropped...)
}

// failingCreateRepo имитирует сбой базы при создании записи
type failingCreateRepo struct {
	*repository.FileRepository
}

func (failingCreateRepo) Create(context.Context, *domain.File) error {
	return errors.New("database is down")
}

// flakyStorage не может удалить объект по одному локатору
type flakyStorage struct {
	*storage.Manager
	failLocator string
}

func (f *flakyStorage) DeleteLocator(ctx context.Context, locator string) error {
	if locator == f.failLocator {
		return fmt.Errorf("%w: simulated outage", domain.ErrStorageUnavailable)
	}
	return f.Manager.DeleteLocator(ctx, locator)
}

type fixture struct {
	repo    *repository.FileRepository
	storage *storage.Manager
	indexer *recordingIndexer
	files   *FileService
	expiry  *ExpiryService
	scratch string
	clock   time.Time
	clockMu sync.Mutex
}

func (f *fixture) now() time.Time {
	f.clockMu.Lock()
	defer f.clockMu.Unlock()
	return f.clock
}

func (f *fixture) advance(d time.Duration) {
	f.clockMu.Lock()
	defer f.clockMu.Unlock()
	f.clock = f.clock.Add(d)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dbCfg := config.DatabaseConfig{Driver: config.DriverSQLite, Path: filepath.Join(t.TempDir(), "fidera.db")}
	require.NoError(t, repository.RunMigrations(dbCfg))
	db, err := repository.Connect(dbCfg, 1, 0)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	fx := &fixture{
		repo:    repository.NewFileRepository(db),
		storage: storage.NewManager(storage.NewLocalBackend(afero.NewMemMapFs()), "staging-test", "secure-test"),
		indexer: &recordingIndexer{},
		scratch: t.TempDir(),
		clock:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, fx.storage.EnsureBuckets(context.Background()))

	fx.files, err = NewFileService(
		fx.repo,
		fx.storage,
		metadata.NewEngine(noTools),
		metadata.NewSanitizer(noTools),
		fx.indexer,
		FileServiceConfig{ScratchDir: fx.scratch, DefaultExpiryHours: 24, MaxExpiryHours: 72},
	)
	require.NoError(t, err)
	fx.files.now = fx.now

	fx.expiry = NewExpiryService(fx.repo, fx.storage, fx.indexer, 10*time.Millisecond, 2)
	fx.expiry.now = fx.now
	return fx
}

func docxBytes(t *testing.T, author string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	parts := map[string]string{
		"word/document.xml": `<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body/></w:document>`,
		"docProps/core.xml": `<?xml version="1.0" encoding="UTF-8"?><cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:creator>` + author + `</dc:creator></cp:coreProperties>`,
	}
	for name, body := range parts {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func (f *fixture) stage(t *testing.T, name string, body []byte, owner string) *domain.StageResult {
	t.Helper()
	res, err := f.files.Stage(context.Background(), StageInput{
		Body:     bytes.NewReader(body),
		Filename: name,
		OwnerID:  owner,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) objectExists(t *testing.T, locator string) bool {
	t.Helper()
	rc, _, err := f.storage.OpenLocator(context.Background(), locator)
	if errors.Is(err, domain.ErrObjectNotFound) {
		return false
	}
	require.NoError(t, err)
	rc.Close()
	return true
}
