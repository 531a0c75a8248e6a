package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fidera/internal/domain"
	"fidera/internal/metadata"
	"fidera/internal/repository"
)

func TestStageThenConfirm(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	staged := fx.stage(t, "report.docx", docxBytes(t, "Alice Example"), "alice")
	file := staged.File

	assert.Equal(t, domain.StatusStaging, file.Status)
	assert.Nil(t, file.ExpiresAt)
	assert.False(t, file.IsSanitized)
	assert.Equal(t, "alice", file.OwnerID)
	assert.Equal(t, "Alice Example", staged.RawMetadata["Creator"])
	assert.NotContains(t, staged.CleanPreview, "Creator")
	assert.Equal(t, metadata.PreviewNote, staged.CleanPreview[domain.KeyNote])
	assert.NotEmpty(t, file.MIMEType)
	require.NoError(t, file.Validate())
	assert.True(t, fx.objectExists(t, file.StorageLocator))

	stored, err := fx.files.Confirm(ctx, file.UUID, "alice", 1)
	require.NoError(t, err)
	fx.files.WaitIndexing()

	assert.Equal(t, domain.StatusStored, stored.Status)
	assert.True(t, stored.IsSanitized)
	assert.Equal(t, "native:docx", stored.SanitizeMethod)
	require.NotNil(t, stored.ExpiresAt)
	assert.WithinDuration(t, fx.now().Add(time.Hour), *stored.ExpiresAt, time.Second)
	assert.Equal(t, []uuid.UUID{file.UUID}, fx.indexer.Indexed())

	persisted, err := fx.repo.GetByUUID(ctx, file.UUID)
	require.NoError(t, err)
	require.NoError(t, persisted.Validate())
	assert.Equal(t, stored.StorageLocator, persisted.StorageLocator)
	assert.Equal(t, stored.SizeBytes, persisted.SizeBytes)

	assert.False(t, fx.objectExists(t, file.StorageLocator), "staging object must be removed")
	assert.True(t, fx.objectExists(t, persisted.StorageLocator))

	// очищенная копия больше не содержит автора
	_, body, _, err := fx.files.OpenContent(ctx, file.UUID, "alice")
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	body.Close()
	require.NoError(t, err)
	assert.False(t, bytes.Contains(data, []byte("Alice Example")))

	entries, err := os.ReadDir(fx.scratch)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch files must be cleaned up")
}

func TestConfirm_TwiceFailsWithInvalidState(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	staged := fx.stage(t, "report.docx", docxBytes(t, "Alice"), "alice")
	first, err := fx.files.Confirm(ctx, staged.File.UUID, "alice", 2)
	require.NoError(t, err)

	_, err = fx.files.Confirm(ctx, staged.File.UUID, "alice", 5)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	persisted, err := fx.repo.GetByUUID(ctx, staged.File.UUID)
	require.NoError(t, err)
	assert.True(t, persisted.ExpiresAt.Equal(*first.ExpiresAt))
	assert.Equal(t, 2, *persisted.ExpiryHours)
	fx.files.WaitIndexing()
}

func TestConfirm_DegradedSanitizationIsNotMarkedSanitized(t *testing.T) {
	fx := newFixture(t)

	staged := fx.stage(t, "notes.xyz", []byte("opaque payload"), "alice")
	assert.True(t, metadata.IsDegraded(staged.RawMetadata))

	stored, err := fx.files.Confirm(context.Background(), staged.File.UUID, "alice", 0)
	require.NoError(t, err)
	fx.files.WaitIndexing()

	assert.Equal(t, domain.StatusStored, stored.Status)
	assert.False(t, stored.IsSanitized)
	assert.Equal(t, metadata.MethodCopy, stored.SanitizeMethod)
	assert.Equal(t, 24, *stored.ExpiryHours, "zero falls back to the default")

	persisted, err := fx.repo.GetByUUID(context.Background(), staged.File.UUID)
	require.NoError(t, err)
	assert.False(t, persisted.IsSanitized)
}

func TestConfirm_ExpiryHoursValidation(t *testing.T) {
	fx := newFixture(t)
	staged := fx.stage(t, "a.xyz", []byte("x"), "alice")

	for _, hours := range []int{-1, 73} {
		_, err := fx.files.Confirm(context.Background(), staged.File.UUID, "alice", hours)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	}

	persisted, err := fx.repo.GetByUUID(context.Background(), staged.File.UUID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStaging, persisted.Status)
}

func TestConfirm_OtherOwnerIsForbidden(t *testing.T) {
	fx := newFixture(t)
	staged := fx.stage(t, "a.xyz", []byte("x"), "alice")

	_, err := fx.files.Confirm(context.Background(), staged.File.UUID, "mallory", 1)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = fx.files.GetMetadata(context.Background(), staged.File.UUID, "")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestConfirm_MissingFile(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.files.Confirm(context.Background(), uuid.New(), "alice", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConfirm_MissingStagedObjectLeavesStaging(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	staged := fx.stage(t, "a.xyz", []byte("x"), "alice")
	require.NoError(t, fx.storage.DeleteLocator(ctx, staged.File.StorageLocator))

	_, err := fx.files.Confirm(ctx, staged.File.UUID, "alice", 1)
	assert.ErrorIs(t, err, domain.ErrObjectNotFound)

	persisted, err := fx.repo.GetByUUID(ctx, staged.File.UUID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStaging, persisted.Status)
}

// commitFailingRepo теряет фиксацию STORED заданное число раз
type commitFailingRepo struct {
	*repository.FileRepository
	failures int
}

func (r *commitFailingRepo) MarkStored(ctx context.Context, id uuid.UUID, upd domain.StoredUpdate, now time.Time) error {
	if r.failures > 0 {
		r.failures--
		return fmt.Errorf("failed to mark file stored: %w", context.DeadlineExceeded)
	}
	return r.FileRepository.MarkStored(ctx, id, upd, now)
}

// staleReadRepo один раз отдаёт снимок записи, сделанный до чужого подтверждения
type staleReadRepo struct {
	*repository.FileRepository
	stale *domain.File
}

func (r *staleReadRepo) GetByUUID(ctx context.Context, id uuid.UUID) (*domain.File, error) {
	if r.stale != nil {
		file := r.stale
		r.stale = nil
		return file, nil
	}
	return r.FileRepository.GetByUUID(ctx, id)
}

func newServiceWithRepo(t *testing.T, fx *fixture, repo FileRepository) *FileService {
	t.Helper()
	svc, err := NewFileService(
		repo,
		fx.storage,
		metadata.NewEngine(noTools),
		metadata.NewSanitizer(noTools),
		fx.indexer,
		FileServiceConfig{ScratchDir: fx.scratch, DefaultExpiryHours: 24, MaxExpiryHours: 72},
	)
	require.NoError(t, err)
	svc.now = fx.now
	return svc
}

func TestConfirm_RetryAfterFailedCommitResumesFromSecureCopy(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	repo := &commitFailingRepo{FileRepository: fx.repo, failures: 1}
	svc := newServiceWithRepo(t, fx, repo)

	staged := fx.stage(t, "report.docx", docxBytes(t, "Alice Example"), "alice")
	secureLocator := domain.FormatLocator(domain.BucketSecure, domain.SecureKey(staged.File.UUID.String()))

	_, err := svc.Confirm(ctx, staged.File.UUID, "alice", 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	persisted, err := fx.repo.GetByUUID(ctx, staged.File.UUID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStaging, persisted.Status)
	assert.False(t, fx.objectExists(t, staged.File.StorageLocator))
	assert.True(t, fx.objectExists(t, secureLocator))

	stored, err := svc.Confirm(ctx, staged.File.UUID, "alice", 1)
	require.NoError(t, err)
	svc.WaitIndexing()

	assert.Equal(t, domain.StatusStored, stored.Status)
	assert.Equal(t, secureLocator, stored.StorageLocator)
	assert.True(t, stored.IsSanitized)

	persisted, err = fx.repo.GetByUUID(ctx, staged.File.UUID)
	require.NoError(t, err)
	require.NoError(t, persisted.Validate())
	assert.Equal(t, domain.StatusStored, persisted.Status)

	// после фиксации secure-копию найдёт сборщик
	fx.advance(2 * time.Hour)
	res, err := fx.expiry.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Purged)
	assert.False(t, fx.objectExists(t, secureLocator))
}

func TestConfirm_LosingConcurrentConfirmIsInvalidState(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	staged := fx.stage(t, "a.xyz", []byte("x"), "alice")
	snapshot, err := fx.repo.GetByUUID(ctx, staged.File.UUID)
	require.NoError(t, err)

	_, err = fx.files.Confirm(ctx, staged.File.UUID, "alice", 1)
	require.NoError(t, err)
	fx.files.WaitIndexing()

	loser := newServiceWithRepo(t, fx, &staleReadRepo{FileRepository: fx.repo, stale: snapshot})
	_, err = loser.Confirm(ctx, staged.File.UUID, "alice", 1)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.NotErrorIs(t, err, domain.ErrObjectNotFound)
}

func TestConfirm_IndexingFailureKeepsStored(t *testing.T) {
	fx := newFixture(t)
	fx.indexer.fail = true
	staged := fx.stage(t, "a.xyz", []byte("x"), "alice")

	stored, err := fx.files.Confirm(context.Background(), staged.File.UUID, "alice", 1)
	require.NoError(t, err)
	fx.files.WaitIndexing()

	assert.Equal(t, domain.StatusStored, stored.Status)
	assert.Len(t, fx.indexer.Indexed(), 1)
}

func TestStage_AnonymousOwner(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	staged := fx.stage(t, "../../etc/passwd", []byte("x"), "")

	assert.Equal(t, domain.AnonymousOwner, staged.File.OwnerID)
	assert.Equal(t, "passwd", staged.File.Name)

	// анонимный файл доступен по id, но не попадает в списки
	_, err := fx.files.GetFile(ctx, staged.File.UUID, "")
	require.NoError(t, err)
	_, err = fx.files.Confirm(ctx, staged.File.UUID, "", 1)
	require.NoError(t, err)
	fx.files.WaitIndexing()

	_, err = fx.files.ListByOwner(ctx, "")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = fx.files.ListByOwner(ctx, domain.AnonymousOwner)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestStage_DatabaseFailureRemovesStagingObject(t *testing.T) {
	fx := newFixture(t)
	svc, err := NewFileService(
		failingCreateRepo{fx.repo},
		fx.storage,
		metadata.NewEngine(noTools),
		metadata.NewSanitizer(noTools),
		fx.indexer,
		FileServiceConfig{ScratchDir: fx.scratch, DefaultExpiryHours: 1, MaxExpiryHours: 2},
	)
	require.NoError(t, err)

	_, err = svc.Stage(context.Background(), StageInput{Body: bytes.NewReader([]byte("x")), Filename: "a.txt"})
	require.Error(t, err)

	entries, err := os.ReadDir(fx.scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)

	files, err := fx.repo.ListByOwner(context.Background(), domain.AnonymousOwner, fx.now())
	require.NoError(t, err)
	assert.Empty(t, files, "no partial record")
}

func TestStage_NilBody(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.files.Stage(context.Background(), StageInput{Filename: "a"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestRead_ExpiredBeforeSweepIsNotFound(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	staged := fx.stage(t, "a.xyz", []byte("secret"), "alice")
	_, err := fx.files.Confirm(ctx, staged.File.UUID, "alice", 1)
	require.NoError(t, err)
	fx.files.WaitIndexing()

	_, err = fx.files.GetFile(ctx, staged.File.UUID, "alice")
	require.NoError(t, err)

	fx.advance(time.Hour)

	_, err = fx.files.GetFile(ctx, staged.File.UUID, "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = fx.files.GetMetadata(ctx, staged.File.UUID, "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, _, _, err = fx.files.OpenContent(ctx, staged.File.UUID, "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	files, err := fx.files.ListByOwner(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, files)

	persisted, err := fx.repo.GetByUUID(ctx, staged.File.UUID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStored, persisted.Status, "logical expiry precedes the sweep")
}

func TestOpenContent_StagingIsNotServed(t *testing.T) {
	fx := newFixture(t)
	staged := fx.stage(t, "a.xyz", []byte("raw"), "alice")

	_, _, _, err := fx.files.OpenContent(context.Background(), staged.File.UUID, "alice")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestListByOwner(t *testing.T) {
	fx := newFixture(t)
	fx.stage(t, "a.xyz", []byte("a"), "alice")
	fx.advance(time.Second)
	fx.stage(t, "b.xyz", []byte("b"), "alice")
	fx.stage(t, "c.xyz", []byte("c"), "bob")

	files, err := fx.files.ListByOwner(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "b.xyz", files[0].Name)
	assert.Equal(t, "a.xyz", files[1].Name)
}

func TestNewFileService_InvalidPolicy(t *testing.T) {
	_, err := NewFileService(nil, nil, nil, nil, nil, FileServiceConfig{
		ScratchDir:         t.TempDir(),
		DefaultExpiryHours: 10,
		MaxExpiryHours:     5,
	})
	assert.Error(t, err)
}

func TestCleanFileName(t *testing.T) {
	assert.Equal(t, "report.pdf", cleanFileName("report.pdf"))
	assert.Equal(t, "evil.sh", cleanFileName(`C:\Users\me\evil.sh`))
	assert.Equal(t, "passwd", cleanFileName("../../etc/passwd"))
	assert.Equal(t, defaultFileName, cleanFileName(""))
	assert.Equal(t, defaultFileName, cleanFileName(".."))
	assert.Equal(t, "ab", cleanFileName("a\x00b"))

	long := cleanFileName(strings.Repeat("я", 300) + ".pdf")
	assert.LessOrEqual(t, len(long), maxFileNameBytes)
	assert.True(t, strings.HasSuffix(long, ".pdf"))
	assert.True(t, utf8.ValidString(long))

	noExt := cleanFileName(strings.Repeat("a", 400))
	assert.Len(t, noExt, maxFileNameBytes)
}

func TestStage_LongFileName(t *testing.T) {
	fx := newFixture(t)
	name := strings.Repeat("x", 400) + ".docx"

	staged := fx.stage(t, name, docxBytes(t, "Alice"), "alice")
	assert.LessOrEqual(t, len(staged.File.Name), maxFileNameBytes)
	assert.True(t, strings.HasSuffix(staged.File.Name, ".docx"))

	stored, err := fx.files.Confirm(context.Background(), staged.File.UUID, "alice", 1)
	require.NoError(t, err)
	fx.files.WaitIndexing()
	assert.Equal(t, "native:docx", stored.SanitizeMethod)
}
