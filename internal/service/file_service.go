package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"fidera/internal/domain"
	"fidera/internal/metadata"
)

const defaultFileName = "upload"

// FileServiceConfig задаёт параметры координатора жизненного цикла
type FileServiceConfig struct {
	ScratchDir         string
	DefaultExpiryHours int
	MaxExpiryHours     int
	// CacheSize 0 отключает кэш записей
	CacheSize int
	CacheTTL  time.Duration
}

// StageInput содержит загруженный файл и необязательного владельца
type StageInput struct {
	Body        io.Reader
	Filename    string
	ContentType string
	OwnerID     string
}

// FileService управляет переходами staging -> stored и доступом к файлам
type FileService struct {
	repo      FileRepository
	storage   ObjectStorage
	extractor Extractor
	sanitizer Sanitizer
	indexer   Indexer
	cfg       FileServiceConfig
	cache     *fileCache
	now       func() time.Time

	indexing sync.WaitGroup
}

func NewFileService(
	repo FileRepository,
	storage ObjectStorage,
	extractor Extractor,
	sanitizer Sanitizer,
	indexer Indexer,
	cfg FileServiceConfig,
) (*FileService, error) {
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = filepath.Join(os.TempDir(), "fidera")
	}
	if err := os.MkdirAll(cfg.ScratchDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create scratch dir %s: %w", cfg.ScratchDir, err)
	}
	if cfg.DefaultExpiryHours <= 0 || cfg.DefaultExpiryHours > cfg.MaxExpiryHours {
		return nil, fmt.Errorf("invalid expiry policy: default=%d max=%d", cfg.DefaultExpiryHours, cfg.MaxExpiryHours)
	}

	return &FileService{
		repo:      repo,
		storage:   storage,
		extractor: extractor,
		sanitizer: sanitizer,
		indexer:   indexer,
		cfg:       cfg,
		cache:     newFileCache(cfg.CacheSize, cfg.CacheTTL),
		now:       time.Now,
	}, nil
}

// Stage сохраняет оригинал в staging и создаёт запись STAGING.
// Сырые метаданные и чистое превью возвращаются загрузившему до подтверждения.
func (s *FileService) Stage(ctx context.Context, in StageInput) (result *domain.StageResult, err error) {
	defer func() { stageTotal.WithLabelValues(resultLabel(err)).Inc() }()

	if in.Body == nil {
		return nil, fmt.Errorf("%w: upload body is required", domain.ErrInvalidArgument)
	}

	id := uuid.New()
	name := cleanFileName(in.Filename)
	owner := in.OwnerID
	if owner == "" {
		owner = domain.AnonymousOwner
	}
	logger := log.With().Str("component", "lifecycle").Str("file_id", id.String()).Logger()

	workDir, err := s.scratch("stage", id)
	if err != nil {
		return nil, err
	}
	// scratch удаляется на любом пути выхода, включая отмену запроса
	defer os.RemoveAll(workDir)

	localPath := filepath.Join(workDir, name)
	size, err := writeScratch(localPath, in.Body)
	if err != nil {
		return nil, err
	}

	contentType := strings.TrimSpace(in.ContentType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = metadata.DetectContentType(localPath)
	}

	raw := s.extractor.Extract(ctx, localPath)
	preview := metadata.GenerateCleanPreview(raw)

	key := domain.StagingKey(id.String())
	locator, _, err := s.storage.PutFile(ctx, domain.BucketStaging, key, localPath, contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to store staged upload: %w", err)
	}

	now := s.now().UTC()
	file := &domain.File{
		UUID:             id,
		OwnerID:          owner,
		Name:             name,
		MIMEType:         contentType,
		SizeBytes:        size,
		StorageLocator:   locator,
		Status:           domain.StatusStaging,
		MetadataSnapshot: raw,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = file.Validate()
	if err == nil {
		err = s.repo.Create(ctx, file)
	}
	if err != nil {
		// Компенсация: без записи staging-объект никому не нужен
		if delErr := s.storage.Delete(context.WithoutCancel(ctx), domain.BucketStaging, key); delErr != nil {
			logger.Error().Err(delErr).Msg("failed to remove orphaned staging object")
		}
		return nil, fmt.Errorf("failed to create file record: %w", err)
	}

	logger.Info().
		Str("owner_id", owner).
		Int64("size", size).
		Str("method", raw[domain.KeyExtractionMethod]).
		Bool("extraction_degraded", metadata.IsDegraded(raw)).
		Msg("file staged")

	return &domain.StageResult{File: file, RawMetadata: raw, CleanPreview: preview}, nil
}

// Confirm очищает файл, переносит его в secure и переводит запись в STORED.
// При любой ошибке до фиксации запись остаётся STAGING и операцию можно повторить.
func (s *FileService) Confirm(ctx context.Context, id uuid.UUID, requester string, expiryHours int) (file *domain.File, err error) {
	defer func() { confirmTotal.WithLabelValues(resultLabel(err)).Inc() }()

	hours, err := s.resolveExpiry(expiryHours)
	if err != nil {
		return nil, err
	}

	file, err = s.repo.GetByUUID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(file, requester); err != nil {
		return nil, err
	}
	if file.Status != domain.StatusStaging {
		return nil, fmt.Errorf("%w: file %s is %s", domain.ErrInvalidState, id, file.Status)
	}

	stagingBucket, stagingKey, err := domain.ParseLocator(file.StorageLocator)
	if err != nil {
		return nil, err
	}
	logger := log.With().Str("component", "lifecycle").Str("file_id", id.String()).Logger()

	workDir, err := s.scratch("confirm", id)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workDir)

	// одинаковое имя сохраняет расширение, по которому выбирается нативный очиститель
	inPath := filepath.Join(workDir, "in", file.Name)
	outPath := filepath.Join(workDir, "out", file.Name)

	if err := s.fetchStaged(ctx, id, stagingBucket, stagingKey, inPath); err != nil {
		return nil, err
	}

	outcome, err := s.sanitizer.Sanitize(ctx, inPath, outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to sanitize file: %w", err)
	}
	if degraded := outcome.Err(); degraded != nil {
		logger.Warn().Err(degraded).Msg("file will be stored unsanitized")
	}

	secureLocator, size, err := s.storage.PutFile(ctx, domain.BucketSecure, domain.SecureKey(id.String()), outPath, file.MIMEType)
	if err != nil {
		return nil, fmt.Errorf("failed to store sanitized file: %w", err)
	}

	if err := s.storage.Delete(ctx, stagingBucket, stagingKey); err != nil {
		return nil, fmt.Errorf("failed to remove staged object: %w", err)
	}

	now := s.now().UTC()
	upd := domain.StoredUpdate{
		StorageLocator: secureLocator,
		IsSanitized:    outcome.Sanitized,
		SanitizeMethod: outcome.Method,
		SizeBytes:      size,
		ExpiryHours:    hours,
		ExpiresAt:      now.Add(time.Duration(hours) * time.Hour),
	}

	stored := *file
	stored.Status = domain.StatusStored
	stored.StorageLocator = upd.StorageLocator
	stored.IsSanitized = upd.IsSanitized
	stored.SanitizeMethod = upd.SanitizeMethod
	stored.SizeBytes = upd.SizeBytes
	stored.ExpiryHours = &hours
	stored.ExpiresAt = &upd.ExpiresAt
	stored.UpdatedAt = now
	if err := stored.Validate(); err != nil {
		return nil, err
	}

	// при сбое фиксации staged-объекта уже нет, повтор продолжит с копии в secure
	if err := s.repo.MarkStored(ctx, id, upd, now); err != nil {
		return nil, err
	}
	file = &stored

	logger.Info().
		Str("method", outcome.Method).
		Bool("sanitized", outcome.Sanitized).
		Time("expires_at", upd.ExpiresAt).
		Msg("file stored")

	s.indexAsync(ctx, id, secureLocator)
	return file, nil
}

// fetchStaged скачивает staged-оригинал. Если его уже нет, а запись всё ещё STAGING,
// значит прошлое подтверждение успело перенести файл в secure, но не зафиксировало запись:
// тогда подтверждение продолжается с копии в secure под детерминированным ключом.
func (s *FileService) fetchStaged(ctx context.Context, id uuid.UUID, bucket domain.Bucket, key, localPath string) error {
	err := s.storage.FetchToLocal(ctx, bucket, key, localPath)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrObjectNotFound) {
		return fmt.Errorf("failed to fetch staged object: %w", err)
	}

	current, gerr := s.repo.GetByUUID(ctx, id)
	if gerr != nil {
		return gerr
	}
	if current.Status != domain.StatusStaging {
		return fmt.Errorf("%w: file %s is %s", domain.ErrInvalidState, id, current.Status)
	}

	secureKey := domain.SecureKey(id.String())
	if serr := s.storage.FetchToLocal(ctx, domain.BucketSecure, secureKey, localPath); serr != nil {
		if errors.Is(serr, domain.ErrObjectNotFound) {
			return fmt.Errorf("failed to fetch staged object: %w", err)
		}
		return fmt.Errorf("failed to fetch secure copy: %w", serr)
	}
	log.Warn().Str("component", "lifecycle").Str("file_id", id.String()).
		Msg("staged object already moved, resuming confirmation from secure copy")
	return nil
}

// indexAsync не откатывает STORED при ошибке индексации
func (s *FileService) indexAsync(ctx context.Context, id uuid.UUID, locator string) {
	ctx = context.WithoutCancel(ctx)
	s.indexing.Add(1)
	go func() {
		defer s.indexing.Done()
		if err := s.indexer.Index(ctx, id, locator); err != nil {
			log.Error().Err(err).Str("file_id", id.String()).Msg("failed to index file")
		}
	}()
}

// WaitIndexing дожидается фоновых вызовов индексатора
func (s *FileService) WaitIndexing() {
	s.indexing.Wait()
}

// GetFile возвращает запись. Просроченный файл считается удалённым, даже если сборщик до него не дошёл.
func (s *FileService) GetFile(ctx context.Context, id uuid.UUID, requester string) (*domain.File, error) {
	file, ok := s.cache.get(id)
	if !ok {
		var err error
		file, err = s.repo.GetByUUID(ctx, id)
		if err != nil {
			return nil, err
		}
		s.cache.put(file)
	}
	if file.IsGone(s.now()) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if err := authorize(file, requester); err != nil {
		return nil, err
	}
	return file, nil
}

// GetMetadata возвращает сырой снимок метаданных, доступен только владельцу
func (s *FileService) GetMetadata(ctx context.Context, id uuid.UUID, requester string) (domain.Metadata, error) {
	file, err := s.GetFile(ctx, id, requester)
	if err != nil {
		return nil, err
	}
	return file.MetadataSnapshot, nil
}

// OpenContent отдаёт поток очищенной копии. Неподтверждённый оригинал не отдаётся.
func (s *FileService) OpenContent(ctx context.Context, id uuid.UUID, requester string) (*domain.File, io.ReadCloser, int64, error) {
	file, err := s.GetFile(ctx, id, requester)
	if err != nil {
		return nil, nil, 0, err
	}
	if file.Status != domain.StatusStored {
		return nil, nil, 0, fmt.Errorf("%w: file %s is %s", domain.ErrInvalidState, id, file.Status)
	}

	body, size, err := s.storage.OpenLocator(ctx, file.StorageLocator)
	if errors.Is(err, domain.ErrObjectNotFound) {
		return nil, nil, 0, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, nil, 0, err
	}
	return file, body, size, nil
}

// ListByOwner возвращает файлы владельца для дашборда. Анонимные загрузки не перечисляются.
func (s *FileService) ListByOwner(ctx context.Context, ownerID string) ([]domain.File, error) {
	if ownerID == "" || ownerID == domain.AnonymousOwner {
		return nil, fmt.Errorf("%w: listing requires an authenticated owner", domain.ErrForbidden)
	}
	return s.repo.ListByOwner(ctx, ownerID, s.now().UTC())
}

func (s *FileService) resolveExpiry(hours int) (int, error) {
	if hours == 0 {
		return s.cfg.DefaultExpiryHours, nil
	}
	if hours < 0 || hours > s.cfg.MaxExpiryHours {
		return 0, fmt.Errorf("%w: expiry_hours must be between 1 and %d, got %d",
			domain.ErrInvalidArgument, s.cfg.MaxExpiryHours, hours)
	}
	return hours, nil
}

func (s *FileService) scratch(op string, id uuid.UUID) (string, error) {
	dir := filepath.Join(s.cfg.ScratchDir, op+"-"+id.String())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create scratch dir: %w", err)
	}
	return dir, nil
}

// authorize: файлы именованного владельца доступны только ему, анонимные доступны любому, кто знает id
func authorize(file *domain.File, requester string) error {
	if file.IsAnonymous() || file.OwnerID == requester {
		return nil
	}
	return fmt.Errorf("%w: file %s belongs to another owner", domain.ErrForbidden, file.UUID)
}

func writeScratch(path string, body io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create scratch file: %w", err)
	}
	size, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("failed to write scratch file: %w", err)
	}
	return size, nil
}

// maxFileNameBytes ограничивает имя файла в scratch каталоге
const maxFileNameBytes = 255

// cleanFileName оставляет только базовое имя без управляющих символов,
// длинное имя укорачивается с сохранением расширения
func cleanFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" || name == ".." {
		return defaultFileName
	}
	return truncateFileName(name)
}

func truncateFileName(name string) string {
	if len(name) <= maxFileNameBytes {
		return name
	}
	ext := filepath.Ext(name)
	if len(ext) > 16 {
		ext = ""
	}
	base := strings.TrimSuffix(name, ext)
	for len(base) > maxFileNameBytes-len(ext) {
		_, size := utf8.DecodeLastRuneInString(base)
		base = base[:len(base)-size]
	}
	return base + ext
}
