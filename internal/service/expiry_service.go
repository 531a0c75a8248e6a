package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"fidera/internal/domain"
)

// SweepResult содержит итог одного прохода сборщика
type SweepResult struct {
	// Candidates: найдено stored-файлов с истёкшим сроком
	Candidates int
	// Purged: переведено в expired
	Purged int
	// Errors: файлы, оставшиеся stored до следующего прохода
	Errors   int
	Duration time.Duration
}

// ExpiryService периодически удаляет просроченные файлы из хранилища и индекса
// и затирает их записи. Строки в базе не удаляются.
type ExpiryService struct {
	repo      ExpiryRepository
	storage   ObjectStorage
	indexer   Indexer
	interval  time.Duration
	batchSize int
	now       func() time.Time
	logger    zerolog.Logger

	sweepMu sync.Mutex // один проход за раз

	lifeMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewExpiryService(
	repo ExpiryRepository,
	storage ObjectStorage,
	indexer Indexer,
	interval time.Duration,
	batchSize int,
) *ExpiryService {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &ExpiryService{
		repo:      repo,
		storage:   storage,
		indexer:   indexer,
		interval:  interval,
		batchSize: batchSize,
		now:       time.Now,
		logger:    log.With().Str("component", "expiry").Logger(),
	}
}

// Start запускает фоновый цикл. Повторный вызов без Stop ничего не делает.
func (e *ExpiryService) Start(ctx context.Context) {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	if e.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})

	go e.run(loopCtx, e.done)

	e.logger.Info().Dur("interval", e.interval).Msg("expiry enforcer started")
}

// Stop останавливает цикл и ждёт завершения текущего прохода
func (e *ExpiryService) Stop() {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	if e.cancel == nil {
		return
	}

	e.cancel()
	<-e.done
	e.cancel = nil
	e.done = nil

	e.logger.Info().Msg("expiry enforcer stopped")
}

// Running сообщает, запущен ли фоновый цикл
func (e *ExpiryService) Running() bool {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	return e.cancel != nil
}

func (e *ExpiryService) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		e.sweep(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// sweep не прерывается остановкой: начатый проход доводится до конца
func (e *ExpiryService) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := e.RunOnce(context.WithoutCancel(ctx)); err != nil {
		e.logger.Error().Err(err).Msg("expiry sweep failed")
	}
}

// RunOnce выполняет один проход пачками по batchSize.
// Ошибка по отдельному файлу логируется и не прерывает проход.
func (e *ExpiryService) RunOnce(ctx context.Context) (*SweepResult, error) {
	e.sweepMu.Lock()
	defer e.sweepMu.Unlock()

	start := time.Now()
	result := &SweepResult{}
	defer func() {
		result.Duration = time.Since(start)
		purgeRunsTotal.Inc()
		purgeDurationSeconds.Observe(result.Duration.Seconds())
	}()

	now := e.now().UTC()
	var cursor *domain.SweepCursor
	for {
		files, err := e.repo.ListExpired(ctx, now, cursor, e.batchSize)
		if err != nil {
			return result, fmt.Errorf("failed to list expired files: %w", err)
		}
		if len(files) == 0 {
			break
		}
		result.Candidates += len(files)
		// неудачные файлы остаются позади курсора до следующего прохода
		last := files[len(files)-1]
		cursor = &domain.SweepCursor{ExpiresAt: *last.ExpiresAt, UUID: last.UUID}

		purged := make([]uuid.UUID, 0, len(files))
		for _, file := range files {
			logger := e.logger.With().Str("file_id", file.UUID.String()).Logger()

			if err := e.storage.DeleteLocator(ctx, file.StorageLocator); err != nil {
				logger.Error().Err(err).Str("locator", file.StorageLocator).Msg("failed to delete object, will retry")
				result.Errors++
				purgeErrorsTotal.Inc()
				continue
			}
			if err := e.indexer.DropIndex(ctx, file.UUID); err != nil {
				logger.Warn().Err(err).Msg("failed to drop index entries")
			}
			purged = append(purged, file.UUID)
		}

		if len(purged) > 0 {
			affected, err := e.repo.MarkExpired(ctx, purged, now)
			if err != nil {
				result.Errors += len(purged)
				purgeErrorsTotal.Add(float64(len(purged)))
				return result, fmt.Errorf("failed to commit expired batch: %w", err)
			}
			result.Purged += int(affected)
			purgedFilesTotal.Add(float64(affected))
		}

		if len(files) < e.batchSize {
			break
		}
	}

	if result.Candidates > 0 {
		e.logger.Info().
			Int("candidates", result.Candidates).
			Int("purged", result.Purged).
			Int("errors", result.Errors).
			Dur("duration", time.Since(start)).
			Msg("expiry sweep finished")
	}
	return result, nil
}
