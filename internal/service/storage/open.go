package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"fidera/internal/config"
	"fidera/internal/service/s3"
)

const probeTimeout = 10 * time.Second

// Open выбирает бэкенд один раз при старте: S3, если он настроен и доступен,
// иначе локальное дерево каталогов. Выбор не меняется до конца жизни процесса.
func Open(ctx context.Context, cfg config.StorageConfig) (*Manager, error) {
	if cfg.HasObjectStore() {
		client, err := s3.NewClient(&s3.Config{
			Endpoint:        cfg.Endpoint,
			Region:          cfg.Region,
			AccessKeyID:     cfg.AccessKey,
			SecretAccessKey: cfg.SecretKey,
			UsePathStyle:    cfg.UsePathStyle,
		})
		if err == nil {
			manager := NewManager(client, cfg.StagingBucket, cfg.SecureBucket)
			probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			err = manager.EnsureBuckets(probeCtx)
			cancel()
			if err == nil {
				log.Info().Str("endpoint", cfg.Endpoint).Msg("using s3 storage backend")
				return manager, nil
			}
			storageBackendInfo.DeleteLabelValues(client.Name())
		}
		log.Warn().Err(err).Str("endpoint", cfg.Endpoint).Str("dir", cfg.LocalDir).
			Msg("object store unreachable, falling back to local storage")
	}

	local, err := NewLocalBackendDir(cfg.LocalDir)
	if err != nil {
		return nil, err
	}
	manager := NewManager(local, cfg.StagingBucket, cfg.SecureBucket)
	if err := manager.EnsureBuckets(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare local storage: %w", err)
	}
	log.Info().Str("dir", cfg.LocalDir).Msg("using local storage backend")
	return manager, nil
}
