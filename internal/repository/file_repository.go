package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"fidera/internal/domain"
)

const fileColumns = `uuid, owner_id, name, mime_type, size_bytes, storage_locator, status,
        is_sanitized, sanitize_method, metadata_snapshot, expiry_hours, expires_at, created_at, updated_at`

type FileRepository struct {
	db *sqlx.DB
}

func NewFileRepository(db *sqlx.DB) *FileRepository {
	return &FileRepository{db: db}
}

// Create сохраняет новую запись в статусе staging
func (r *FileRepository) Create(ctx context.Context, file *domain.File) error {
	if file.Status != domain.StatusStaging {
		return fmt.Errorf("%w: new file must be staging, got %s", domain.ErrInvalidState, file.Status)
	}

	query := r.db.Rebind(`
        INSERT INTO files (` + fileColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.db.ExecContext(
		ctx,
		query,
		file.UUID,
		file.OwnerID,
		file.Name,
		file.MIMEType,
		file.SizeBytes,
		file.StorageLocator,
		file.Status,
		file.IsSanitized,
		file.SanitizeMethod,
		file.MetadataSnapshot,
		file.ExpiryHours,
		file.ExpiresAt,
		file.CreatedAt.UTC(),
		file.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}
	return nil
}

func (r *FileRepository) GetByUUID(ctx context.Context, id uuid.UUID) (*domain.File, error) {
	var file domain.File
	query := r.db.Rebind(`SELECT ` + fileColumns + ` FROM files WHERE uuid = ?`)

	err := r.db.GetContext(ctx, &file, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return &file, nil
}

// MarkStored переводит staging в stored. Условие на статус проверяется в самом UPDATE,
// поэтому из двух параллельных подтверждений проходит только одно.
func (r *FileRepository) MarkStored(ctx context.Context, id uuid.UUID, upd domain.StoredUpdate, now time.Time) error {
	query := r.db.Rebind(`
        UPDATE files
        SET status = ?,
            storage_locator = ?,
            is_sanitized = ?,
            sanitize_method = ?,
            size_bytes = ?,
            expiry_hours = ?,
            expires_at = ?,
            updated_at = ?
        WHERE uuid = ? AND status = ?`)

	res, err := r.db.ExecContext(
		ctx,
		query,
		domain.StatusStored,
		upd.StorageLocator,
		upd.IsSanitized,
		upd.SanitizeMethod,
		upd.SizeBytes,
		upd.ExpiryHours,
		upd.ExpiresAt.UTC(),
		now.UTC(),
		id,
		domain.StatusStaging,
	)
	if err != nil {
		return fmt.Errorf("failed to mark file stored: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		file, err := r.GetByUUID(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: file %s is %s", domain.ErrInvalidState, id, file.Status)
	}
	return nil
}

// ListExpired возвращает stored-файлы, срок которых истёк к моменту now, в порядке (expires_at, uuid).
// С after выборка продолжается строго после указанной записи.
func (r *FileRepository) ListExpired(ctx context.Context, now time.Time, after *domain.SweepCursor, limit int) ([]domain.File, error) {
	args := []interface{}{domain.StatusStored, now.UTC()}
	cursor := ""
	if after != nil {
		cursor = "AND (expires_at > ? OR (expires_at = ? AND uuid > ?))"
		args = append(args, after.ExpiresAt.UTC(), after.ExpiresAt.UTC(), after.UUID)
	}
	args = append(args, limit)

	query := r.db.Rebind(`
        SELECT ` + fileColumns + `
        FROM files
        WHERE status = ? AND expires_at <= ? ` + cursor + `
        ORDER BY expires_at, uuid
        LIMIT ?`)

	files := []domain.File{}
	if err := r.db.SelectContext(ctx, &files, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list expired files: %w", err)
	}
	return files, nil
}

// MarkExpired одной транзакцией переводит пачку файлов в expired:
// локатор заменяется на purged, снимок метаданных на tombstone. Строки не удаляются.
func (r *FileRepository) MarkExpired(ctx context.Context, ids []uuid.UUID, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	query, args, err := sqlx.In(`
        UPDATE files
        SET status = ?,
            storage_locator = ?,
            metadata_snapshot = ?,
            updated_at = ?
        WHERE status = ? AND uuid IN (?)`,
		domain.StatusExpired,
		domain.PurgedLocator,
		domain.Tombstone(),
		now.UTC(),
		domain.StatusStored,
		keys,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to build expire query: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark files expired: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return affected, nil
}

// ListByOwner возвращает живые файлы владельца: не expired и с непрошедшим сроком
func (r *FileRepository) ListByOwner(ctx context.Context, ownerID string, now time.Time) ([]domain.File, error) {
	query := r.db.Rebind(`
        SELECT ` + fileColumns + `
        FROM files
        WHERE owner_id = ?
          AND status <> ?
          AND (expires_at IS NULL OR expires_at > ?)
        ORDER BY created_at DESC`)

	files := []domain.File{}
	if err := r.db.SelectContext(ctx, &files, query, ownerID, domain.StatusExpired, now.UTC()); err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return files, nil
}

// Ping проверяет доступность базы
func (r *FileRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
