package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"lmsadmin/internal/domain"
)

type UsageRecordRepository struct {
	db *sqlx.DB
}

func NewUsageRecordRepository(db *sqlx.DB) *UsageRecordRepository {
	return &UsageRecordRepository{db: db}
}

// FindActive ищет не удаленную запись по (owner, path).
// Возвращает nil без ошибки, если записи нет.
func (r *UsageRecordRepository) FindActive(ctx context.Context, ownerID, path string) (*domain.StorageUsageRecord, error) {
	var record domain.StorageUsageRecord

	err := r.db.GetContext(ctx, &record,
		`SELECT * FROM storage_usage_records
         WHERE owner_id = $1 AND path = $2 AND is_deleted = FALSE`,
		ownerID, path)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find usage record: %w", err)
	}

	return &record, nil
}

func (r *UsageRecordRepository) Create(ctx context.Context, record *domain.StorageUsageRecord) error {
	if record.UUID == "" {
		record.UUID = uuid.NewString()
	}

	query := `
        INSERT INTO storage_usage_records
            (uuid, branch_id, owner_id, path, filename, size_bytes, content_type,
             source_app, source_entity, source_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id, created_at`

	return r.db.QueryRowContext(ctx, query,
		record.UUID,
		record.BranchID,
		record.OwnerID,
		record.Path,
		record.Filename,
		record.SizeBytes,
		record.ContentType,
		record.SourceApp,
		record.SourceEntity,
		record.SourceID,
	).Scan(&record.ID, &record.CreatedAt)
}

// BranchUsage считает текущее использование филиала агрегатным запросом.
// Кешированного счетчика нет: конкурентные записи не портят общий счетчик
// ценой O(n)-скана на чтение.
func (r *UsageRecordRepository) BranchUsage(ctx context.Context, branchID string) (int64, error) {
	var total int64

	err := r.db.GetContext(ctx, &total,
		`SELECT COALESCE(SUM(size_bytes), 0) FROM storage_usage_records
         WHERE branch_id = $1 AND is_deleted = FALSE`,
		branchID)
	if err != nil {
		return 0, fmt.Errorf("failed to calculate branch usage: %w", err)
	}

	return total, nil
}

// MarkDeleted логически удаляет запись. Физическое удаление не выполняется
// никогда - журнал остается для аудита.
func (r *UsageRecordRepository) MarkDeleted(ctx context.Context, ownerID, path string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE storage_usage_records
         SET is_deleted = TRUE, deleted_at = CURRENT_TIMESTAMP
         WHERE owner_id = $1 AND path = $2 AND is_deleted = FALSE`,
		ownerID, path)
	if err != nil {
		return fmt.Errorf("failed to mark record deleted: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("active usage record not found: owner=%s path=%s", ownerID, path)
	}

	return nil
}

// MarkDeletedByID логически удаляет запись по её id (используется очисткой)
func (r *UsageRecordRepository) MarkDeletedByID(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE storage_usage_records
         SET is_deleted = TRUE, deleted_at = CURRENT_TIMESTAMP
         WHERE id = $1 AND is_deleted = FALSE`,
		id)
	if err != nil {
		return fmt.Errorf("failed to mark record deleted: %w", err)
	}
	return nil
}

// ListActive возвращает все активные записи (для фоновой сверки с хранилищем)
func (r *UsageRecordRepository) ListActive(ctx context.Context, limit int) ([]domain.StorageUsageRecord, error) {
	var records []domain.StorageUsageRecord

	err := r.db.SelectContext(ctx, &records,
		`SELECT * FROM storage_usage_records
         WHERE is_deleted = FALSE
         ORDER BY id
         LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list active records: %w", err)
	}

	return records, nil
}

// ListByBranch возвращает записи филиала, включая удаленные
func (r *UsageRecordRepository) ListByBranch(ctx context.Context, branchID string) ([]domain.StorageUsageRecord, error) {
	var records []domain.StorageUsageRecord

	err := r.db.SelectContext(ctx, &records,
		`SELECT * FROM storage_usage_records
         WHERE branch_id = $1
         ORDER BY created_at DESC`,
		branchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list branch records: %w", err)
	}

	return records, nil
}
