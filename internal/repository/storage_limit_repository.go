package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"lmsadmin/internal/domain"
)

const (
	// Дефолтный лимит для нового филиала - 5GB
	defaultStorageLimitBytes       = 5368709120
	defaultWarningThresholdPercent = 80
)

type StorageLimitRepository struct {
	db *sqlx.DB
}

func NewStorageLimitRepository(db *sqlx.DB) *StorageLimitRepository {
	return &StorageLimitRepository{db: db}
}

// GetOrCreate возвращает лимит филиала. Если лимита нет, создает новый
// с дефолтными значениями - лимиты появляются лениво при первом обращении.
func (r *StorageLimitRepository) GetOrCreate(ctx context.Context, branchID string) (*domain.StorageLimit, error) {
	var limit domain.StorageLimit

	err := r.db.GetContext(ctx, &limit,
		`SELECT * FROM storage_limits WHERE branch_id = $1`,
		branchID)

	if err != nil {
		if err == sql.ErrNoRows {
			limit = domain.StorageLimit{
				BranchID:                branchID,
				LimitBytes:              defaultStorageLimitBytes,
				WarningThresholdPercent: defaultWarningThresholdPercent,
			}
			if err := r.create(ctx, &limit); err != nil {
				return nil, fmt.Errorf("failed to create storage limit: %w", err)
			}
			return &limit, nil
		}
		return nil, fmt.Errorf("failed to get storage limit: %w", err)
	}

	return &limit, nil
}

func (r *StorageLimitRepository) create(ctx context.Context, limit *domain.StorageLimit) error {
	query := `
        INSERT INTO storage_limits (branch_id, limit_bytes, is_unlimited, warning_threshold_percent, updated_by)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at, updated_at`

	return r.db.QueryRowContext(ctx, query,
		limit.BranchID,
		limit.LimitBytes,
		limit.IsUnlimited,
		limit.WarningThresholdPercent,
		limit.UpdatedBy,
	).Scan(&limit.ID, &limit.CreatedAt, &limit.UpdatedAt)
}

// Update меняет лимит филиала. Вызывается только действием администратора.
func (r *StorageLimitRepository) Update(ctx context.Context, limit *domain.StorageLimit) error {
	query := `
        UPDATE storage_limits
        SET limit_bytes = $1,
            is_unlimited = $2,
            warning_threshold_percent = $3,
            updated_by = $4,
            updated_at = CURRENT_TIMESTAMP
        WHERE branch_id = $5
        RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		limit.LimitBytes,
		limit.IsUnlimited,
		limit.WarningThresholdPercent,
		limit.UpdatedBy,
		limit.BranchID,
	).Scan(&limit.ID, &limit.CreatedAt, &limit.UpdatedAt)

	if err == sql.ErrNoRows {
		return fmt.Errorf("storage limit not found for branch: %s", limit.BranchID)
	}
	if err != nil {
		return fmt.Errorf("failed to update storage limit: %w", err)
	}

	return nil
}
