package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"lmsadmin/internal/domain"
)

type QuotaWarningRepository struct {
	db *sqlx.DB
}

func NewQuotaWarningRepository(db *sqlx.DB) *QuotaWarningRepository {
	return &QuotaWarningRepository{db: db}
}

func (r *QuotaWarningRepository) Create(ctx context.Context, warning *domain.QuotaWarning) error {
	query := `
        INSERT INTO quota_warnings
            (branch_id, kind, usage_percent, usage_bytes, limit_bytes, triggered_by)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at`

	return r.db.QueryRowContext(ctx, query,
		warning.BranchID,
		warning.Kind,
		warning.UsagePercent,
		warning.UsageBytes,
		warning.LimitBytes,
		warning.TriggeredBy,
	).Scan(&warning.ID, &warning.CreatedAt)
}

// ExistsSince проверяет, создавалось ли предупреждение (branch, kind)
// после указанного момента. Основа дедупликации в скользящем часовом окне.
func (r *QuotaWarningRepository) ExistsSince(ctx context.Context, branchID string, kind domain.WarningKind, since time.Time) (bool, error) {
	var exists bool

	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(
            SELECT 1 FROM quota_warnings
            WHERE branch_id = $1 AND kind = $2 AND created_at > $3
        )`,
		branchID, kind, since)
	if err != nil {
		return false, fmt.Errorf("failed to check warning existence: %w", err)
	}

	return exists, nil
}

func (r *QuotaWarningRepository) ListByBranch(ctx context.Context, branchID string, limit int) ([]domain.QuotaWarning, error) {
	var warnings []domain.QuotaWarning

	err := r.db.SelectContext(ctx, &warnings,
		`SELECT * FROM quota_warnings
         WHERE branch_id = $1
         ORDER BY created_at DESC
         LIMIT $2`,
		branchID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list warnings: %w", err)
	}

	return warnings, nil
}
