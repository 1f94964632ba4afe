package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"lmsadmin/internal/domain"
)

// ManualReviewRepository хранит конфликты, отложенные для ручного разбора.
// Такие конфликты исключаются из автоматических повторов синхронизации.
type ManualReviewRepository struct {
	db *sqlx.DB
}

func NewManualReviewRepository(db *sqlx.DB) *ManualReviewRepository {
	return &ManualReviewRepository{db: db}
}

func (r *ManualReviewRepository) Create(ctx context.Context, item *domain.ManualReviewItem) error {
	query := `
        INSERT INTO manual_review_items
            (integration_id, entity_type, local_id, remote_id, fields, reason)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at`

	return r.db.QueryRowContext(ctx, query,
		item.IntegrationID,
		item.EntityType,
		item.LocalID,
		item.RemoteID,
		item.Fields,
		item.Reason,
	).Scan(&item.ID, &item.CreatedAt)
}

// ListOpen возвращает неразобранные конфликты интеграции
func (r *ManualReviewRepository) ListOpen(ctx context.Context, integrationID int64) ([]domain.ManualReviewItem, error) {
	var items []domain.ManualReviewItem

	err := r.db.SelectContext(ctx, &items,
		`SELECT * FROM manual_review_items
         WHERE integration_id = $1 AND resolved_at IS NULL
         ORDER BY created_at`,
		integrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list manual review items: %w", err)
	}

	return items, nil
}

// Resolve помечает конфликт разобранным
func (r *ManualReviewRepository) Resolve(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE manual_review_items
         SET resolved_at = CURRENT_TIMESTAMP
         WHERE id = $1 AND resolved_at IS NULL`,
		id)
	if err != nil {
		return fmt.Errorf("failed to resolve manual review item: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("manual review item not found or already resolved: %d", id)
	}

	return nil
}
