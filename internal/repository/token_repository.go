package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"lmsadmin/internal/domain"
)

const (
	// Дефолтный месячный лимит AI-токенов для нового филиала
	defaultTokenLimit = 1000000
)

type TokenLimitRepository struct {
	db *sqlx.DB
}

func NewTokenLimitRepository(db *sqlx.DB) *TokenLimitRepository {
	return &TokenLimitRepository{db: db}
}

// GetOrCreate возвращает лимит токенов филиала, лениво создавая дефолтный
func (r *TokenLimitRepository) GetOrCreate(ctx context.Context, branchID string) (*domain.TokenLimit, error) {
	var limit domain.TokenLimit

	err := r.db.GetContext(ctx, &limit,
		`SELECT * FROM token_limits WHERE branch_id = $1`,
		branchID)

	if err != nil {
		if err == sql.ErrNoRows {
			limit = domain.TokenLimit{
				BranchID:                branchID,
				LimitTokens:             defaultTokenLimit,
				WarningThresholdPercent: defaultWarningThresholdPercent,
			}
			if err := r.create(ctx, &limit); err != nil {
				return nil, fmt.Errorf("failed to create token limit: %w", err)
			}
			return &limit, nil
		}
		return nil, fmt.Errorf("failed to get token limit: %w", err)
	}

	return &limit, nil
}

func (r *TokenLimitRepository) create(ctx context.Context, limit *domain.TokenLimit) error {
	query := `
        INSERT INTO token_limits (branch_id, limit_tokens, is_unlimited, warning_threshold_percent, updated_by)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at, updated_at`

	return r.db.QueryRowContext(ctx, query,
		limit.BranchID,
		limit.LimitTokens,
		limit.IsUnlimited,
		limit.WarningThresholdPercent,
		limit.UpdatedBy,
	).Scan(&limit.ID, &limit.CreatedAt, &limit.UpdatedAt)
}

func (r *TokenLimitRepository) Update(ctx context.Context, limit *domain.TokenLimit) error {
	query := `
        UPDATE token_limits
        SET limit_tokens = $1,
            is_unlimited = $2,
            warning_threshold_percent = $3,
            updated_by = $4,
            updated_at = CURRENT_TIMESTAMP
        WHERE branch_id = $5
        RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		limit.LimitTokens,
		limit.IsUnlimited,
		limit.WarningThresholdPercent,
		limit.UpdatedBy,
		limit.BranchID,
	).Scan(&limit.ID, &limit.CreatedAt, &limit.UpdatedAt)

	if err == sql.ErrNoRows {
		return fmt.Errorf("token limit not found for branch: %s", limit.BranchID)
	}
	if err != nil {
		return fmt.Errorf("failed to update token limit: %w", err)
	}

	return nil
}

type TokenUsageRepository struct {
	db *sqlx.DB
}

func NewTokenUsageRepository(db *sqlx.DB) *TokenUsageRepository {
	return &TokenUsageRepository{db: db}
}

func (r *TokenUsageRepository) Create(ctx context.Context, record *domain.TokenUsageRecord) error {
	query := `
        INSERT INTO token_usage_records
            (branch_id, owner_id, tokens, model, source_app, source_entity, source_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id, created_at`

	return r.db.QueryRowContext(ctx, query,
		record.BranchID,
		record.OwnerID,
		record.Tokens,
		record.Model,
		record.SourceApp,
		record.SourceEntity,
		record.SourceID,
	).Scan(&record.ID, &record.CreatedAt)
}

// CurrentMonthUsage считает расход токенов филиала за календарный месяц
// [первое число, сейчас]
func (r *TokenUsageRepository) CurrentMonthUsage(ctx context.Context, branchID string, now time.Time) (int64, error) {
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	var total int64
	err := r.db.GetContext(ctx, &total,
		`SELECT COALESCE(SUM(tokens), 0) FROM token_usage_records
         WHERE branch_id = $1 AND created_at >= $2 AND created_at <= $3`,
		branchID, firstOfMonth, now)
	if err != nil {
		return 0, fmt.Errorf("failed to calculate month usage: %w", err)
	}

	return total, nil
}
