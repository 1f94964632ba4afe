package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"lmsadmin/internal/domain"
)

type IntegrationRepository struct {
	db *sqlx.DB
}

func NewIntegrationRepository(db *sqlx.DB) *IntegrationRepository {
	return &IntegrationRepository{db: db}
}

func (r *IntegrationRepository) GetByID(ctx context.Context, id int64) (*domain.SyncIntegration, error) {
	var integ domain.SyncIntegration

	err := r.db.GetContext(ctx, &integ,
		`SELECT * FROM sync_integrations WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("integration not found: %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get integration: %w", err)
	}

	return &integ, nil
}

func (r *IntegrationRepository) ListByBranch(ctx context.Context, branchID string) ([]domain.SyncIntegration, error) {
	var items []domain.SyncIntegration

	err := r.db.SelectContext(ctx, &items,
		`SELECT * FROM sync_integrations WHERE branch_id = $1 ORDER BY id`,
		branchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}

	return items, nil
}

func (r *IntegrationRepository) Create(ctx context.Context, integ *domain.SyncIntegration) error {
	query := `
        INSERT INTO sync_integrations
            (branch_id, integration_type, tenant_id, client_id, client_secret, site_url,
             users_list, enrollments_list, progress_list, courses_list,
             enable_user_sync, enable_enrollment_sync, enable_progress_sync, enable_course_sync,
             last_sync_status)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
        RETURNING id, created_at, updated_at`

	return r.db.QueryRowContext(ctx, query,
		integ.BranchID,
		integ.Type,
		integ.TenantID,
		integ.ClientID,
		integ.ClientSecret,
		integ.SiteURL,
		integ.UsersList,
		integ.EnrollmentsList,
		integ.ProgressList,
		integ.CoursesList,
		integ.EnableUserSync,
		integ.EnableEnrollmentSync,
		integ.EnableProgressSync,
		integ.EnableCourseSync,
		domain.SyncStatusNever,
	).Scan(&integ.ID, &integ.CreatedAt, &integ.UpdatedAt)
}

func (r *IntegrationRepository) Update(ctx context.Context, integ *domain.SyncIntegration) error {
	query := `
        UPDATE sync_integrations
        SET tenant_id = $1,
            client_id = $2,
            client_secret = $3,
            site_url = $4,
            users_list = $5,
            enrollments_list = $6,
            progress_list = $7,
            courses_list = $8,
            enable_user_sync = $9,
            enable_enrollment_sync = $10,
            enable_progress_sync = $11,
            enable_course_sync = $12,
            updated_at = CURRENT_TIMESTAMP
        WHERE id = $13`

	result, err := r.db.ExecContext(ctx, query,
		integ.TenantID,
		integ.ClientID,
		integ.ClientSecret,
		integ.SiteURL,
		integ.UsersList,
		integ.EnrollmentsList,
		integ.ProgressList,
		integ.CoursesList,
		integ.EnableUserSync,
		integ.EnableEnrollmentSync,
		integ.EnableProgressSync,
		integ.EnableCourseSync,
		integ.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update integration: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("integration not found: %d", integ.ID)
	}

	return nil
}

// SaveToken сохраняет обновленный access token на записи интеграции.
// Реализует graph.TokenStore.
func (r *IntegrationRepository) SaveToken(ctx context.Context, integrationID int64, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sync_integrations
         SET access_token = $1, token_expires_at = $2, updated_at = CURRENT_TIMESTAMP
         WHERE id = $3`,
		token, expiresAt, integrationID)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// UpdateSyncStatus фиксирует итог последнего прогона синхронизации
func (r *IntegrationRepository) UpdateSyncStatus(ctx context.Context, integrationID int64, status, errMessage string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sync_integrations
         SET last_sync_status = $1,
             last_sync_error = $2,
             last_sync_at = CURRENT_TIMESTAMP,
             updated_at = CURRENT_TIMESTAMP
         WHERE id = $3`,
		status, errMessage, integrationID)
	if err != nil {
		return fmt.Errorf("failed to update sync status: %w", err)
	}
	return nil
}
