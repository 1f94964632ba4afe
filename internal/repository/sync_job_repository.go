package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"lmsadmin/internal/domain"
)

type SyncJobRepository struct {
	db *sqlx.DB
}

func NewSyncJobRepository(db *sqlx.DB) *SyncJobRepository {
	return &SyncJobRepository{db: db}
}

func (r *SyncJobRepository) Create(ctx context.Context, job *domain.SyncJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = domain.JobStatusPending
	}

	query := `
        INSERT INTO sync_jobs (id, kind, integration_id, payload, status, mode)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING created_at`

	return r.db.QueryRowContext(ctx, query,
		job.ID,
		job.Kind,
		job.IntegrationID,
		job.Payload,
		job.Status,
		job.Mode,
	).Scan(&job.CreatedAt)
}

func (r *SyncJobRepository) GetByID(ctx context.Context, id string) (*domain.SyncJob, error) {
	var job domain.SyncJob

	err := r.db.GetContext(ctx, &job,
		`SELECT * FROM sync_jobs WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// ClaimNext атомарно захватывает следующую задачу, готовую к исполнению.
// SKIP LOCKED позволяет нескольким воркерам не толкаться на одной строке.
// Возвращает nil без ошибки, если готовых задач нет.
func (r *SyncJobRepository) ClaimNext(ctx context.Context, now time.Time) (*domain.SyncJob, error) {
	var job domain.SyncJob

	query := `
        UPDATE sync_jobs
        SET status = $1, started_at = CURRENT_TIMESTAMP, attempts = attempts + 1
        WHERE id = (
            SELECT id FROM sync_jobs
            WHERE status = $2
              AND mode = $3
              AND (next_retry_at IS NULL OR next_retry_at <= $4)
            ORDER BY created_at
            LIMIT 1
            FOR UPDATE SKIP LOCKED
        )
        RETURNING *`

	err := r.db.GetContext(ctx, &job, query,
		domain.JobStatusRunning, domain.JobStatusPending, domain.JobModeQueue, now)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	return &job, nil
}

// MarkRunning помечает inline-задачу запущенной
func (r *SyncJobRepository) MarkRunning(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sync_jobs
         SET status = $1, started_at = CURRENT_TIMESTAMP, attempts = attempts + 1
         WHERE id = $2`,
		domain.JobStatusRunning, id)
	if err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}
	return nil
}

func (r *SyncJobRepository) MarkDone(ctx context.Context, id, result string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sync_jobs
         SET status = $1, result = $2, error_message = '', finished_at = CURRENT_TIMESTAMP
         WHERE id = $3`,
		domain.JobStatusDone, result, id)
	if err != nil {
		return fmt.Errorf("failed to mark job done: %w", err)
	}
	return nil
}

// MarkFailed фиксирует провал попытки. Если попытки не исчерпаны, задача
// возвращается в pending с назначенным временем повтора, иначе - failed.
func (r *SyncJobRepository) MarkFailed(ctx context.Context, id, errMessage string, retryAt *time.Time) error {
	if retryAt != nil {
		_, err := r.db.ExecContext(ctx,
			`UPDATE sync_jobs
             SET status = $1, error_message = $2, next_retry_at = $3
             WHERE id = $4`,
			domain.JobStatusPending, errMessage, *retryAt, id)
		if err != nil {
			return fmt.Errorf("failed to schedule job retry: %w", err)
		}
		return nil
	}

	_, err := r.db.ExecContext(ctx,
		`UPDATE sync_jobs
         SET status = $1, error_message = $2, finished_at = CURRENT_TIMESTAMP
         WHERE id = $3`,
		domain.JobStatusFailed, errMessage, id)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}
