package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"lmsadmin/internal/domain"
)

type RecordingRepository struct {
	db *sqlx.DB
}

func NewRecordingRepository(db *sqlx.DB) *RecordingRepository {
	return &RecordingRepository{db: db}
}

func (r *RecordingRepository) SaveRecording(ctx context.Context, recording *domain.MeetingRecording) error {
	query := `
        INSERT INTO meeting_recordings
            (uuid, integration_id, branch_id, meeting_id, remote_id, organizer_id,
             name, storage_key, content_type, size_bytes, duration_seconds, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		recording.UUID,
		recording.IntegrationID,
		recording.BranchID,
		recording.MeetingID,
		recording.RemoteID,
		recording.OrganizerID,
		recording.Name,
		recording.StorageKey,
		recording.ContentType,
		recording.SizeBytes,
		recording.DurationSeconds,
		recording.Status,
	).Scan(&recording.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to save recording: %w", err)
	}

	return nil
}

// FindByRemoteID ищет уже сохраненную запись по id записи в Graph.
// Возвращает nil без ошибки, если записи нет - используется для дедупликации.
func (r *RecordingRepository) FindByRemoteID(ctx context.Context, integrationID int64, remoteID string) (*domain.MeetingRecording, error) {
	var recording domain.MeetingRecording

	err := r.db.GetContext(ctx, &recording,
		`SELECT * FROM meeting_recordings
         WHERE integration_id = $1 AND remote_id = $2`,
		integrationID, remoteID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find recording: %w", err)
	}

	return &recording, nil
}

// UpdateStatus обновляет статус обработки записи
func (r *RecordingRepository) UpdateStatus(ctx context.Context, recordingUUID uuid.UUID, status string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE meeting_recordings SET status = $1 WHERE uuid = $2`,
		status, recordingUUID)
	if err != nil {
		return fmt.Errorf("failed to update recording status: %w", err)
	}
	return nil
}

// ListByIntegration возвращает записи интеграции
func (r *RecordingRepository) ListByIntegration(ctx context.Context, integrationID int64) ([]domain.MeetingRecording, error) {
	var recordings []domain.MeetingRecording

	err := r.db.SelectContext(ctx, &recordings,
		`SELECT * FROM meeting_recordings
         WHERE integration_id = $1
         ORDER BY created_at DESC`,
		integrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}

	return recordings, nil
}
