package service

import (
	"context"
	"encoding/json"
	"fmt"

	"lmsadmin/internal/domain"
	"lmsadmin/internal/syncer"
)

// Исполнители фоновых задач. Результат каждого сериализуется в JSON и
// сохраняется на записи задачи.

// SyncRunner выполняет задачу синхронизации интеграции через монитор
// изменений
type SyncRunner struct {
	integrations IntegrationStore
	monitor      *syncer.Monitor
}

func NewSyncRunner(integrations IntegrationStore, monitor *syncer.Monitor) *SyncRunner {
	return &SyncRunner{
		integrations: integrations,
		monitor:      monitor,
	}
}

func (r *SyncRunner) Run(ctx context.Context, job *domain.SyncJob) (string, error) {
	integ, err := r.integrations.GetByID(ctx, job.IntegrationID)
	if err != nil {
		return "", fmt.Errorf("failed to get integration: %w", err)
	}

	report := r.monitor.Poll(ctx, integ)
	result, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to marshal sync report: %w", err)
	}
	if report.HasErrors() {
		return string(result), fmt.Errorf("sync finished with errors: %s", report.FirstError())
	}
	return string(result), nil
}

// RecordingIngestPayload - параметры задачи забора записей конференции
type RecordingIngestPayload struct {
	OrganizerID string `json:"organizer_id"`
	MeetingID   string `json:"meeting_id"`
}

// RecordingIngestRunner выполняет задачу забора записей Teams
type RecordingIngestRunner struct {
	recordings *RecordingService
}

func NewRecordingIngestRunner(recordings *RecordingService) *RecordingIngestRunner {
	return &RecordingIngestRunner{recordings: recordings}
}

func (r *RecordingIngestRunner) Run(ctx context.Context, job *domain.SyncJob) (string, error) {
	var payload RecordingIngestPayload
	if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
		return "", fmt.Errorf("failed to parse job payload: %w", err)
	}
	if payload.OrganizerID == "" || payload.MeetingID == "" {
		return "", fmt.Errorf("organizer_id and meeting_id are required")
	}

	result, err := r.recordings.IngestMeeting(ctx, job.IntegrationID, payload.OrganizerID, payload.MeetingID)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to marshal ingest result: %w", err)
	}
	return string(out), nil
}

// CleanupRunner выполняет задачу сверки хранилища с журналом использования
type CleanupRunner struct {
	cleanup *CleanupService
}

func NewCleanupRunner(cleanup *CleanupService) *CleanupRunner {
	return &CleanupRunner{cleanup: cleanup}
}

func (r *CleanupRunner) Run(ctx context.Context, job *domain.SyncJob) (string, error) {
	result, err := r.cleanup.Run(ctx)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cleanup result: %w", err)
	}
	return string(out), nil
}
