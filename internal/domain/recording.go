package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	RecordingsKeyPrefix = "teams_recordings"
	RecordingSourceApp  = "teams"
)

// Статусы обработки записи конференции
const (
	RecordingStatusPending = "pending"
	RecordingStatusStored  = "stored"
	RecordingStatusFailed  = "failed"
)

// MeetingRecording - запись конференции Teams, скачанная через Graph API
// и сохраненная в хранилище. Размер учитывается в квоте филиала.
type MeetingRecording struct {
	ID              int64     `json:"id" db:"id"`
	UUID            uuid.UUID `json:"uuid" db:"uuid"`
	IntegrationID   int64     `json:"integration_id" db:"integration_id"`
	BranchID        string    `json:"branch_id" db:"branch_id"`
	MeetingID       string    `json:"meeting_id" db:"meeting_id"`
	RemoteID        string    `json:"remote_id" db:"remote_id"`
	OrganizerID     string    `json:"organizer_id" db:"organizer_id"`
	Name            string    `json:"name" db:"name"`
	StorageKey      string    `json:"storage_key" db:"storage_key"`
	ContentType     string    `json:"content_type" db:"content_type"`
	SizeBytes       int64     `json:"size_bytes" db:"size_bytes"`
	DurationSeconds float64   `json:"duration_seconds" db:"duration_seconds"`
	Status          string    `json:"status" db:"status"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}
