package domain

import "time"

// Статусы фоновой задачи
const (
	JobStatusPending = "pending"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusFailed  = "failed"
)

// Режим исполнения задачи: через очередь с воркером или inline-горутиной.
// Режим фиксируется на записи, чтобы путь исполнения был наблюдаем.
const (
	JobModeQueue  = "queue"
	JobModeInline = "inline"
)

// Виды фоновых задач
const (
	JobKindSync            = "sync"
	JobKindRecordingIngest = "recording_ingest"
	JobKindStorageCleanup  = "storage_cleanup"
)

// SyncJob - фоновая задача. HTTP-ответ возвращает id сразу, статус
// опрашивается отдельным эндпоинтом.
type SyncJob struct {
	ID            string     `json:"id" db:"id"`
	Kind          string     `json:"kind" db:"kind"`
	IntegrationID int64      `json:"integration_id" db:"integration_id"`
	Payload       string     `json:"payload" db:"payload"`
	Status        string     `json:"status" db:"status"`
	Mode          string     `json:"mode" db:"mode"`
	Attempts      int        `json:"attempts" db:"attempts"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty" db:"next_retry_at"`
	Result        string     `json:"result" db:"result"`
	ErrorMessage  string     `json:"error_message" db:"error_message"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty" db:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}
