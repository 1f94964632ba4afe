package domain

import "time"

// WarningKind - вид предупреждения о квоте
type WarningKind string

const (
	WarningThreshold     WarningKind = "threshold"
	WarningLimitExceeded WarningKind = "limit_exceeded"
	WarningAdminNotice   WarningKind = "admin_notification"
)

// StorageLimit - лимит хранилища для филиала. Создается лениво при первом
// обращении, никогда не удаляется (отключается через is_unlimited).
type StorageLimit struct {
	ID                      int64     `json:"id" db:"id"`
	BranchID                string    `json:"branch_id" db:"branch_id"`
	LimitBytes              int64     `json:"limit_bytes" db:"limit_bytes"`
	IsUnlimited             bool      `json:"is_unlimited" db:"is_unlimited"`
	WarningThresholdPercent int       `json:"warning_threshold_percent" db:"warning_threshold_percent"`
	UpdatedBy               string    `json:"updated_by" db:"updated_by"`
	CreatedAt               time.Time `json:"created_at" db:"created_at"`
	UpdatedAt               time.Time `json:"updated_at" db:"updated_at"`
}

// StorageUsageRecord - запись журнала использования хранилища (append-only).
// Физически не удаляется: вместо этого ставится is_deleted.
type StorageUsageRecord struct {
	ID           int64      `json:"id" db:"id"`
	UUID         string     `json:"uuid" db:"uuid"`
	BranchID     string     `json:"branch_id" db:"branch_id"`
	OwnerID      string     `json:"owner_id" db:"owner_id"`
	Path         string     `json:"path" db:"path"`
	Filename     string     `json:"filename" db:"filename"`
	SizeBytes    int64      `json:"size_bytes" db:"size_bytes"`
	ContentType  string     `json:"content_type" db:"content_type"`
	SourceApp    string     `json:"source_app" db:"source_app"`
	SourceEntity string     `json:"source_entity" db:"source_entity"`
	SourceID     string     `json:"source_id" db:"source_id"`
	IsDeleted    bool       `json:"is_deleted" db:"is_deleted"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// QuotaWarning - предупреждение о приближении к лимиту или его превышении.
// Не более одного предупреждения вида (branch, kind) в течение часа.
type QuotaWarning struct {
	ID           int64       `json:"id" db:"id"`
	BranchID     string      `json:"branch_id" db:"branch_id"`
	Kind         WarningKind `json:"kind" db:"kind"`
	UsagePercent float64     `json:"usage_percent" db:"usage_percent"`
	UsageBytes   int64       `json:"usage_bytes" db:"usage_bytes"`
	LimitBytes   int64       `json:"limit_bytes" db:"limit_bytes"`
	TriggeredBy  string      `json:"triggered_by" db:"triggered_by"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
}

// QuotaInfo - сводка по использованию квоты для ответа API
type QuotaInfo struct {
	BranchID       string  `json:"branch_id"`
	LimitBytes     int64   `json:"limit_bytes"`
	UsedBytes      int64   `json:"used_bytes"`
	AvailableBytes int64   `json:"available_bytes"`
	UsagePercent   float64 `json:"usage_percent"`
	IsUnlimited    bool    `json:"is_unlimited"`
}

// Provenance - происхождение записи использования (какое приложение и
// сущность породили файл или расход токенов)
type Provenance struct {
	SourceApp    string `json:"source_app"`
	SourceEntity string `json:"source_entity"`
	SourceID     string `json:"source_id"`
}
