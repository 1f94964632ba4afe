package domain

import "time"

// TokenLimit - месячный лимит AI-токенов для филиала. В отличие от
// StorageLimit окно учета - календарный месяц, а не все время.
type TokenLimit struct {
	ID                      int64     `json:"id" db:"id"`
	BranchID                string    `json:"branch_id" db:"branch_id"`
	LimitTokens             int64     `json:"limit_tokens" db:"limit_tokens"`
	IsUnlimited             bool      `json:"is_unlimited" db:"is_unlimited"`
	WarningThresholdPercent int       `json:"warning_threshold_percent" db:"warning_threshold_percent"`
	UpdatedBy               string    `json:"updated_by" db:"updated_by"`
	CreatedAt               time.Time `json:"created_at" db:"created_at"`
	UpdatedAt               time.Time `json:"updated_at" db:"updated_at"`
}

// TokenUsageRecord - запись расхода AI-токенов
type TokenUsageRecord struct {
	ID           int64     `json:"id" db:"id"`
	BranchID     string    `json:"branch_id" db:"branch_id"`
	OwnerID      string    `json:"owner_id" db:"owner_id"`
	Tokens       int64     `json:"tokens" db:"tokens"`
	Model        string    `json:"model" db:"model"`
	SourceApp    string    `json:"source_app" db:"source_app"`
	SourceEntity string    `json:"source_entity" db:"source_entity"`
	SourceID     string    `json:"source_id" db:"source_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// TokenQuotaInfo - сводка по расходу токенов за текущий месяц
type TokenQuotaInfo struct {
	BranchID        string  `json:"branch_id"`
	LimitTokens     int64   `json:"limit_tokens"`
	UsedTokens      int64   `json:"used_tokens"`
	AvailableTokens int64   `json:"available_tokens"`
	UsagePercent    float64 `json:"usage_percent"`
	IsUnlimited     bool    `json:"is_unlimited"`
}
