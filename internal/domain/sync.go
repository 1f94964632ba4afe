package domain

import "time"

// EntityType - тип синхронизируемой сущности
type EntityType string

const (
	EntityUser       EntityType = "user"
	EntityEnrollment EntityType = "enrollment"
	EntityProgress   EntityType = "progress"
	EntityCourse     EntityType = "course"
)

// ResolutionStrategy - стратегия разрешения конфликтов. Настраивается
// статически per-тип, пользователем в рантайме не выбирается.
type ResolutionStrategy string

const (
	StrategyLatestWins ResolutionStrategy = "latest_wins"
	StrategyLocalWins  ResolutionStrategy = "local_wins"
	// StrategyRemoteWins объявлена, но не реализована: случаи, требующие её,
	// уходят в ручной разбор с явной причиной. Не "чинить" молча.
	StrategyRemoteWins   ResolutionStrategy = "remote_wins"
	StrategyManualReview ResolutionStrategy = "manual_review"
)

// Resolution - итог разрешения одного конфликта
type Resolution string

const (
	ResolvedLocalWins    Resolution = "resolved_local_wins"
	ResolvedRemoteWins   Resolution = "resolved_remote_wins"
	ManualReviewRequired Resolution = "manual_review_required"
)

// Conflict - расхождение полей между локальной и удаленной записью.
// Живет только внутри одного прогона синхронизации, не персистится
// (кроме случаев ручного разбора).
type Conflict struct {
	EntityType        EntityType
	LocalID           string
	RemoteID          string
	ConflictingFields []string
	LocalSnapshot     map[string]any
	RemoteSnapshot    map[string]any
	LocalTimestamp    *time.Time
	RemoteTimestamp   *time.Time
}

// ManualReviewItem - конфликт, отложенный для ручного разбора.
// Исключается из автоматических повторов.
type ManualReviewItem struct {
	ID            int64      `json:"id" db:"id"`
	IntegrationID int64      `json:"integration_id" db:"integration_id"`
	EntityType    EntityType `json:"entity_type" db:"entity_type"`
	LocalID       string     `json:"local_id" db:"local_id"`
	RemoteID      string     `json:"remote_id" db:"remote_id"`
	Fields        string     `json:"fields" db:"fields"`
	Reason        string     `json:"reason" db:"reason"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// SyncTypeResult - итоги синхронизации одного типа сущностей
type SyncTypeResult struct {
	Synced       int                `json:"synced"`
	Conflicts    int                `json:"conflicts"`
	MissingLocal int                `json:"missing_lms"`
	ManualReview int                `json:"manual_review"`
	Resolutions  map[Resolution]int `json:"resolutions,omitempty"`
	Skipped      bool               `json:"skipped"`
	Errors       []string           `json:"errors,omitempty"`
}

// Resolve учитывает итог разрешения одного конфликта
func (r *SyncTypeResult) Resolve(res Resolution) {
	if r.Resolutions == nil {
		r.Resolutions = make(map[Resolution]int)
	}
	r.Resolutions[res]++
}

// SyncReport - агрегированный результат одного прогона Poll
type SyncReport struct {
	IntegrationID int64                          `json:"integration_id"`
	StartedAt     time.Time                      `json:"started_at"`
	FinishedAt    time.Time                      `json:"finished_at"`
	Types         map[EntityType]*SyncTypeResult `json:"types"`
}

// HasErrors возвращает true, если хотя бы один тип завершился с ошибками
func (r *SyncReport) HasErrors() bool {
	for _, tr := range r.Types {
		if len(tr.Errors) > 0 {
			return true
		}
	}
	return false
}

// FirstError возвращает первую ошибку из отчета или пустую строку
func (r *SyncReport) FirstError() string {
	for _, entityType := range []EntityType{EntityUser, EntityEnrollment, EntityProgress, EntityCourse} {
		if tr, ok := r.Types[entityType]; ok && len(tr.Errors) > 0 {
			return tr.Errors[0]
		}
	}
	return ""
}
