package domain

import "time"

// IntegrationType - тип внешней интеграции. Закрытое множество тегов:
// обработчики подбираются по тегу явно, неизвестный тег - ошибка валидации.
type IntegrationType string

const (
	IntegrationSharePoint IntegrationType = "sharepoint"
	IntegrationTeams      IntegrationType = "teams"
	IntegrationZoom       IntegrationType = "zoom"
	IntegrationStripe     IntegrationType = "stripe"
	IntegrationPayPal     IntegrationType = "paypal"
)

// KnownIntegrationTypes - допустимые значения integration_type
var KnownIntegrationTypes = []IntegrationType{
	IntegrationSharePoint,
	IntegrationTeams,
	IntegrationZoom,
	IntegrationStripe,
	IntegrationPayPal,
}

// Статусы последней синхронизации
const (
	SyncStatusNever   = "never"
	SyncStatusSuccess = "success"
	SyncStatusError   = "error"
)

// SyncIntegration - настройки интеграции с внешней системой (SharePoint/Teams).
// Кешированный access token - изменяемое состояние, обновляется клиентом API
// прозрачно для остального кода.
type SyncIntegration struct {
	ID           int64           `json:"id" db:"id"`
	BranchID     string          `json:"branch_id" db:"branch_id"`
	Type         IntegrationType `json:"integration_type" db:"integration_type"`
	TenantID     string          `json:"tenant_id" db:"tenant_id"`
	ClientID     string          `json:"client_id" db:"client_id"`
	ClientSecret string          `json:"-" db:"client_secret"`
	SiteURL      string          `json:"site_url" db:"site_url"`

	UsersList       string `json:"users_list" db:"users_list"`
	EnrollmentsList string `json:"enrollments_list" db:"enrollments_list"`
	ProgressList    string `json:"progress_list" db:"progress_list"`
	CoursesList     string `json:"courses_list" db:"courses_list"`

	EnableUserSync       bool `json:"enable_user_sync" db:"enable_user_sync"`
	EnableEnrollmentSync bool `json:"enable_enrollment_sync" db:"enable_enrollment_sync"`
	EnableProgressSync   bool `json:"enable_progress_sync" db:"enable_progress_sync"`
	EnableCourseSync     bool `json:"enable_course_sync" db:"enable_course_sync"`

	AccessToken    string     `json:"-" db:"access_token"`
	TokenExpiresAt *time.Time `json:"-" db:"token_expires_at"`
	RefreshToken   string     `json:"-" db:"refresh_token"`

	LastSyncStatus string     `json:"last_sync_status" db:"last_sync_status"`
	LastSyncAt     *time.Time `json:"last_sync_at,omitempty" db:"last_sync_at"`
	LastSyncError  string     `json:"last_sync_error" db:"last_sync_error"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsKnownIntegrationType проверяет, что тег входит в закрытое множество
func IsKnownIntegrationType(t IntegrationType) bool {
	for _, known := range KnownIntegrationTypes {
		if t == known {
			return true
		}
	}
	return false
}
