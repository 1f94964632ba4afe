package service

import (
	"context"
	"fmt"
	"strings"

	"lmsadmin/internal/domain"
)

type IntegrationStore interface {
	GetByID(ctx context.Context, id int64) (*domain.SyncIntegration, error)
	ListByBranch(ctx context.Context, branchID string) ([]domain.SyncIntegration, error)
	Create(ctx context.Context, integ *domain.SyncIntegration) error
	Update(ctx context.Context, integ *domain.SyncIntegration) error
}

type ConnectionTester interface {
	TestConnection(ctx context.Context, integ *domain.SyncIntegration) (bool, string)
}

type JobDispatcher interface {
	Submit(ctx context.Context, job *domain.SyncJob) error
}

type JobReader interface {
	GetByID(ctx context.Context, id string) (*domain.SyncJob, error)
}

type ReviewReader interface {
	ListOpen(ctx context.Context, integrationID int64) ([]domain.ManualReviewItem, error)
	Resolve(ctx context.Context, id int64) error
}

// IntegrationService - настройка интеграций, проверка подключения и запуск
// синхронизации через планировщик задач.
type IntegrationService struct {
	integrations IntegrationStore
	tester       ConnectionTester
	dispatcher   JobDispatcher
	jobs         JobReader
	reviews      ReviewReader
}

func NewIntegrationService(integrations IntegrationStore, tester ConnectionTester, dispatcher JobDispatcher, jobs JobReader, reviews ReviewReader) *IntegrationService {
	return &IntegrationService{
		integrations: integrations,
		tester:       tester,
		dispatcher:   dispatcher,
		jobs:         jobs,
		reviews:      reviews,
	}
}

func (s *IntegrationService) GetByID(ctx context.Context, id int64) (*domain.SyncIntegration, error) {
	return s.integrations.GetByID(ctx, id)
}

func (s *IntegrationService) ListByBranch(ctx context.Context, branchID string) ([]domain.SyncIntegration, error) {
	return s.integrations.ListByBranch(ctx, branchID)
}

// Create валидирует и сохраняет новую интеграцию
func (s *IntegrationService) Create(ctx context.Context, integ *domain.SyncIntegration) error {
	if err := validateIntegration(integ); err != nil {
		return err
	}
	integ.LastSyncStatus = domain.SyncStatusNever
	if err := s.integrations.Create(ctx, integ); err != nil {
		return fmt.Errorf("failed to create integration: %w", err)
	}
	return nil
}

// Update сохраняет изменения настроек. Смена учетных данных сбрасывает
// кешированный токен - этим занимается репозиторий.
func (s *IntegrationService) Update(ctx context.Context, integ *domain.SyncIntegration) error {
	if err := validateIntegration(integ); err != nil {
		return err
	}
	if err := s.integrations.Update(ctx, integ); err != nil {
		return fmt.Errorf("failed to update integration: %w", err)
	}
	return nil
}

// TestConnection проверяет учетные данные интеграции без запуска
// синхронизации. Возвращает флаг успеха и человекочитаемую причину отказа.
func (s *IntegrationService) TestConnection(ctx context.Context, id int64) (bool, string, error) {
	integ, err := s.integrations.GetByID(ctx, id)
	if err != nil {
		return false, "", fmt.Errorf("failed to get integration: %w", err)
	}
	ok, reason := s.tester.TestConnection(ctx, integ)
	return ok, reason, nil
}

// TriggerSync ставит задачу полной синхронизации интеграции и сразу
// возвращает ее id для опроса статуса
func (s *IntegrationService) TriggerSync(ctx context.Context, integrationID int64) (*domain.SyncJob, error) {
	integ, err := s.integrations.GetByID(ctx, integrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get integration: %w", err)
	}
	if !integ.EnableUserSync && !integ.EnableEnrollmentSync && !integ.EnableProgressSync && !integ.EnableCourseSync {
		return nil, ErrIntegrationDisabled
	}

	job := &domain.SyncJob{
		Kind:          domain.JobKindSync,
		IntegrationID: integrationID,
	}
	if err := s.dispatcher.Submit(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to submit sync job: %w", err)
	}
	return job, nil
}

// JobStatus возвращает текущее состояние фоновой задачи
func (s *IntegrationService) JobStatus(ctx context.Context, jobID string) (*domain.SyncJob, error) {
	return s.jobs.GetByID(ctx, jobID)
}

// OpenReviews возвращает неразобранные конфликты синхронизации
func (s *IntegrationService) OpenReviews(ctx context.Context, integrationID int64) ([]domain.ManualReviewItem, error) {
	return s.reviews.ListOpen(ctx, integrationID)
}

// ResolveReview закрывает конфликт после ручного разбора
func (s *IntegrationService) ResolveReview(ctx context.Context, reviewID int64) error {
	return s.reviews.Resolve(ctx, reviewID)
}

func validateIntegration(integ *domain.SyncIntegration) error {
	if !domain.IsKnownIntegrationType(integ.Type) {
		return fmt.Errorf("%w: %q", ErrUnknownIntegrationType, integ.Type)
	}
	if strings.TrimSpace(integ.BranchID) == "" {
		return fmt.Errorf("branch_id is required")
	}

	switch integ.Type {
	case domain.IntegrationSharePoint, domain.IntegrationTeams:
		if strings.TrimSpace(integ.TenantID) == "" {
			return fmt.Errorf("tenant_id is required for %s integration", integ.Type)
		}
		if strings.TrimSpace(integ.ClientID) == "" || strings.TrimSpace(integ.ClientSecret) == "" {
			return fmt.Errorf("client credentials are required for %s integration", integ.Type)
		}
	}

	if integ.Type == domain.IntegrationSharePoint {
		if strings.TrimSpace(integ.SiteURL) == "" {
			return fmt.Errorf("site_url is required for sharepoint integration")
		}
		if !strings.HasPrefix(integ.SiteURL, "https://") {
			return fmt.Errorf("site_url must start with https://")
		}
	}
	return nil
}
