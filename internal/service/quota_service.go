package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"lmsadmin/internal/domain"
)

// Окно дедупликации предупреждений: не больше одного предупреждения
// вида (branch, kind) в час
const warningDedupWindow = time.Hour

// BranchResolver определяет филиал пользователя
type BranchResolver interface {
	BranchForUser(ctx context.Context, userID string) (string, error)
}

type StorageLimitStore interface {
	GetOrCreate(ctx context.Context, branchID string) (*domain.StorageLimit, error)
	Update(ctx context.Context, limit *domain.StorageLimit) error
}

type UsageRecordStore interface {
	FindActive(ctx context.Context, ownerID, path string) (*domain.StorageUsageRecord, error)
	Create(ctx context.Context, record *domain.StorageUsageRecord) error
	BranchUsage(ctx context.Context, branchID string) (int64, error)
	MarkDeleted(ctx context.Context, ownerID, path string) error
	ListByBranch(ctx context.Context, branchID string) ([]domain.StorageUsageRecord, error)
}

type WarningStore interface {
	Create(ctx context.Context, warning *domain.QuotaWarning) error
	ExistsSince(ctx context.Context, branchID string, kind domain.WarningKind, since time.Time) (bool, error)
	ListByBranch(ctx context.Context, branchID string, limit int) ([]domain.QuotaWarning, error)
}

// QuotaService - учет и контроль квот хранилища на уровне филиала.
// Использование всегда считается агрегатом по журналу записей,
// кэшированных счетчиков нет.
type QuotaService struct {
	branches BranchResolver
	limits   StorageLimitStore
	usage    UsageRecordStore
	warnings WarningStore
}

func NewQuotaService(branches BranchResolver, limits StorageLimitStore, usage UsageRecordStore, warnings WarningStore) *QuotaService {
	return &QuotaService{
		branches: branches,
		limits:   limits,
		usage:    usage,
		warnings: warnings,
	}
}

// Check проверяет, поместится ли файл размером sizeBytes в квоту филиала
// пользователя. Ничего не записывает: размещение фиксируется отдельно
// через Register.
func (s *QuotaService) Check(ctx context.Context, userID string, sizeBytes int64) error {
	branchID, err := s.branches.BranchForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to resolve branch: %w", err)
	}
	if branchID == "" {
		return ErrNoBranch
	}

	limit, err := s.limits.GetOrCreate(ctx, branchID)
	if err != nil {
		return fmt.Errorf("failed to get storage limit: %w", err)
	}
	if limit.IsUnlimited {
		return nil
	}

	used, err := s.usage.BranchUsage(ctx, branchID)
	if err != nil {
		return fmt.Errorf("failed to calculate branch usage: %w", err)
	}

	if used+sizeBytes > limit.LimitBytes {
		return &QuotaExceededError{
			BranchID:  branchID,
			Limit:     limit.LimitBytes,
			Current:   used,
			Requested: sizeBytes,
			Human: fmt.Sprintf("storage quota exceeded: used %s of %s, file of %s does not fit",
				humanizeBytes(used), humanizeBytes(limit.LimitBytes), humanizeBytes(sizeBytes)),
		}
	}
	return nil
}

// Register фиксирует размещенный файл в журнале использования. Повторный
// вызов с той же парой (owner, path) возвращает существующую запись и не
// удваивает расход.
func (s *QuotaService) Register(ctx context.Context, userID, path, filename string, sizeBytes int64, contentType string, prov domain.Provenance) (*domain.StorageUsageRecord, error) {
	branchID, err := s.branches.BranchForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve branch: %w", err)
	}
	if branchID == "" {
		return nil, ErrNoBranch
	}

	existing, err := s.usage.FindActive(ctx, userID, path)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing usage record: %w", err)
	}
	if existing != nil {
		log.Printf("[Quota] duplicate registration of %s by %s, returning existing record %d",
			path, userID, existing.ID)
		return existing, nil
	}

	record := &domain.StorageUsageRecord{
		BranchID:     branchID,
		OwnerID:      userID,
		Path:         path,
		Filename:     filename,
		SizeBytes:    sizeBytes,
		ContentType:  contentType,
		SourceApp:    prov.SourceApp,
		SourceEntity: prov.SourceEntity,
		SourceID:     prov.SourceID,
	}
	if err := s.usage.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create usage record: %w", err)
	}

	// Ошибка выдачи предупреждения не отменяет регистрацию
	if err := s.evaluateWarnings(ctx, branchID, userID); err != nil {
		log.Printf("[Quota] failed to evaluate warnings for branch %s: %v", branchID, err)
	}

	return record, nil
}

// MarkDeleted помечает запись (owner, path) удаленной, освобождая место
// в квоте. Физически журнал не чистится.
func (s *QuotaService) MarkDeleted(ctx context.Context, userID, path string) error {
	if err := s.usage.MarkDeleted(ctx, userID, path); err != nil {
		return fmt.Errorf("failed to mark usage record deleted: %w", err)
	}
	return nil
}

// GetQuotaInfo возвращает сводку по квоте филиала
func (s *QuotaService) GetQuotaInfo(ctx context.Context, branchID string) (*domain.QuotaInfo, error) {
	limit, err := s.limits.GetOrCreate(ctx, branchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get storage limit: %w", err)
	}

	used, err := s.usage.BranchUsage(ctx, branchID)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate branch usage: %w", err)
	}

	info := &domain.QuotaInfo{
		BranchID:    branchID,
		LimitBytes:  limit.LimitBytes,
		UsedBytes:   used,
		IsUnlimited: limit.IsUnlimited,
	}
	if !limit.IsUnlimited && limit.LimitBytes > 0 {
		info.AvailableBytes = limit.LimitBytes - used
		if info.AvailableBytes < 0 {
			info.AvailableBytes = 0
		}
		info.UsagePercent = float64(used) / float64(limit.LimitBytes) * 100
	}
	return info, nil
}

// UpdateLimit меняет лимит филиала. Лимит никогда не удаляется:
// безлимит включается флагом.
func (s *QuotaService) UpdateLimit(ctx context.Context, branchID string, limitBytes int64, isUnlimited bool, thresholdPercent int, updatedBy string) (*domain.StorageLimit, error) {
	if limitBytes < 0 {
		return nil, fmt.Errorf("limit cannot be negative")
	}
	if thresholdPercent < 0 || thresholdPercent > 100 {
		return nil, fmt.Errorf("warning threshold must be between 0 and 100")
	}

	limit, err := s.limits.GetOrCreate(ctx, branchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get storage limit: %w", err)
	}

	limit.LimitBytes = limitBytes
	limit.IsUnlimited = isUnlimited
	limit.WarningThresholdPercent = thresholdPercent
	limit.UpdatedBy = updatedBy
	if err := s.limits.Update(ctx, limit); err != nil {
		return nil, fmt.Errorf("failed to update storage limit: %w", err)
	}
	return limit, nil
}

// ListUsage возвращает журнал использования филиала
func (s *QuotaService) ListUsage(ctx context.Context, branchID string) ([]domain.StorageUsageRecord, error) {
	return s.usage.ListByBranch(ctx, branchID)
}

// ListWarnings возвращает последние предупреждения филиала
func (s *QuotaService) ListWarnings(ctx context.Context, branchID string, limit int) ([]domain.QuotaWarning, error) {
	return s.warnings.ListByBranch(ctx, branchID, limit)
}

// evaluateWarnings проверяет текущее использование против порога и лимита
// и выписывает предупреждения с дедупликацией по часовому окну
func (s *QuotaService) evaluateWarnings(ctx context.Context, branchID, triggeredBy string) error {
	limit, err := s.limits.GetOrCreate(ctx, branchID)
	if err != nil {
		return err
	}
	if limit.IsUnlimited || limit.LimitBytes <= 0 {
		return nil
	}

	used, err := s.usage.BranchUsage(ctx, branchID)
	if err != nil {
		return err
	}
	percent := float64(used) / float64(limit.LimitBytes) * 100

	if used > limit.LimitBytes {
		if err := s.emitWarning(ctx, branchID, domain.WarningLimitExceeded, percent, used, limit.LimitBytes, triggeredBy); err != nil {
			return err
		}
		return s.emitWarning(ctx, branchID, domain.WarningAdminNotice, percent, used, limit.LimitBytes, triggeredBy)
	}

	if percent >= float64(limit.WarningThresholdPercent) {
		return s.emitWarning(ctx, branchID, domain.WarningThreshold, percent, used, limit.LimitBytes, triggeredBy)
	}
	return nil
}

func (s *QuotaService) emitWarning(ctx context.Context, branchID string, kind domain.WarningKind, percent float64, used, limitBytes int64, triggeredBy string) error {
	since := time.Now().Add(-warningDedupWindow)
	exists, err := s.warnings.ExistsSince(ctx, branchID, kind, since)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	log.Printf("[Quota] branch %s %s: %.1f%% used (%s of %s)",
		branchID, kind, percent, humanizeBytes(used), humanizeBytes(limitBytes))

	return s.warnings.Create(ctx, &domain.QuotaWarning{
		BranchID:     branchID,
		Kind:         kind,
		UsagePercent: percent,
		UsageBytes:   used,
		LimitBytes:   limitBytes,
		TriggeredBy:  triggeredBy,
	})
}

// humanizeBytes печатает размер в двоичных единицах с одним знаком
// после запятой: 1.0GB, 190.7MB
func humanizeBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%cB", float64(b)/float64(div), "KMGTPE"[exp])
}
