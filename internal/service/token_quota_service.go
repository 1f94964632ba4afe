package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"lmsadmin/internal/domain"
)

type TokenLimitStore interface {
	GetOrCreate(ctx context.Context, branchID string) (*domain.TokenLimit, error)
	Update(ctx context.Context, limit *domain.TokenLimit) error
}

type TokenUsageStore interface {
	Create(ctx context.Context, record *domain.TokenUsageRecord) error
	CurrentMonthUsage(ctx context.Context, branchID string, now time.Time) (int64, error)
}

// TokenQuotaService - учет расхода AI-токенов по филиалам. Окно учета -
// календарный месяц: в начале месяца счетчик начинается заново, записи
// прошлых месяцев остаются в журнале.
type TokenQuotaService struct {
	branches BranchResolver
	limits   TokenLimitStore
	usage    TokenUsageStore
	warnings WarningStore
	now      func() time.Time
}

func NewTokenQuotaService(branches BranchResolver, limits TokenLimitStore, usage TokenUsageStore, warnings WarningStore) *TokenQuotaService {
	return &TokenQuotaService{
		branches: branches,
		limits:   limits,
		usage:    usage,
		warnings: warnings,
		now:      time.Now,
	}
}

// Check проверяет, укладывается ли заявленный расход в месячный лимит
// филиала пользователя
func (s *TokenQuotaService) Check(ctx context.Context, userID string, tokens int64) error {
	branchID, err := s.branches.BranchForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to resolve branch: %w", err)
	}
	if branchID == "" {
		return ErrNoBranch
	}

	limit, err := s.limits.GetOrCreate(ctx, branchID)
	if err != nil {
		return fmt.Errorf("failed to get token limit: %w", err)
	}
	if limit.IsUnlimited {
		return nil
	}

	used, err := s.usage.CurrentMonthUsage(ctx, branchID, s.now())
	if err != nil {
		return fmt.Errorf("failed to calculate token usage: %w", err)
	}

	if used+tokens > limit.LimitTokens {
		return &QuotaExceededError{
			BranchID:  branchID,
			Limit:     limit.LimitTokens,
			Current:   used,
			Requested: tokens,
			Human: fmt.Sprintf("token quota exceeded: %d of %d tokens used this month, requested %d more",
				used, limit.LimitTokens, tokens),
		}
	}
	return nil
}

// Register фиксирует фактический расход токенов. Вызывается после
// ответа модели, когда известны реальные цифры.
func (s *TokenQuotaService) Register(ctx context.Context, userID string, tokens int64, model string, prov domain.Provenance) error {
	branchID, err := s.branches.BranchForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to resolve branch: %w", err)
	}
	if branchID == "" {
		return ErrNoBranch
	}

	record := &domain.TokenUsageRecord{
		BranchID:     branchID,
		OwnerID:      userID,
		Tokens:       tokens,
		Model:        model,
		SourceApp:    prov.SourceApp,
		SourceEntity: prov.SourceEntity,
		SourceID:     prov.SourceID,
	}
	if err := s.usage.Create(ctx, record); err != nil {
		return fmt.Errorf("failed to create token usage record: %w", err)
	}

	if err := s.evaluateWarnings(ctx, branchID, userID); err != nil {
		log.Printf("[TokenQuota] failed to evaluate warnings for branch %s: %v", branchID, err)
	}
	return nil
}

// GetQuotaInfo возвращает сводку расхода за текущий месяц
func (s *TokenQuotaService) GetQuotaInfo(ctx context.Context, branchID string) (*domain.TokenQuotaInfo, error) {
	limit, err := s.limits.GetOrCreate(ctx, branchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get token limit: %w", err)
	}

	used, err := s.usage.CurrentMonthUsage(ctx, branchID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to calculate token usage: %w", err)
	}

	info := &domain.TokenQuotaInfo{
		BranchID:    branchID,
		LimitTokens: limit.LimitTokens,
		UsedTokens:  used,
		IsUnlimited: limit.IsUnlimited,
	}
	if !limit.IsUnlimited && limit.LimitTokens > 0 {
		info.AvailableTokens = limit.LimitTokens - used
		if info.AvailableTokens < 0 {
			info.AvailableTokens = 0
		}
		info.UsagePercent = float64(used) / float64(limit.LimitTokens) * 100
	}
	return info, nil
}

// UpdateLimit меняет месячный лимит токенов филиала
func (s *TokenQuotaService) UpdateLimit(ctx context.Context, branchID string, limitTokens int64, isUnlimited bool, thresholdPercent int, updatedBy string) (*domain.TokenLimit, error) {
	if limitTokens < 0 {
		return nil, fmt.Errorf("limit cannot be negative")
	}
	if thresholdPercent < 0 || thresholdPercent > 100 {
		return nil, fmt.Errorf("warning threshold must be between 0 and 100")
	}

	limit, err := s.limits.GetOrCreate(ctx, branchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get token limit: %w", err)
	}

	limit.LimitTokens = limitTokens
	limit.IsUnlimited = isUnlimited
	limit.WarningThresholdPercent = thresholdPercent
	limit.UpdatedBy = updatedBy
	if err := s.limits.Update(ctx, limit); err != nil {
		return nil, fmt.Errorf("failed to update token limit: %w", err)
	}
	return limit, nil
}

func (s *TokenQuotaService) evaluateWarnings(ctx context.Context, branchID, triggeredBy string) error {
	limit, err := s.limits.GetOrCreate(ctx, branchID)
	if err != nil {
		return err
	}
	if limit.IsUnlimited || limit.LimitTokens <= 0 {
		return nil
	}

	used, err := s.usage.CurrentMonthUsage(ctx, branchID, s.now())
	if err != nil {
		return err
	}
	percent := float64(used) / float64(limit.LimitTokens) * 100

	var kind domain.WarningKind
	switch {
	case used > limit.LimitTokens:
		kind = domain.WarningLimitExceeded
	case percent >= float64(limit.WarningThresholdPercent):
		kind = domain.WarningThreshold
	default:
		return nil
	}

	since := s.now().Add(-warningDedupWindow)
	exists, err := s.warnings.ExistsSince(ctx, branchID, kind, since)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	log.Printf("[TokenQuota] branch %s %s: %.1f%% of monthly tokens used", branchID, kind, percent)

	return s.warnings.Create(ctx, &domain.QuotaWarning{
		BranchID:     branchID,
		Kind:         kind,
		UsagePercent: percent,
		UsageBytes:   used,
		LimitBytes:   limit.LimitTokens,
		TriggeredBy:  triggeredBy,
	})
}
