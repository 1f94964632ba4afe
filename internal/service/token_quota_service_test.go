package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lmsadmin/internal/domain"
)

type fakeTokenLimits struct {
	limits map[string]*domain.TokenLimit
}

func (f *fakeTokenLimits) GetOrCreate(_ context.Context, branchID string) (*domain.TokenLimit, error) {
	if limit, ok := f.limits[branchID]; ok {
		return limit, nil
	}
	limit := &domain.TokenLimit{
		BranchID:                branchID,
		LimitTokens:             1000000,
		WarningThresholdPercent: 80,
	}
	if f.limits == nil {
		f.limits = make(map[string]*domain.TokenLimit)
	}
	f.limits[branchID] = limit
	return limit, nil
}

func (f *fakeTokenLimits) Update(_ context.Context, limit *domain.TokenLimit) error {
	f.limits[limit.BranchID] = limit
	return nil
}

// fakeTokenUsage считает расход за календарный месяц так же, как SQL-слой:
// по полуоткрытому интервалу [начало месяца, начало следующего)
type fakeTokenUsage struct {
	records []domain.TokenUsageRecord
	clock   func() time.Time
}

func (f *fakeTokenUsage) Create(_ context.Context, record *domain.TokenUsageRecord) error {
	record.CreatedAt = f.clock()
	f.records = append(f.records, *record)
	return nil
}

func (f *fakeTokenUsage) CurrentMonthUsage(_ context.Context, branchID string, now time.Time) (int64, error) {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 1, 0)
	var total int64
	for _, r := range f.records {
		if r.BranchID != branchID {
			continue
		}
		if !r.CreatedAt.Before(start) && r.CreatedAt.Before(end) {
			total += r.Tokens
		}
	}
	return total, nil
}

func newTokenFixture() (*TokenQuotaService, *fakeTokenLimits, *fakeTokenUsage, *fakeWarnings, *time.Time) {
	current := time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)
	branches := &fakeBranches{branches: map[string]string{"u1": "branch-1"}}
	limits := &fakeTokenLimits{}
	warnings := &fakeWarnings{}
	usage := &fakeTokenUsage{clock: func() time.Time { return current }}
	svc := NewTokenQuotaService(branches, limits, usage, warnings)
	svc.now = func() time.Time { return current }
	return svc, limits, usage, warnings, &current
}

func TestTokenCheck_AllowsWithinMonthlyLimit(t *testing.T) {
	svc, _, _, _, _ := newTokenFixture()

	assert.NoError(t, svc.Check(context.Background(), "u1", 4096))
}

func TestTokenCheck_DeniesWhenMonthExhausted(t *testing.T) {
	svc, limits, _, _, _ := newTokenFixture()
	limits.limits = map[string]*domain.TokenLimit{
		"branch-1": {BranchID: "branch-1", LimitTokens: 10000, WarningThresholdPercent: 80},
	}

	require.NoError(t, svc.Register(context.Background(), "u1", 9500, "claude-3-5-haiku-latest", domain.Provenance{}))

	err := svc.Check(context.Background(), "u1", 4096)
	require.Error(t, err)
	assert.True(t, IsQuotaExceeded(err))
	assert.Contains(t, err.Error(), "token quota exceeded")
}

func TestTokenCheck_NewMonthResetsTheWindow(t *testing.T) {
	svc, limits, _, _, current := newTokenFixture()
	limits.limits = map[string]*domain.TokenLimit{
		"branch-1": {BranchID: "branch-1", LimitTokens: 10000, WarningThresholdPercent: 80},
	}

	require.NoError(t, svc.Register(context.Background(), "u1", 9999, "claude-3-5-haiku-latest", domain.Provenance{}))
	require.Error(t, svc.Check(context.Background(), "u1", 4096))

	// Наступил апрель: мартовский расход остается в журнале, но в окно не попадает
	*current = time.Date(2025, time.April, 1, 0, 0, 1, 0, time.UTC)
	assert.NoError(t, svc.Check(context.Background(), "u1", 4096))

	info, err := svc.GetQuotaInfo(context.Background(), "branch-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.UsedTokens)
}

func TestTokenCheck_UserWithoutBranch(t *testing.T) {
	svc, _, _, _, _ := newTokenFixture()

	assert.ErrorIs(t, svc.Check(context.Background(), "stranger", 100), ErrNoBranch)
}

func TestTokenRegister_EmitsSingleWarningKind(t *testing.T) {
	svc, limits, _, warnings, _ := newTokenFixture()
	limits.limits = map[string]*domain.TokenLimit{
		"branch-1": {BranchID: "branch-1", LimitTokens: 1000, WarningThresholdPercent: 80},
	}

	// Порог пройден, лимит еще нет
	require.NoError(t, svc.Register(context.Background(), "u1", 850, "m", domain.Provenance{}))
	require.Len(t, warnings.warnings, 1)
	assert.Equal(t, domain.WarningThreshold, warnings.warnings[0].Kind)

	// Лимит превышен: выписывается именно exceeded, не второй threshold
	require.NoError(t, svc.Register(context.Background(), "u1", 500, "m", domain.Provenance{}))
	require.Len(t, warnings.warnings, 2)
	assert.Equal(t, domain.WarningLimitExceeded, warnings.warnings[1].Kind)
}

func TestTokenGetQuotaInfo(t *testing.T) {
	svc, limits, _, _, _ := newTokenFixture()
	limits.limits = map[string]*domain.TokenLimit{
		"branch-1": {BranchID: "branch-1", LimitTokens: 1000, WarningThresholdPercent: 80},
	}
	require.NoError(t, svc.Register(context.Background(), "u1", 250, "m", domain.Provenance{}))

	info, err := svc.GetQuotaInfo(context.Background(), "branch-1")
	require.NoError(t, err)
	assert.Equal(t, int64(250), info.UsedTokens)
	assert.Equal(t, int64(750), info.AvailableTokens)
	assert.InDelta(t, 25.0, info.UsagePercent, 0.01)
}

func TestTokenUpdateLimit_Validation(t *testing.T) {
	svc, _, _, _, _ := newTokenFixture()

	_, err := svc.UpdateLimit(context.Background(), "branch-1", -5, false, 80, "admin")
	assert.Error(t, err)

	_, err = svc.UpdateLimit(context.Background(), "branch-1", 1000, false, 101, "admin")
	assert.Error(t, err)

	limit, err := svc.UpdateLimit(context.Background(), "branch-1", 500000, true, 90, "admin")
	require.NoError(t, err)
	assert.True(t, limit.IsUnlimited)
	assert.Equal(t, int64(500000), limit.LimitTokens)
}
