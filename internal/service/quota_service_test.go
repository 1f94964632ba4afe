package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lmsadmin/internal/domain"
)

type fakeBranches struct {
	branches map[string]string
}

func (f *fakeBranches) BranchForUser(_ context.Context, userID string) (string, error) {
	return f.branches[userID], nil
}

type fakeLimits struct {
	limits map[string]*domain.StorageLimit
}

func (f *fakeLimits) GetOrCreate(_ context.Context, branchID string) (*domain.StorageLimit, error) {
	if limit, ok := f.limits[branchID]; ok {
		return limit, nil
	}
	limit := &domain.StorageLimit{
		BranchID:                branchID,
		LimitBytes:              5368709120,
		WarningThresholdPercent: 80,
	}
	if f.limits == nil {
		f.limits = make(map[string]*domain.StorageLimit)
	}
	f.limits[branchID] = limit
	return limit, nil
}

func (f *fakeLimits) Update(_ context.Context, limit *domain.StorageLimit) error {
	f.limits[limit.BranchID] = limit
	return nil
}

type fakeUsage struct {
	records []domain.StorageUsageRecord
	nextID  int64
}

func (f *fakeUsage) FindActive(_ context.Context, ownerID, path string) (*domain.StorageUsageRecord, error) {
	for i := range f.records {
		r := &f.records[i]
		if r.OwnerID == ownerID && r.Path == path && !r.IsDeleted {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeUsage) Create(_ context.Context, record *domain.StorageUsageRecord) error {
	f.nextID++
	record.ID = f.nextID
	f.records = append(f.records, *record)
	return nil
}

func (f *fakeUsage) BranchUsage(_ context.Context, branchID string) (int64, error) {
	var total int64
	for _, r := range f.records {
		if r.BranchID == branchID && !r.IsDeleted {
			total += r.SizeBytes
		}
	}
	return total, nil
}

func (f *fakeUsage) MarkDeleted(_ context.Context, ownerID, path string) error {
	for i := range f.records {
		r := &f.records[i]
		if r.OwnerID == ownerID && r.Path == path && !r.IsDeleted {
			r.IsDeleted = true
			return nil
		}
	}
	return assert.AnError
}

func (f *fakeUsage) ListByBranch(_ context.Context, branchID string) ([]domain.StorageUsageRecord, error) {
	var out []domain.StorageUsageRecord
	for _, r := range f.records {
		if r.BranchID == branchID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeWarnings struct {
	warnings []domain.QuotaWarning
}

func (f *fakeWarnings) Create(_ context.Context, warning *domain.QuotaWarning) error {
	warning.CreatedAt = time.Now()
	f.warnings = append(f.warnings, *warning)
	return nil
}

func (f *fakeWarnings) ExistsSince(_ context.Context, branchID string, kind domain.WarningKind, since time.Time) (bool, error) {
	for _, w := range f.warnings {
		if w.BranchID == branchID && w.Kind == kind && w.CreatedAt.After(since) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeWarnings) ListByBranch(_ context.Context, branchID string, _ int) ([]domain.QuotaWarning, error) {
	var out []domain.QuotaWarning
	for _, w := range f.warnings {
		if w.BranchID == branchID {
			out = append(out, w)
		}
	}
	return out, nil
}

func newQuotaFixture() (*QuotaService, *fakeLimits, *fakeUsage, *fakeWarnings) {
	branches := &fakeBranches{branches: map[string]string{"u1": "branch-1"}}
	limits := &fakeLimits{}
	usage := &fakeUsage{}
	warnings := &fakeWarnings{}
	return NewQuotaService(branches, limits, usage, warnings), limits, usage, warnings
}

func TestCheck_AllowsWithinLimit(t *testing.T) {
	svc, _, _, _ := newQuotaFixture()

	err := svc.Check(context.Background(), "u1", 1024)
	assert.NoError(t, err)
}

func TestCheck_DeniesOverLimitWithHumanReadableFigures(t *testing.T) {
	svc, limits, usage, _ := newQuotaFixture()
	limits.limits = map[string]*domain.StorageLimit{
		"branch-1": {BranchID: "branch-1", LimitBytes: 1073741824, WarningThresholdPercent: 80},
	}
	usage.records = append(usage.records, domain.StorageUsageRecord{
		BranchID: "branch-1", OwnerID: "u1", Path: "a", SizeBytes: 1000000000,
	})

	err := svc.Check(context.Background(), "u1", 200000000)
	require.Error(t, err)
	assert.True(t, IsQuotaExceeded(err))
	assert.Contains(t, err.Error(), "1.0GB")
	assert.Contains(t, err.Error(), "190.7MB")
}

func TestCheck_UnlimitedBranchAlwaysAllowed(t *testing.T) {
	svc, limits, usage, _ := newQuotaFixture()
	limits.limits = map[string]*domain.StorageLimit{
		"branch-1": {BranchID: "branch-1", LimitBytes: 100, IsUnlimited: true},
	}
	usage.records = append(usage.records, domain.StorageUsageRecord{
		BranchID: "branch-1", OwnerID: "u1", Path: "a", SizeBytes: 1 << 40,
	})

	assert.NoError(t, svc.Check(context.Background(), "u1", 1<<40))
}

func TestCheck_UserWithoutBranchIsConfigurationError(t *testing.T) {
	svc, _, _, _ := newQuotaFixture()

	err := svc.Check(context.Background(), "stranger", 1024)
	assert.ErrorIs(t, err, ErrNoBranch)
}

func TestRegister_IsIdempotentByOwnerAndPath(t *testing.T) {
	svc, _, usage, _ := newQuotaFixture()

	first, err := svc.Register(context.Background(), "u1", "files/report.pdf", "report.pdf", 1024, "application/pdf", domain.Provenance{})
	require.NoError(t, err)

	second, err := svc.Register(context.Background(), "u1", "files/report.pdf", "report.pdf", 1024, "application/pdf", domain.Provenance{})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	// Расход не удвоился
	used, err := usage.BranchUsage(context.Background(), "branch-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1024), used)
}

func TestRegister_AfterDeleteCreatesNewRecord(t *testing.T) {
	svc, _, usage, _ := newQuotaFixture()

	first, err := svc.Register(context.Background(), "u1", "files/a.txt", "a.txt", 100, "text/plain", domain.Provenance{})
	require.NoError(t, err)

	require.NoError(t, svc.MarkDeleted(context.Background(), "u1", "files/a.txt"))

	second, err := svc.Register(context.Background(), "u1", "files/a.txt", "a.txt", 200, "text/plain", domain.Provenance{})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	used, _ := usage.BranchUsage(context.Background(), "branch-1")
	assert.Equal(t, int64(200), used)
}

func TestRegister_EmitsThresholdWarningOnce(t *testing.T) {
	svc, limits, _, warnings := newQuotaFixture()
	limits.limits = map[string]*domain.StorageLimit{
		"branch-1": {BranchID: "branch-1", LimitBytes: 1000, WarningThresholdPercent: 80},
	}

	_, err := svc.Register(context.Background(), "u1", "a", "a", 850, "", domain.Provenance{})
	require.NoError(t, err)
	require.Len(t, warnings.warnings, 1)
	assert.Equal(t, domain.WarningThreshold, warnings.warnings[0].Kind)

	// Повторное предупреждение того же вида в пределах часа не выписывается
	_, err = svc.Register(context.Background(), "u1", "b", "b", 10, "", domain.Provenance{})
	require.NoError(t, err)
	assert.Len(t, warnings.warnings, 1)
}

func TestRegister_ExceedingLimitEmitsAdminNotice(t *testing.T) {
	svc, limits, _, warnings := newQuotaFixture()
	limits.limits = map[string]*domain.StorageLimit{
		"branch-1": {BranchID: "branch-1", LimitBytes: 1000, WarningThresholdPercent: 80},
	}

	// Регистрация не блокируется квотой: проверка - отдельная операция
	_, err := svc.Register(context.Background(), "u1", "big", "big", 1500, "", domain.Provenance{})
	require.NoError(t, err)

	kinds := make(map[domain.WarningKind]bool)
	for _, w := range warnings.warnings {
		kinds[w.Kind] = true
	}
	assert.True(t, kinds[domain.WarningLimitExceeded])
	assert.True(t, kinds[domain.WarningAdminNotice])
}

func TestGetQuotaInfo_ComputesUsageFromLedger(t *testing.T) {
	svc, limits, usage, _ := newQuotaFixture()
	limits.limits = map[string]*domain.StorageLimit{
		"branch-1": {BranchID: "branch-1", LimitBytes: 1000, WarningThresholdPercent: 80},
	}
	usage.records = []domain.StorageUsageRecord{
		{BranchID: "branch-1", OwnerID: "u1", Path: "a", SizeBytes: 300},
		{BranchID: "branch-1", OwnerID: "u1", Path: "b", SizeBytes: 200, IsDeleted: true},
	}

	info, err := svc.GetQuotaInfo(context.Background(), "branch-1")
	require.NoError(t, err)
	assert.Equal(t, int64(300), info.UsedBytes)
	assert.Equal(t, int64(700), info.AvailableBytes)
	assert.InDelta(t, 30.0, info.UsagePercent, 0.01)
}

func TestUpdateLimit_Validation(t *testing.T) {
	svc, _, _, _ := newQuotaFixture()

	_, err := svc.UpdateLimit(context.Background(), "branch-1", -1, false, 80, "admin")
	assert.Error(t, err)

	_, err = svc.UpdateLimit(context.Background(), "branch-1", 1000, false, 150, "admin")
	assert.Error(t, err)

	limit, err := svc.UpdateLimit(context.Background(), "branch-1", 1000, false, 90, "admin")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), limit.LimitBytes)
	assert.Equal(t, 90, limit.WarningThresholdPercent)
	assert.Equal(t, "admin", limit.UpdatedBy)
}

func TestHumanizeBytes(t *testing.T) {
	assert.Equal(t, "512B", humanizeBytes(512))
	assert.Equal(t, "1.0KB", humanizeBytes(1024))
	assert.Equal(t, "1.0GB", humanizeBytes(1073741824))
	assert.Equal(t, "190.7MB", humanizeBytes(200000000))
}
