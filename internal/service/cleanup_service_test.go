package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lmsadmin/internal/domain"
	"lmsadmin/internal/storage"
)

type fakeCleanupStore struct {
	records []domain.StorageUsageRecord
	deleted []int64
}

func (f *fakeCleanupStore) ListActive(_ context.Context, limit int) ([]domain.StorageUsageRecord, error) {
	if len(f.records) > limit {
		return f.records[:limit], nil
	}
	return f.records, nil
}

func (f *fakeCleanupStore) MarkDeletedByID(_ context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeProber struct {
	results map[string]storage.ProbeResult
	errs    map[string]error
}

func (f *fakeProber) Probe(_ context.Context, key string) (storage.ProbeResult, error) {
	if err, ok := f.errs[key]; ok {
		return storage.ProbeExists, err
	}
	return f.results[key], nil
}

func TestCleanupRun_FreesOnlyConfirmedMissing(t *testing.T) {
	store := &fakeCleanupStore{records: []domain.StorageUsageRecord{
		{ID: 1, Path: "a", SizeBytes: 100},
		{ID: 2, Path: "b", SizeBytes: 200},
		{ID: 3, Path: "c", SizeBytes: 300},
	}}
	prober := &fakeProber{results: map[string]storage.ProbeResult{
		"a": storage.ProbeNotFound,
		"b": storage.ProbeExists,
		"c": storage.ProbeNotFound,
	}}
	svc := NewCleanupService(store, prober)

	result, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Checked)
	assert.Equal(t, 2, result.Freed)
	assert.Equal(t, 0, result.Skipped)
	assert.ElementsMatch(t, []int64{1, 3}, store.deleted)
}

func TestCleanupRun_ForbiddenIsNotTreatedAsMissing(t *testing.T) {
	store := &fakeCleanupStore{records: []domain.StorageUsageRecord{
		{ID: 1, Path: "a", SizeBytes: 100},
	}}
	prober := &fakeProber{results: map[string]storage.ProbeResult{
		"a": storage.ProbeForbidden,
	}}
	svc := NewCleanupService(store, prober)

	result, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Freed)
	assert.Empty(t, store.deleted)
}

func TestCleanupRun_ProbeErrorCountsButDoesNotStopPass(t *testing.T) {
	store := &fakeCleanupStore{records: []domain.StorageUsageRecord{
		{ID: 1, Path: "broken"},
		{ID: 2, Path: "gone"},
	}}
	prober := &fakeProber{
		results: map[string]storage.ProbeResult{"gone": storage.ProbeNotFound},
		errs:    map[string]error{"broken": errors.New("connection reset")},
	}
	svc := NewCleanupService(store, prober)

	result, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Errors)
	assert.Equal(t, 1, result.Freed)
	assert.Equal(t, []int64{2}, store.deleted)
}

func TestCleanupRun_RespectsBatchSize(t *testing.T) {
	store := &fakeCleanupStore{}
	for i := int64(1); i <= 10; i++ {
		store.records = append(store.records, domain.StorageUsageRecord{ID: i, Path: "p"})
	}
	prober := &fakeProber{results: map[string]storage.ProbeResult{"p": storage.ProbeExists}}
	svc := NewCleanupService(store, prober)
	svc.batchSize = 4

	result, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, result.Checked)
}
