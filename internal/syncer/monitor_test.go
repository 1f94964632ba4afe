package syncer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lmsadmin/internal/domain"
	"lmsadmin/internal/graph"
)

type countingRemote struct {
	fakeRemote
	calls map[string]int
}

func (c *countingRemote) GetListItems(ctx context.Context, integ *domain.SyncIntegration, listName string) ([]graph.ListItem, error) {
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[listName]++
	return c.fakeRemote.GetListItems(ctx, integ, listName)
}

type fakeStatusStore struct {
	status     string
	errMessage string
	calls      int
}

func (f *fakeStatusStore) UpdateSyncStatus(_ context.Context, _ int64, status, errMessage string) error {
	f.calls++
	f.status = status
	f.errMessage = errMessage
	return nil
}

func monitorIntegration() *domain.SyncIntegration {
	integ := testIntegration()
	integ.EnableUserSync = true
	integ.EnableProgressSync = true
	return integ
}

func newTestMonitor(remote RemoteClient, local *fakeLocal, status IntegrationStatusStore) *Monitor {
	engine := NewEngine(remote, local, &fakeReviews{})
	return NewMonitor(remote, engine, status)
}

func TestPoll_OnlyEnabledTypesAreFetched(t *testing.T) {
	remote := &countingRemote{fakeRemote: fakeRemote{items: map[string][]graph.ListItem{}}}
	status := &fakeStatusStore{}
	m := newTestMonitor(remote, &fakeLocal{}, status)

	report := m.Poll(context.Background(), monitorIntegration())

	assert.Contains(t, report.Types, domain.EntityUser)
	assert.Contains(t, report.Types, domain.EntityProgress)
	assert.NotContains(t, report.Types, domain.EntityEnrollment)
	assert.NotContains(t, report.Types, domain.EntityCourse)
	assert.Equal(t, 1, remote.calls["LMS Users"])
	assert.Equal(t, 0, remote.calls["LMS Enrollments"])
}

func TestPoll_UnchangedCollectionSkipsEngine(t *testing.T) {
	items := []graph.ListItem{{
		ID:     "101",
		Fields: map[string]any{"Email": "ivan@example.com", "LastName": "Remote"},
	}}
	remote := &countingRemote{fakeRemote: fakeRemote{items: map[string][]graph.ListItem{
		"LMS Users": items,
	}}}
	local := &fakeLocal{users: map[string]*domain.LMSUser{}}
	m := newTestMonitor(remote, local, &fakeStatusStore{})

	integ := testIntegration()
	integ.EnableUserSync = true

	first := m.Poll(context.Background(), integ)
	assert.False(t, first.Types[domain.EntityUser].Skipped)
	assert.Equal(t, 1, first.Types[domain.EntityUser].MissingLocal)

	// Коллекция не изменилась: тип пропускается без обработки
	second := m.Poll(context.Background(), integ)
	assert.True(t, second.Types[domain.EntityUser].Skipped)
	assert.Equal(t, 0, second.Types[domain.EntityUser].MissingLocal)
}

func TestPoll_ChangedCollectionIsProcessedAgain(t *testing.T) {
	remote := &countingRemote{fakeRemote: fakeRemote{items: map[string][]graph.ListItem{
		"LMS Users": {{ID: "101", Fields: map[string]any{"Email": "a@example.com"}}},
	}}}
	local := &fakeLocal{users: map[string]*domain.LMSUser{}}
	m := newTestMonitor(remote, local, &fakeStatusStore{})

	integ := testIntegration()
	integ.EnableUserSync = true

	m.Poll(context.Background(), integ)

	remote.items["LMS Users"] = []graph.ListItem{
		{ID: "101", Fields: map[string]any{"Email": "a@example.com", "LastName": "changed"}},
	}

	second := m.Poll(context.Background(), integ)
	assert.False(t, second.Types[domain.EntityUser].Skipped)
}

func TestPoll_ExpiredCacheForcesReprocessing(t *testing.T) {
	remote := &countingRemote{fakeRemote: fakeRemote{items: map[string][]graph.ListItem{
		"LMS Users": {{ID: "101", Fields: map[string]any{"Email": "a@example.com"}}},
	}}}
	local := &fakeLocal{users: map[string]*domain.LMSUser{}}
	m := newTestMonitor(remote, local, &fakeStatusStore{})
	m.ttl = time.Millisecond

	integ := testIntegration()
	integ.EnableUserSync = true

	m.Poll(context.Background(), integ)
	time.Sleep(5 * time.Millisecond)

	second := m.Poll(context.Background(), integ)
	assert.False(t, second.Types[domain.EntityUser].Skipped)
}

func TestPoll_FetchFailureOfOneTypeDoesNotAffectOthers(t *testing.T) {
	remote := &failingUsersRemote{progress: []graph.ListItem{}}
	status := &fakeStatusStore{}
	m := newTestMonitor(remote, &fakeLocal{}, status)

	report := m.Poll(context.Background(), monitorIntegration())

	require.Contains(t, report.Types, domain.EntityUser)
	require.Len(t, report.Types[domain.EntityUser].Errors, 1)
	// Прогресс обработан несмотря на отказ по пользователям
	assert.Empty(t, report.Types[domain.EntityProgress].Errors)
	assert.Equal(t, domain.SyncStatusError, status.status)
	assert.NotEmpty(t, status.errMessage)
}

type failingUsersRemote struct {
	progress []graph.ListItem
}

func (f *failingUsersRemote) GetListItems(_ context.Context, _ *domain.SyncIntegration, listName string) ([]graph.ListItem, error) {
	if listName == "LMS Users" {
		return nil, fmt.Errorf("list not found")
	}
	return f.progress, nil
}

func (f *failingUsersRemote) UpdateListItem(_ context.Context, _ *domain.SyncIntegration, _, _ string, _ map[string]any) error {
	return nil
}

func TestPoll_SuccessUpdatesIntegrationStatus(t *testing.T) {
	remote := &countingRemote{fakeRemote: fakeRemote{items: map[string][]graph.ListItem{}}}
	status := &fakeStatusStore{}
	m := newTestMonitor(remote, &fakeLocal{}, status)

	m.Poll(context.Background(), monitorIntegration())

	assert.Equal(t, 1, status.calls)
	assert.Equal(t, domain.SyncStatusSuccess, status.status)
	assert.Empty(t, status.errMessage)
}

func TestCollectionHash_OrderIndependent(t *testing.T) {
	a := []graph.ListItem{
		{ID: "1", Fields: map[string]any{"Email": "a@example.com"}},
		{ID: "2", Fields: map[string]any{"Email": "b@example.com"}},
	}
	b := []graph.ListItem{a[1], a[0]}

	assert.Equal(t, collectionHash(a), collectionHash(b))
}

func TestCollectionHash_SensitiveToFieldChanges(t *testing.T) {
	a := []graph.ListItem{{ID: "1", Fields: map[string]any{"Email": "a@example.com"}}}
	b := []graph.ListItem{{ID: "1", Fields: map[string]any{"Email": "z@example.com"}}}

	assert.NotEqual(t, collectionHash(a), collectionHash(b))
}
