package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lmsadmin/internal/domain"
	"lmsadmin/internal/graph"
	"lmsadmin/internal/storage"
)

type fakeIntegrationStore struct {
	integrations map[int64]*domain.SyncIntegration
}

func (f *fakeIntegrationStore) GetByID(_ context.Context, id int64) (*domain.SyncIntegration, error) {
	integ, ok := f.integrations[id]
	if !ok {
		return nil, fmt.Errorf("integration %d not found", id)
	}
	return integ, nil
}

func (f *fakeIntegrationStore) ListByBranch(_ context.Context, _ string) ([]domain.SyncIntegration, error) {
	return nil, nil
}

func (f *fakeIntegrationStore) Create(_ context.Context, _ *domain.SyncIntegration) error {
	return nil
}

func (f *fakeIntegrationStore) Update(_ context.Context, _ *domain.SyncIntegration) error {
	return nil
}

type fakeFetcher struct {
	infos     []graph.MeetingRecordingInfo
	payloads  map[string][]byte
	downloads int
}

func (f *fakeFetcher) ListMeetingRecordings(_ context.Context, _ *domain.SyncIntegration, _, _ string) ([]graph.MeetingRecordingInfo, error) {
	return f.infos, nil
}

func (f *fakeFetcher) DownloadRecording(_ context.Context, _ *domain.SyncIntegration, contentURL string) ([]byte, string, error) {
	f.downloads++
	data, ok := f.payloads[contentURL]
	if !ok {
		return nil, "", fmt.Errorf("no content at %s", contentURL)
	}
	return data, "video/mp4", nil
}

type statusUpdate struct {
	uuid   uuid.UUID
	status string
}

type fakeRecordingRepo struct {
	existing      map[string]*domain.MeetingRecording
	saved         []*domain.MeetingRecording
	statusUpdates []statusUpdate
	findErr       error
}

func (f *fakeRecordingRepo) SaveRecording(_ context.Context, recording *domain.MeetingRecording) error {
	f.saved = append(f.saved, recording)
	return nil
}

func (f *fakeRecordingRepo) FindByRemoteID(_ context.Context, _ int64, remoteID string) (*domain.MeetingRecording, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.existing[remoteID], nil
}

func (f *fakeRecordingRepo) UpdateStatus(_ context.Context, recordingUUID uuid.UUID, status string) error {
	f.statusUpdates = append(f.statusUpdates, statusUpdate{uuid: recordingUUID, status: status})
	return nil
}

func (f *fakeRecordingRepo) ListByIntegration(_ context.Context, _ int64) ([]domain.MeetingRecording, error) {
	out := make([]domain.MeetingRecording, 0, len(f.saved))
	for _, r := range f.saved {
		out = append(out, *r)
	}
	return out, nil
}

type registeredUsage struct {
	userID string
	path   string
	size   int64
	prov   domain.Provenance
}

type fakeIngestQuota struct {
	denyOver    int64
	registerErr error
	registered  []registeredUsage
}

func (f *fakeIngestQuota) Check(_ context.Context, _ string, sizeBytes int64) error {
	if f.denyOver > 0 && sizeBytes > f.denyOver {
		return fmt.Errorf("storage quota exceeded")
	}
	return nil
}

func (f *fakeIngestQuota) Register(_ context.Context, userID, path, _ string, sizeBytes int64, _ string, prov domain.Provenance) (*domain.StorageUsageRecord, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	f.registered = append(f.registered, registeredUsage{userID: userID, path: path, size: sizeBytes, prov: prov})
	return &domain.StorageUsageRecord{ID: 1}, nil
}

func teamsIntegration() *domain.SyncIntegration {
	return &domain.SyncIntegration{
		ID:       7,
		BranchID: "branch-1",
		Type:     domain.IntegrationTeams,
	}
}

func newRecordingFixture(t *testing.T) (*RecordingService, *fakeFetcher, *fakeRecordingRepo, *fakeIngestQuota, storage.Storage) {
	t.Helper()

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	integrations := &fakeIntegrationStore{integrations: map[int64]*domain.SyncIntegration{
		7: teamsIntegration(),
	}}
	fetcher := &fakeFetcher{payloads: map[string][]byte{}}
	repo := &fakeRecordingRepo{existing: map[string]*domain.MeetingRecording{}}
	quota := &fakeIngestQuota{}

	svc := NewRecordingService(integrations, fetcher, repo, store, quota)
	return svc, fetcher, repo, quota, store
}

func TestIngestMeeting_StoresNewRecording(t *testing.T) {
	svc, fetcher, repo, quota, store := newRecordingFixture(t)
	fetcher.infos = []graph.MeetingRecordingInfo{
		{ID: "rec-1", Name: "standup.mp4", ContentURL: "https://graph.example.com/rec-1"},
	}
	fetcher.payloads["https://graph.example.com/rec-1"] = []byte("not-really-a-video")

	result, err := svc.IngestMeeting(context.Background(), 7, "organizer-1", "meeting-1")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Found)
	assert.Equal(t, 1, result.Stored)
	assert.Equal(t, 0, result.Failed)

	require.Len(t, repo.saved, 1)
	saved := repo.saved[0]
	assert.Equal(t, "rec-1", saved.RemoteID)
	assert.Equal(t, "branch-1", saved.BranchID)
	assert.Equal(t, "meeting-1", saved.MeetingID)
	assert.Equal(t, "standup.mp4", saved.Name)
	assert.Equal(t, int64(18), saved.SizeBytes)
	// Непригодные байты: длительность деградирует до нуля, запись сохраняется
	assert.Equal(t, 0.0, saved.DurationSeconds)
	assert.Equal(t, domain.RecordingStatusStored, saved.Status)

	require.Len(t, repo.statusUpdates, 1)
	assert.Equal(t, domain.RecordingStatusStored, repo.statusUpdates[0].status)
	assert.Equal(t, saved.UUID, repo.statusUpdates[0].uuid)

	require.Len(t, quota.registered, 1)
	assert.Equal(t, "organizer-1", quota.registered[0].userID)
	assert.Equal(t, saved.StorageKey, quota.registered[0].path)
	assert.Equal(t, domain.RecordingSourceApp, quota.registered[0].prov.SourceApp)
	assert.Equal(t, saved.UUID.String(), quota.registered[0].prov.SourceID)

	obj, err := store.GetObject(context.Background(), saved.StorageKey)
	require.NoError(t, err)
	data, err := storage.ReadAll(obj)
	require.NoError(t, err)
	assert.Equal(t, []byte("not-really-a-video"), data)
}

func TestIngestMeeting_SkipsAlreadySavedByRemoteID(t *testing.T) {
	svc, fetcher, repo, quota, _ := newRecordingFixture(t)
	fetcher.infos = []graph.MeetingRecordingInfo{
		{ID: "rec-1", ContentURL: "https://graph.example.com/rec-1"},
	}
	repo.existing["rec-1"] = &domain.MeetingRecording{RemoteID: "rec-1", Status: domain.RecordingStatusStored}

	result, err := svc.IngestMeeting(context.Background(), 7, "organizer-1", "meeting-1")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Stored)
	assert.Zero(t, fetcher.downloads)
	assert.Empty(t, repo.saved)
	assert.Empty(t, quota.registered)
}

func TestIngestMeeting_QuotaDenialDoesNotStopOthers(t *testing.T) {
	svc, fetcher, repo, quota, _ := newRecordingFixture(t)
	fetcher.infos = []graph.MeetingRecordingInfo{
		{ID: "rec-big", ContentURL: "https://graph.example.com/rec-big"},
		{ID: "rec-small", ContentURL: "https://graph.example.com/rec-small"},
	}
	fetcher.payloads["https://graph.example.com/rec-big"] = make([]byte, 100)
	fetcher.payloads["https://graph.example.com/rec-small"] = []byte("ok")
	quota.denyOver = 50

	result, err := svc.IngestMeeting(context.Background(), 7, "organizer-1", "meeting-1")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Stored)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Messages, 1)
	assert.Contains(t, result.Messages[0], "rec-big")

	require.Len(t, repo.saved, 1)
	assert.Equal(t, "rec-small", repo.saved[0].RemoteID)
}

func TestIngestMeeting_RejectsNonTeamsIntegration(t *testing.T) {
	svc, _, _, _, _ := newRecordingFixture(t)
	sp := teamsIntegration()
	sp.ID = 8
	sp.Type = domain.IntegrationSharePoint
	svc.integrations.(*fakeIntegrationStore).integrations[8] = sp

	_, err := svc.IngestMeeting(context.Background(), 8, "organizer-1", "meeting-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected teams")
}

func TestIngestMeeting_RegisterFailureMarksRecordingFailed(t *testing.T) {
	svc, fetcher, repo, quota, _ := newRecordingFixture(t)
	fetcher.infos = []graph.MeetingRecordingInfo{
		{ID: "rec-1", ContentURL: "https://graph.example.com/rec-1"},
	}
	fetcher.payloads["https://graph.example.com/rec-1"] = []byte("data")
	quota.registerErr = fmt.Errorf("ledger unavailable")

	result, err := svc.IngestMeeting(context.Background(), 7, "organizer-1", "meeting-1")
	require.NoError(t, err)

	assert.Equal(t, 0, result.Stored)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Messages, 1)
	assert.Contains(t, result.Messages[0], "ledger unavailable")

	require.Len(t, repo.saved, 1)
	require.Len(t, repo.statusUpdates, 1)
	assert.Equal(t, domain.RecordingStatusFailed, repo.statusUpdates[0].status)
	assert.Equal(t, repo.saved[0].UUID, repo.statusUpdates[0].uuid)
}

func TestIngestMeeting_LookupErrorIsCountedPerRecording(t *testing.T) {
	svc, fetcher, repo, _, _ := newRecordingFixture(t)
	fetcher.infos = []graph.MeetingRecordingInfo{
		{ID: "rec-1", ContentURL: "https://graph.example.com/rec-1"},
	}
	repo.findErr = fmt.Errorf("db down")

	result, err := svc.IngestMeeting(context.Background(), 7, "organizer-1", "meeting-1")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, fetcher.downloads)
}
