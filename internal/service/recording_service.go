package service

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/xfrr/goffmpeg/transcoder"

	"lmsadmin/internal/domain"
	"lmsadmin/internal/graph"
	"lmsadmin/internal/storage"
)

type RecordingFetcher interface {
	ListMeetingRecordings(ctx context.Context, integ *domain.SyncIntegration, organizerID, meetingID string) ([]graph.MeetingRecordingInfo, error)
	DownloadRecording(ctx context.Context, integ *domain.SyncIntegration, contentURL string) ([]byte, string, error)
}

type RecordingStore interface {
	SaveRecording(ctx context.Context, recording *domain.MeetingRecording) error
	FindByRemoteID(ctx context.Context, integrationID int64, remoteID string) (*domain.MeetingRecording, error)
	UpdateStatus(ctx context.Context, recordingUUID uuid.UUID, status string) error
	ListByIntegration(ctx context.Context, integrationID int64) ([]domain.MeetingRecording, error)
}

type QuotaChecker interface {
	Check(ctx context.Context, userID string, sizeBytes int64) error
	Register(ctx context.Context, userID, path, filename string, sizeBytes int64, contentType string, prov domain.Provenance) (*domain.StorageUsageRecord, error)
}

// RecordingService забирает записи конференций Teams из Microsoft Graph,
// кладет их в хранилище и проводит размер через квоту филиала.
type RecordingService struct {
	integrations IntegrationStore
	fetcher      RecordingFetcher
	recordings   RecordingStore
	store        storage.Storage
	quota        QuotaChecker
}

func NewRecordingService(integrations IntegrationStore, fetcher RecordingFetcher, recordings RecordingStore, store storage.Storage, quota QuotaChecker) *RecordingService {
	return &RecordingService{
		integrations: integrations,
		fetcher:      fetcher,
		recordings:   recordings,
		store:        store,
		quota:        quota,
	}
}

// IngestResult - итог забора записей одной конференции
type IngestResult struct {
	Found    int      `json:"found"`
	Stored   int      `json:"stored"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Messages []string `json:"messages,omitempty"`
}

// IngestMeeting забирает все записи конференции. Уже сохраненные записи
// пропускаются по remote id, отказ квоты не прерывает обработку остальных.
func (s *RecordingService) IngestMeeting(ctx context.Context, integrationID int64, organizerID, meetingID string) (*IngestResult, error) {
	integ, err := s.integrations.GetByID(ctx, integrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get integration: %w", err)
	}
	if integ.Type != domain.IntegrationTeams {
		return nil, fmt.Errorf("integration %d is %s, expected %s", integrationID, integ.Type, domain.IntegrationTeams)
	}

	infos, err := s.fetcher.ListMeetingRecordings(ctx, integ, organizerID, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list meeting recordings: %w", err)
	}

	result := &IngestResult{Found: len(infos)}
	for _, info := range infos {
		existing, err := s.recordings.FindByRemoteID(ctx, integrationID, info.ID)
		if err != nil {
			result.Failed++
			result.Messages = append(result.Messages, fmt.Sprintf("recording %s: %v", info.ID, err))
			continue
		}
		if existing != nil {
			result.Skipped++
			continue
		}

		if err := s.ingestOne(ctx, integ, organizerID, meetingID, info); err != nil {
			log.Printf("[Recording] failed to ingest %s: %v", info.ID, err)
			result.Failed++
			result.Messages = append(result.Messages, fmt.Sprintf("recording %s: %v", info.ID, err))
			continue
		}
		result.Stored++
	}

	log.Printf("[Recording] meeting %s: found=%d stored=%d skipped=%d failed=%d",
		meetingID, result.Found, result.Stored, result.Skipped, result.Failed)
	return result, nil
}

func (s *RecordingService) ingestOne(ctx context.Context, integ *domain.SyncIntegration, organizerID, meetingID string, info graph.MeetingRecordingInfo) error {
	data, contentType, err := s.fetcher.DownloadRecording(ctx, integ, info.ContentURL)
	if err != nil {
		return fmt.Errorf("failed to download recording: %w", err)
	}
	if contentType == "" {
		contentType = "video/mp4"
	}

	if err := s.quota.Check(ctx, organizerID, int64(len(data))); err != nil {
		return err
	}

	recordingUUID := uuid.New()
	name := info.Name
	if name == "" {
		name = recordingUUID.String() + ".mp4"
	}
	key := path.Join(domain.RecordingsKeyPrefix, integ.BranchID, recordingUUID.String())

	if err := s.store.Upload(ctx, key, data, contentType); err != nil {
		return fmt.Errorf("failed to upload recording: %w", err)
	}

	duration, err := probeDuration(data)
	if err != nil {
		// Длительность - метаданные, без нее запись все равно сохраняем
		log.Printf("[Recording] failed to probe duration of %s: %v", info.ID, err)
		duration = 0
	}

	recording := &domain.MeetingRecording{
		UUID:            recordingUUID,
		IntegrationID:   integ.ID,
		BranchID:        integ.BranchID,
		MeetingID:       meetingID,
		RemoteID:        info.ID,
		OrganizerID:     organizerID,
		Name:            name,
		StorageKey:      key,
		ContentType:     contentType,
		SizeBytes:       int64(len(data)),
		DurationSeconds: float64(duration),
		Status:          domain.RecordingStatusPending,
	}
	if err := s.recordings.SaveRecording(ctx, recording); err != nil {
		return fmt.Errorf("failed to save recording: %w", err)
	}

	if _, err := s.quota.Register(ctx, organizerID, key, name, int64(len(data)), contentType, domain.Provenance{
		SourceApp:    domain.RecordingSourceApp,
		SourceEntity: "meeting_recording",
		SourceID:     recordingUUID.String(),
	}); err != nil {
		// Файл в хранилище, но в квоте не учтен: помечаем запись failed
		if markErr := s.recordings.UpdateStatus(ctx, recordingUUID, domain.RecordingStatusFailed); markErr != nil {
			log.Printf("[Recording] failed to mark recording %s as failed: %v", recordingUUID, markErr)
		}
		return fmt.Errorf("failed to register storage usage: %w", err)
	}

	if err := s.recordings.UpdateStatus(ctx, recordingUUID, domain.RecordingStatusStored); err != nil {
		return fmt.Errorf("failed to mark recording as stored: %w", err)
	}
	recording.Status = domain.RecordingStatusStored
	return nil
}

// ListByIntegration возвращает сохраненные записи интеграции
func (s *RecordingService) ListByIntegration(ctx context.Context, integrationID int64) ([]domain.MeetingRecording, error) {
	return s.recordings.ListByIntegration(ctx, integrationID)
}

// GetRecordingData отдает содержимое записи из хранилища
func (s *RecordingService) GetRecordingData(ctx context.Context, integrationID int64, remoteID string) (*domain.MeetingRecording, []byte, error) {
	recording, err := s.recordings.FindByRemoteID(ctx, integrationID, remoteID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find recording: %w", err)
	}
	if recording == nil {
		return nil, nil, fmt.Errorf("recording not found")
	}

	obj, err := s.store.GetObject(ctx, recording.StorageKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get recording object: %w", err)
	}
	data, err := storage.ReadAll(obj)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read recording object: %w", err)
	}
	return recording, data, nil
}

// probeDuration определяет длительность ролика через ffprobe. Запись
// скидывается во временный файл: ffprobe не умеет читать из памяти.
func probeDuration(data []byte) (int, error) {
	tmp, err := os.CreateTemp(os.TempDir(), "recording-*.mp4")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}

	trans := new(transcoder.Transcoder)
	if err := trans.Initialize(tmp.Name(), os.DevNull); err != nil {
		return 0, fmt.Errorf("failed to probe media: %w", err)
	}

	raw := strings.TrimSpace(trans.MediaFile().Metadata().Format.Duration)
	if raw == "" {
		return 0, nil
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", raw, err)
	}
	return int(seconds), nil
}
