package service

import (
	"context"
	"fmt"
	"log"

	"lmsadmin/internal/domain"
	"lmsadmin/internal/storage"
)

const defaultCleanupBatchSize = 500

type CleanupUsageStore interface {
	ListActive(ctx context.Context, limit int) ([]domain.StorageUsageRecord, error)
	MarkDeletedByID(ctx context.Context, id int64) error
}

type StorageProber interface {
	Probe(ctx context.Context, key string) (storage.ProbeResult, error)
}

// CleanupService сверяет журнал использования с фактическим содержимым
// хранилища и помечает удаленными записи, чьи файлы исчезли.
type CleanupService struct {
	usage     CleanupUsageStore
	prober    StorageProber
	batchSize int
}

func NewCleanupService(usage CleanupUsageStore, prober StorageProber) *CleanupService {
	return &CleanupService{
		usage:     usage,
		prober:    prober,
		batchSize: defaultCleanupBatchSize,
	}
}

// CleanupResult - итог одного прохода сверки
type CleanupResult struct {
	Checked int `json:"checked"`
	Freed   int `json:"freed"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// Run выполняет один проход сверки. Запись освобождается только при
// явном подтверждении отсутствия файла: отказ в доступе отсутствием
// не считается.
func (s *CleanupService) Run(ctx context.Context) (*CleanupResult, error) {
	records, err := s.usage.ListActive(ctx, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list active usage records: %w", err)
	}

	result := &CleanupResult{}
	for _, record := range records {
		result.Checked++

		probe, err := s.prober.Probe(ctx, record.Path)
		if err != nil {
			log.Printf("[Cleanup] failed to probe %s: %v", record.Path, err)
			result.Errors++
			continue
		}

		switch probe {
		case storage.ProbeNotFound:
			if err := s.usage.MarkDeletedByID(ctx, record.ID); err != nil {
				log.Printf("[Cleanup] failed to mark record %d deleted: %v", record.ID, err)
				result.Errors++
				continue
			}
			log.Printf("[Cleanup] freed %s (%s): object no longer in storage", record.Path, humanizeBytes(record.SizeBytes))
			result.Freed++
		case storage.ProbeForbidden:
			// Нет доступа - не значит, что файла нет
			result.Skipped++
		default:
			// Файл на месте
		}
	}

	log.Printf("[Cleanup] pass finished: checked=%d freed=%d skipped=%d errors=%d",
		result.Checked, result.Freed, result.Skipped, result.Errors)
	return result, nil
}
