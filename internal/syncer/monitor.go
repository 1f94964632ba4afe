package syncer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"lmsadmin/internal/domain"
	"lmsadmin/internal/graph"
)

// Кеш хеша коллекции истекает через фиксированный TTL независимо от
// обнаружения изменений - ограничивает устаревание.
const defaultCacheTTL = 5 * time.Minute

// IntegrationStatusStore фиксирует итог прогона на записи интеграции
type IntegrationStatusStore interface {
	UpdateSyncStatus(ctx context.Context, integrationID int64, status, errMessage string) error
}

type hashEntry struct {
	hash string
	at   time.Time
}

// Monitor периодически снимает слепок удаленных коллекций и передает
// изменившиеся движку синхронизации. Неизменившийся хеш - полный пропуск
// обработки: главный механизм экономии при лимитах удаленного API.
//
// Прогоны по одной паре (интеграция, тип) взаимно исключены single-flight
// блокировкой: второй одновременный прогон пропускает тип, а не гоняется
// с первым за одни и те же конфликты.
type Monitor struct {
	remote RemoteClient
	engine *Engine
	status IntegrationStatusStore
	ttl    time.Duration

	mu       sync.Mutex
	cache    map[string]hashEntry
	inFlight map[string]bool
}

func NewMonitor(remote RemoteClient, engine *Engine, status IntegrationStatusStore) *Monitor {
	return &Monitor{
		remote:   remote,
		engine:   engine,
		status:   status,
		ttl:      defaultCacheTTL,
		cache:    make(map[string]hashEntry),
		inFlight: make(map[string]bool),
	}
}

// enabledTypes возвращает типы сущностей, включенные в интеграции
func enabledTypes(integ *domain.SyncIntegration) []domain.EntityType {
	var types []domain.EntityType
	if integ.EnableUserSync && integ.UsersList != "" {
		types = append(types, domain.EntityUser)
	}
	if integ.EnableEnrollmentSync && integ.EnrollmentsList != "" {
		types = append(types, domain.EntityEnrollment)
	}
	if integ.EnableProgressSync && integ.ProgressList != "" {
		types = append(types, domain.EntityProgress)
	}
	if integ.EnableCourseSync && integ.CoursesList != "" {
		types = append(types, domain.EntityCourse)
	}
	return types
}

// Poll опрашивает все включенные типы сущностей интеграции. Ошибки отдельных
// типов и элементов собираются в отчет; сам Poll не возвращает ошибку.
func (m *Monitor) Poll(ctx context.Context, integ *domain.SyncIntegration) *domain.SyncReport {
	report := &domain.SyncReport{
		IntegrationID: integ.ID,
		StartedAt:     time.Now(),
		Types:         make(map[domain.EntityType]*domain.SyncTypeResult),
	}

	for _, entityType := range enabledTypes(integ) {
		report.Types[entityType] = m.pollType(ctx, integ, entityType)
	}

	report.FinishedAt = time.Now()

	status := domain.SyncStatusSuccess
	errMessage := ""
	if report.HasErrors() {
		status = domain.SyncStatusError
		errMessage = report.FirstError()
	}
	if m.status != nil {
		if err := m.status.UpdateSyncStatus(ctx, integ.ID, status, errMessage); err != nil {
			log.Printf("[SyncMonitor] failed to update sync status for integration %d: %v", integ.ID, err)
		}
	}

	return report
}

func (m *Monitor) pollType(ctx context.Context, integ *domain.SyncIntegration, entityType domain.EntityType) *domain.SyncTypeResult {
	key := fmt.Sprintf("%d:%s", integ.ID, entityType)

	m.mu.Lock()
	if m.inFlight[key] {
		m.mu.Unlock()
		log.Printf("[SyncMonitor] прогон %s уже выполняется, пропускаем", key)
		return &domain.SyncTypeResult{Skipped: true}
	}
	m.inFlight[key] = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.inFlight, key)
		m.mu.Unlock()
	}()

	listName := listNameFor(integ, entityType)
	items, err := m.remote.GetListItems(ctx, integ, listName)
	if err != nil {
		return &domain.SyncTypeResult{
			Errors: []string{fmt.Sprintf("fetch %s: %v", listName, err)},
		}
	}

	hash := collectionHash(items)

	m.mu.Lock()
	entry, cached := m.cache[key]
	m.mu.Unlock()

	if cached && time.Since(entry.at) < m.ttl && entry.hash == hash {
		// Коллекция не изменилась - движок не вызывается вовсе
		return &domain.SyncTypeResult{Skipped: true}
	}

	result := m.engine.SyncType(ctx, integ, entityType, items)

	m.mu.Lock()
	m.cache[key] = hashEntry{hash: hash, at: time.Now()}
	m.mu.Unlock()

	return result
}

// collectionHash вычисляет стабильный хеш коллекции: элементы сортируются
// по id, поэтому порядок выдачи удаленного API не влияет на результат
func collectionHash(items []graph.ListItem) string {
	sorted := make([]graph.ListItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	h := sha256.New()
	for _, item := range sorted {
		// json.Marshal сортирует ключи map - представление каноническое
		payload, err := json.Marshal(map[string]any{
			"id":     item.ID,
			"fields": item.Fields,
		})
		if err != nil {
			continue
		}
		h.Write(payload)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
