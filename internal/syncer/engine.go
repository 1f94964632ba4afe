package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"lmsadmin/internal/domain"
	"lmsadmin/internal/graph"
)

// RemoteClient - обращения к удаленным спискам SharePoint.
// Реализуется graph.Client.
type RemoteClient interface {
	GetListItems(ctx context.Context, integ *domain.SyncIntegration, listName string) ([]graph.ListItem, error)
	UpdateListItem(ctx context.Context, integ *domain.SyncIntegration, listName, itemID string, fields map[string]any) error
}

// LocalStore - локальные записи LMS. Реализуется repository.LMSRepository.
type LocalStore interface {
	UserByEmail(ctx context.Context, branchID, email string) (*domain.LMSUser, error)
	UpdateUserProfile(ctx context.Context, userID, firstName, lastName string, isActive bool) error
	EnrollmentByRemoteID(ctx context.Context, branchID, remoteItemID string) (*domain.Enrollment, error)
	ProgressByRemoteID(ctx context.Context, branchID, remoteItemID string) (*domain.ProgressRecord, error)
	CourseByRemoteID(ctx context.Context, branchID, remoteItemID string) (*domain.Course, error)
}

// ReviewStore - персистенция конфликтов, отложенных для ручного разбора
type ReviewStore interface {
	Create(ctx context.Context, item *domain.ManualReviewItem) error
}

// Стратегии разрешения per-тип. Задаются статически: LMS - источник истины
// для зачислений, прогресса и курсов; профили пользователей могут меняться
// с обеих сторон.
var defaultStrategies = map[domain.EntityType]domain.ResolutionStrategy{
	domain.EntityUser:       domain.StrategyLatestWins,
	domain.EntityEnrollment: domain.StrategyLocalWins,
	domain.EntityProgress:   domain.StrategyLocalWins,
	domain.EntityCourse:     domain.StrategyLocalWins,
}

// Engine сравнивает удаленные элементы с локальными записями, строит
// конфликты по расхождениям полей и применяет стратегию разрешения.
// Повторный прогон по сошедшейся паре не находит конфликтов и ничего
// не пишет.
type Engine struct {
	remote  RemoteClient
	local   LocalStore
	reviews ReviewStore
}

func NewEngine(remote RemoteClient, local LocalStore, reviews ReviewStore) *Engine {
	return &Engine{
		remote:  remote,
		local:   local,
		reviews: reviews,
	}
}

// listNameFor возвращает имя удаленного списка для типа сущностей
func listNameFor(integ *domain.SyncIntegration, entityType domain.EntityType) string {
	switch entityType {
	case domain.EntityUser:
		return integ.UsersList
	case domain.EntityEnrollment:
		return integ.EnrollmentsList
	case domain.EntityProgress:
		return integ.ProgressList
	case domain.EntityCourse:
		return integ.CoursesList
	default:
		return ""
	}
}

// SyncType прогоняет обнаружение и разрешение конфликтов для всех элементов
// коллекции. Ошибки отдельных элементов собираются, но не прерывают прогон -
// незатронутые элементы обрабатываются дальше.
func (e *Engine) SyncType(ctx context.Context, integ *domain.SyncIntegration, entityType domain.EntityType, items []graph.ListItem) *domain.SyncTypeResult {
	result := &domain.SyncTypeResult{}

	for _, item := range items {
		if err := e.syncItem(ctx, integ, entityType, item, result); err != nil {
			log.Printf("[SyncEngine] %s item %s: %v", entityType, item.ID, err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s/%s: %v", entityType, item.ID, err))
			continue
		}
		result.Synced++
	}

	return result
}

func (e *Engine) syncItem(ctx context.Context, integ *domain.SyncIntegration, entityType domain.EntityType, item graph.ListItem, result *domain.SyncTypeResult) error {
	switch entityType {
	case domain.EntityUser:
		return e.syncUserItem(ctx, integ, item, result)
	case domain.EntityEnrollment:
		return e.syncEnrollmentItem(ctx, integ, item, result)
	case domain.EntityProgress:
		return e.syncProgressItem(ctx, integ, item, result)
	case domain.EntityCourse:
		return e.syncCourseItem(ctx, integ, item, result)
	default:
		return fmt.Errorf("unknown entity type: %s", entityType)
	}
}

func (e *Engine) syncUserItem(ctx context.Context, integ *domain.SyncIntegration, item graph.ListItem, result *domain.SyncTypeResult) error {
	email := stringField(item.Fields, "Email")
	if email == "" {
		return fmt.Errorf("remote item has no Email field")
	}

	user, err := e.local.UserByEmail(ctx, integ.BranchID, email)
	if err != nil {
		return err
	}
	if user == nil {
		// Расхождение присутствия, а не полей: автоматически не разрешаем
		result.MissingLocal++
		return nil
	}

	var fields []string
	if !stringsEqual(user.FirstName, stringField(item.Fields, "FirstName")) {
		fields = append(fields, "first_name")
	}
	if !stringsEqual(user.LastName, stringField(item.Fields, "LastName")) {
		fields = append(fields, "last_name")
	}
	remoteActive, hasActive := boolField(item.Fields, "IsActive")
	if hasActive && user.IsActive != remoteActive {
		fields = append(fields, "is_active")
	}

	if len(fields) == 0 {
		return nil
	}
	result.Conflicts++

	conflict := &domain.Conflict{
		EntityType:        domain.EntityUser,
		LocalID:           user.ID,
		RemoteID:          item.ID,
		ConflictingFields: fields,
		LocalSnapshot: map[string]any{
			"first_name": user.FirstName,
			"last_name":  user.LastName,
			"is_active":  user.IsActive,
		},
		RemoteSnapshot:  item.Fields,
		LocalTimestamp:  timestampOrNil(user.UpdatedAt),
		RemoteTimestamp: remoteTimestamp(item),
	}

	return e.resolveUser(ctx, integ, conflict, user, item, result)
}

// resolveUser применяет стратегию для пользователей: побеждает более
// свежая сторона; при непригодном удаленном времени - локальная.
func (e *Engine) resolveUser(ctx context.Context, integ *domain.SyncIntegration, conflict *domain.Conflict, user *domain.LMSUser, item graph.ListItem, result *domain.SyncTypeResult) error {
	strategy := defaultStrategies[domain.EntityUser]

	switch strategy {
	case domain.StrategyLatestWins:
		switch {
		case conflict.LocalTimestamp == nil && conflict.RemoteTimestamp == nil:
			// Ни одной пригодной метки времени: направление выбрать нельзя
			return e.sendToReview(ctx, integ, conflict, "no usable timestamp on either side", result)
		case conflict.RemoteTimestamp != nil && conflict.LocalTimestamp != nil &&
			conflict.RemoteTimestamp.After(*conflict.LocalTimestamp):
			if err := e.applyRemoteToUser(ctx, user, item); err != nil {
				return err
			}
			result.Resolve(domain.ResolvedRemoteWins)
			return nil
		default:
			// Удаленная метка отсутствует или не новее, деградируем в local-wins
			if err := e.pushUserToRemote(ctx, integ, user, item); err != nil {
				return err
			}
			result.Resolve(domain.ResolvedLocalWins)
			return nil
		}
	case domain.StrategyRemoteWins:
		// Направление remote-wins для пользователей сознательно не реализовано:
		// угадывать его значило бы молча перезаписывать авторитетные данные LMS
		return e.sendToReview(ctx, integ, conflict, "remote-wins resolution is not implemented", result)
	case domain.StrategyManualReview:
		return e.sendToReview(ctx, integ, conflict, "strategy defers conflicts to manual review", result)
	default:
		if err := e.pushUserToRemote(ctx, integ, user, item); err != nil {
			return err
		}
		result.Resolve(domain.ResolvedLocalWins)
		return nil
	}
}

func (e *Engine) applyRemoteToUser(ctx context.Context, user *domain.LMSUser, item graph.ListItem) error {
	firstName := stringField(item.Fields, "FirstName")
	lastName := stringField(item.Fields, "LastName")
	isActive := user.IsActive
	if v, ok := boolField(item.Fields, "IsActive"); ok {
		isActive = v
	}
	if err := e.local.UpdateUserProfile(ctx, user.ID, firstName, lastName, isActive); err != nil {
		return fmt.Errorf("failed to apply remote profile: %w", err)
	}
	return nil
}

func (e *Engine) pushUserToRemote(ctx context.Context, integ *domain.SyncIntegration, user *domain.LMSUser, item graph.ListItem) error {
	fields := map[string]any{
		"FirstName": user.FirstName,
		"LastName":  user.LastName,
		"IsActive":  user.IsActive,
	}
	if err := e.remote.UpdateListItem(ctx, integ, integ.UsersList, item.ID, fields); err != nil {
		// Неудача записи наружу не откатывает локальное состояние
		return fmt.Errorf("failed to push local profile to remote: %w", err)
	}
	return nil
}

func (e *Engine) syncEnrollmentItem(ctx context.Context, integ *domain.SyncIntegration, item graph.ListItem, result *domain.SyncTypeResult) error {
	enrollment, err := e.local.EnrollmentByRemoteID(ctx, integ.BranchID, item.ID)
	if err != nil {
		return err
	}
	if enrollment == nil {
		result.MissingLocal++
		return nil
	}

	remoteStatus := stringField(item.Fields, "Status")
	if stringsEqual(enrollment.Status, remoteStatus) {
		return nil
	}
	result.Conflicts++

	// LMS как система-источник истины для зачислений: local-wins
	if err := e.remote.UpdateListItem(ctx, integ, integ.EnrollmentsList, item.ID,
		map[string]any{"Status": enrollment.Status}); err != nil {
		return fmt.Errorf("failed to push enrollment status: %w", err)
	}
	result.Resolve(domain.ResolvedLocalWins)
	return nil
}

func (e *Engine) syncProgressItem(ctx context.Context, integ *domain.SyncIntegration, item graph.ListItem, result *domain.SyncTypeResult) error {
	progress, err := e.local.ProgressByRemoteID(ctx, integ.BranchID, item.ID)
	if err != nil {
		return err
	}
	if progress == nil {
		result.MissingLocal++
		return nil
	}

	var fields []string
	remotePercent, hasPercent := numberField(item.Fields, "Percent")
	// Процент прогресса сверяется с допуском ±5
	if hasPercent && !floatsWithinTolerance(progress.Percent, remotePercent, progressTolerance) {
		fields = append(fields, "percent")
	}
	remoteLessons, hasLessons := numberField(item.Fields, "CompletedLessons")
	if hasLessons && progress.CompletedLessons != int(remoteLessons) {
		fields = append(fields, "completed_lessons")
	}

	if len(fields) == 0 {
		return nil
	}
	result.Conflicts++

	if err := e.remote.UpdateListItem(ctx, integ, integ.ProgressList, item.ID, map[string]any{
		"Percent":          progress.Percent,
		"CompletedLessons": progress.CompletedLessons,
	}); err != nil {
		return fmt.Errorf("failed to push progress: %w", err)
	}
	result.Resolve(domain.ResolvedLocalWins)
	return nil
}

func (e *Engine) syncCourseItem(ctx context.Context, integ *domain.SyncIntegration, item graph.ListItem, result *domain.SyncTypeResult) error {
	course, err := e.local.CourseByRemoteID(ctx, integ.BranchID, item.ID)
	if err != nil {
		return err
	}
	if course == nil {
		result.MissingLocal++
		return nil
	}

	var fields []string
	if !stringsEqual(course.Title, stringField(item.Fields, "Title")) {
		fields = append(fields, "title")
	}
	if !stringsEqual(course.Status, stringField(item.Fields, "Status")) {
		fields = append(fields, "status")
	}

	if len(fields) == 0 {
		return nil
	}
	result.Conflicts++

	if err := e.remote.UpdateListItem(ctx, integ, integ.CoursesList, item.ID, map[string]any{
		"Title":  course.Title,
		"Status": course.Status,
	}); err != nil {
		return fmt.Errorf("failed to push course: %w", err)
	}
	result.Resolve(domain.ResolvedLocalWins)
	return nil
}

func (e *Engine) sendToReview(ctx context.Context, integ *domain.SyncIntegration, conflict *domain.Conflict, reason string, result *domain.SyncTypeResult) error {
	result.ManualReview++
	result.Resolve(domain.ManualReviewRequired)

	fieldsJSON, err := json.Marshal(conflict.ConflictingFields)
	if err != nil {
		return err
	}

	item := &domain.ManualReviewItem{
		IntegrationID: integ.ID,
		EntityType:    conflict.EntityType,
		LocalID:       conflict.LocalID,
		RemoteID:      conflict.RemoteID,
		Fields:        string(fieldsJSON),
		Reason:        reason,
	}
	if err := e.reviews.Create(ctx, item); err != nil {
		return fmt.Errorf("failed to store manual review item: %w", err)
	}

	log.Printf("[SyncEngine] конфликт %s/%s отложен для ручного разбора: %s",
		conflict.EntityType, conflict.RemoteID, reason)
	return nil
}

// remoteTimestamp достает метку времени удаленного элемента: поле UpdatedDate,
// затем Modified, затем lastModifiedDateTime самого элемента
func remoteTimestamp(item graph.ListItem) *time.Time {
	for _, key := range []string{"UpdatedDate", "Modified"} {
		if raw := stringField(item.Fields, key); raw != "" {
			if ts := parseTimestamp(raw); ts != nil {
				return ts
			}
		}
	}
	if item.LastModified != "" {
		return parseTimestamp(item.LastModified)
	}
	return nil
}

func timestampOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
