package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"lmsadmin/internal/domain"
)

// LMSRepository - доступ к локальным доменным записям LMS (пользователи,
// зачисления, прогресс, курсы), с которыми сверяется удаленное состояние.
type LMSRepository struct {
	db *sqlx.DB
}

func NewLMSRepository(db *sqlx.DB) *LMSRepository {
	return &LMSRepository{db: db}
}

// BranchForUser определяет филиал пользователя. Пользователь без филиала -
// ошибка конфигурации, которую обязан обработать вызывающий.
func (r *LMSRepository) BranchForUser(ctx context.Context, userID string) (string, error) {
	var branchID sql.NullString

	err := r.db.GetContext(ctx, &branchID,
		`SELECT branch_id FROM lms_users WHERE id = $1`, userID)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("user not found: %s", userID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get user branch: %w", err)
	}

	if !branchID.Valid || branchID.String == "" {
		return "", nil
	}
	return branchID.String, nil
}

// UserByEmail ищет пользователя по естественному ключу синхронизации.
// Возвращает nil без ошибки, если пользователя нет.
func (r *LMSRepository) UserByEmail(ctx context.Context, branchID, email string) (*domain.LMSUser, error) {
	var user domain.LMSUser

	err := r.db.GetContext(ctx, &user,
		`SELECT * FROM lms_users WHERE branch_id = $1 AND LOWER(email) = LOWER($2)`,
		branchID, email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return &user, nil
}

// UpdateUserProfile применяет удаленные значения профиля к локальной записи
func (r *LMSRepository) UpdateUserProfile(ctx context.Context, userID, firstName, lastName string, isActive bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE lms_users
         SET first_name = $1, last_name = $2, is_active = $3, updated_at = CURRENT_TIMESTAMP
         WHERE id = $4`,
		firstName, lastName, isActive, userID)
	if err != nil {
		return fmt.Errorf("failed to update user profile: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user not found: %s", userID)
	}

	return nil
}

// EnrollmentByRemoteID ищет зачисление по сохраненному id удаленного элемента
func (r *LMSRepository) EnrollmentByRemoteID(ctx context.Context, branchID, remoteItemID string) (*domain.Enrollment, error) {
	var enrollment domain.Enrollment

	err := r.db.GetContext(ctx, &enrollment,
		`SELECT * FROM enrollments WHERE branch_id = $1 AND remote_item_id = $2`,
		branchID, remoteItemID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}

	return &enrollment, nil
}

// ProgressByRemoteID ищет запись прогресса по id удаленного элемента
func (r *LMSRepository) ProgressByRemoteID(ctx context.Context, branchID, remoteItemID string) (*domain.ProgressRecord, error) {
	var progress domain.ProgressRecord

	err := r.db.GetContext(ctx, &progress,
		`SELECT * FROM progress_records WHERE branch_id = $1 AND remote_item_id = $2`,
		branchID, remoteItemID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get progress record: %w", err)
	}

	return &progress, nil
}

// CourseByRemoteID ищет курс по id удаленного элемента
func (r *LMSRepository) CourseByRemoteID(ctx context.Context, branchID, remoteItemID string) (*domain.Course, error) {
	var course domain.Course

	err := r.db.GetContext(ctx, &course,
		`SELECT * FROM courses WHERE branch_id = $1 AND remote_item_id = $2`,
		branchID, remoteItemID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get course: %w", err)
	}

	return &course, nil
}
