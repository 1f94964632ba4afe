package domain

import "time"

// LMSUser - локальная запись пользователя LMS. Естественный ключ для
// синхронизации - email.
type LMSUser struct {
	ID        string    `json:"id" db:"id"`
	BranchID  string    `json:"branch_id" db:"branch_id"`
	Email     string    `json:"email" db:"email"`
	FirstName string    `json:"first_name" db:"first_name"`
	LastName  string    `json:"last_name" db:"last_name"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	IsAdmin   bool      `json:"is_admin" db:"is_admin"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Enrollment - запись о зачислении. LMS - система-источник истины для
// статуса зачисления, поэтому стратегия синхронизации local-wins.
// RemoteItemID - сохраненный id элемента удаленного списка (естественный ключ).
type Enrollment struct {
	ID           int64     `json:"id" db:"id"`
	BranchID     string    `json:"branch_id" db:"branch_id"`
	UserID       string    `json:"user_id" db:"user_id"`
	CourseID     int64     `json:"course_id" db:"course_id"`
	Status       string    `json:"status" db:"status"`
	RemoteItemID string    `json:"remote_item_id" db:"remote_item_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// ProgressRecord - прогресс пользователя по курсу
type ProgressRecord struct {
	ID               int64     `json:"id" db:"id"`
	BranchID         string    `json:"branch_id" db:"branch_id"`
	UserID           string    `json:"user_id" db:"user_id"`
	CourseID         int64     `json:"course_id" db:"course_id"`
	Percent          float64   `json:"percent" db:"percent"`
	CompletedLessons int       `json:"completed_lessons" db:"completed_lessons"`
	RemoteItemID     string    `json:"remote_item_id" db:"remote_item_id"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// Course - курс LMS
type Course struct {
	ID           int64     `json:"id" db:"id"`
	BranchID     string    `json:"branch_id" db:"branch_id"`
	Title        string    `json:"title" db:"title"`
	Status       string    `json:"status" db:"status"`
	RemoteItemID string    `json:"remote_item_id" db:"remote_item_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
