package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNoBranch - пользователь не привязан к филиалу, квоту считать не от чего
	ErrNoBranch = errors.New("user has no branch assigned")

	// ErrIntegrationDisabled - интеграция выключена, операции по ней запрещены
	ErrIntegrationDisabled = errors.New("integration is disabled")

	// ErrUnknownIntegrationType - тип интеграции не входит в известный набор
	ErrUnknownIntegrationType = errors.New("unknown integration type")
)

// QuotaExceededError возвращается при отказе разместить файл или списать
// токены: содержит цифры для сообщения пользователю.
type QuotaExceededError struct {
	BranchID  string
	Limit     int64
	Current   int64
	Requested int64
	Human     string
}

func (e *QuotaExceededError) Error() string {
	if e.Human != "" {
		return e.Human
	}
	return fmt.Sprintf("quota exceeded for branch %s: limit %d, current %d, requested %d",
		e.BranchID, e.Limit, e.Current, e.Requested)
}

// IsQuotaExceeded проверяет, является ли ошибка отказом по квоте
func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}
