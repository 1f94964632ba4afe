package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind - классификация ошибок внешнего API по HTTP-статусу
type ErrorKind string

const (
	KindUnauthorized ErrorKind = "unauthorized"
	KindForbidden    ErrorKind = "forbidden"
	KindNotFound     ErrorKind = "not_found"
	KindRateLimited  ErrorKind = "rate_limited"
	KindServerError  ErrorKind = "server_error"
	KindBadRequest   ErrorKind = "bad_request"
	KindNetwork      ErrorKind = "network"
)

// APIError - ошибка вызова Graph API с сохраненным статусом и кодом ответа
type APIError struct {
	StatusCode int
	Kind       ErrorKind
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("graph api error: status=%d kind=%s code=%s message=%s",
			e.StatusCode, e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("graph api error: status=%d kind=%s message=%s", e.StatusCode, e.Kind, e.Message)
}

// Retryable сообщает, имеет ли смысл повторять запрос с backoff
func (e *APIError) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindServerError
}

// classifyStatus строит APIError из статуса и тела ответа Graph
func classifyStatus(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}

	var parsed struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		if parsed.Error.Code != "" {
			apiErr.Code = parsed.Error.Code
		}
		if strings.TrimSpace(parsed.Error.Message) != "" {
			apiErr.Message = parsed.Error.Message
		}
	}

	switch {
	case status == http.StatusUnauthorized:
		apiErr.Kind = KindUnauthorized
	case status == http.StatusForbidden:
		apiErr.Kind = KindForbidden
		// Подсказываем, что именно нужно починить в Azure AD
		apiErr.Message = fmt.Sprintf(
			"insufficient permissions: %s (grant the application Sites.ReadWrite.All in Azure AD and re-consent)",
			apiErr.Message)
	case status == http.StatusNotFound:
		apiErr.Kind = KindNotFound
	case status == http.StatusTooManyRequests:
		apiErr.Kind = KindRateLimited
	case status >= 500:
		apiErr.Kind = KindServerError
	default:
		apiErr.Kind = KindBadRequest
	}

	return apiErr
}

// IsNotFound - ожидаемая, не фатальная ошибка; логируется с меньшей серьезностью
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindNotFound
}

func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindUnauthorized
}

func IsForbidden(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindForbidden
}
