package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"lmsadmin/internal/graph"
	"lmsadmin/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeSuccess заворачивает полезную нагрузку в конверт {"success":true,...}
func writeSuccess(w http.ResponseWriter, status int, key string, v any) {
	if key == "" {
		writeJSON(w, status, map[string]any{"success": true})
		return
	}
	writeJSON(w, status, map[string]any{"success": true, key: v})
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// serviceError переводит ошибку сервисного слоя в HTTP-статус
func serviceError(w http.ResponseWriter, err error) {
	switch {
	case service.IsQuotaExceeded(err):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, service.ErrNoBranch):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrUnknownIntegrationType):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrIntegrationDisabled):
		writeError(w, http.StatusConflict, err.Error())
	case graph.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case graph.IsUnauthorized(err) || graph.IsForbidden(err):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
