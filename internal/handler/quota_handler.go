package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"lmsadmin/internal/auth"
	"lmsadmin/internal/domain"
	"lmsadmin/internal/service"
)

type QuotaHandler struct {
	quotaService *service.QuotaService
	verifier     *auth.Verifier
}

func NewQuotaHandler(quotaService *service.QuotaService, verifier *auth.Verifier) *QuotaHandler {
	return &QuotaHandler{
		quotaService: quotaService,
		verifier:     verifier,
	}
}

// GetQuotaInfo отдает сводку по квоте филиала пользователя. Админ может
// запросить чужой филиал через ?branch_id=
func (h *QuotaHandler) GetQuotaInfo(w http.ResponseWriter, r *http.Request) {
	claims, err := h.verifier.VerifyToken(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	branchID := claims.BranchID
	if requested := r.URL.Query().Get("branch_id"); requested != "" && requested != claims.BranchID {
		if !claims.IsAdmin {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		branchID = requested
	}
	if branchID == "" {
		writeError(w, http.StatusConflict, service.ErrNoBranch.Error())
		return
	}

	info, err := h.quotaService.GetQuotaInfo(r.Context(), branchID)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "quota", info)
}

// CheckQuota проверяет, поместится ли файл заявленного размера.
// Ничего не резервирует.
func (h *QuotaHandler) CheckQuota(w http.ResponseWriter, r *http.Request) {
	claims, err := h.verifier.VerifyToken(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		SizeBytes int64 `json:"size_bytes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SizeBytes <= 0 {
		writeError(w, http.StatusBadRequest, "size_bytes must be positive")
		return
	}

	if err := h.quotaService.Check(r.Context(), claims.UserID, req.SizeBytes); err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "allowed": true})
}

// RegisterUsage фиксирует размещенный файл в журнале использования
func (h *QuotaHandler) RegisterUsage(w http.ResponseWriter, r *http.Request) {
	claims, err := h.verifier.VerifyToken(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Path         string `json:"path"`
		Filename     string `json:"filename"`
		SizeBytes    int64  `json:"size_bytes"`
		ContentType  string `json:"content_type"`
		SourceApp    string `json:"source_app"`
		SourceEntity string `json:"source_entity"`
		SourceID     string `json:"source_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" || req.SizeBytes <= 0 {
		writeError(w, http.StatusBadRequest, "path and positive size_bytes are required")
		return
	}

	record, err := h.quotaService.Register(r.Context(), claims.UserID, req.Path, req.Filename, req.SizeBytes, req.ContentType, domain.Provenance{
		SourceApp:    req.SourceApp,
		SourceEntity: req.SourceEntity,
		SourceID:     req.SourceID,
	})
	if err != nil {
		serviceError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "record", record)
}

// ReleaseUsage помечает запись удаленной, освобождая место
func (h *QuotaHandler) ReleaseUsage(w http.ResponseWriter, r *http.Request) {
	claims, err := h.verifier.VerifyToken(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	if err := h.quotaService.MarkDeleted(r.Context(), claims.UserID, req.Path); err != nil {
		serviceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", nil)
}

// UpdateLimit - админский эндпоинт изменения лимита филиала
func (h *QuotaHandler) UpdateLimit(w http.ResponseWriter, r *http.Request) {
	claims, err := h.verifier.VerifyToken(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !claims.IsAdmin {
		writeError(w, http.StatusForbidden, "admin access required")
		return
	}

	var req struct {
		BranchID         string `json:"branch_id"`
		LimitBytes       int64  `json:"limit_bytes"`
		IsUnlimited      bool   `json:"is_unlimited"`
		ThresholdPercent int    `json:"warning_threshold_percent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BranchID == "" {
		writeError(w, http.StatusBadRequest, "branch_id is required")
		return
	}

	limit, err := h.quotaService.UpdateLimit(r.Context(), req.BranchID, req.LimitBytes, req.IsUnlimited, req.ThresholdPercent, claims.UserID)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "limit", limit)
}

// ListUsage отдает журнал использования филиала
func (h *QuotaHandler) ListUsage(w http.ResponseWriter, r *http.Request) {
	claims, err := h.verifier.VerifyToken(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !claims.IsAdmin {
		writeError(w, http.StatusForbidden, "admin access required")
		return
	}

	branchID := r.URL.Query().Get("branch_id")
	if branchID == "" {
		branchID = claims.BranchID
	}

	records, err := h.quotaService.ListUsage(r.Context(), branchID)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "records", records)
}

// ListWarnings отдает последние предупреждения филиала
func (h *QuotaHandler) ListWarnings(w http.ResponseWriter, r *http.Request) {
	claims, err := h.verifier.VerifyToken(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	branchID := claims.BranchID
	if requested := r.URL.Query().Get("branch_id"); requested != "" && claims.IsAdmin {
		branchID = requested
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	warnings, err := h.quotaService.ListWarnings(r.Context(), branchID, limit)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "warnings", warnings)
}
