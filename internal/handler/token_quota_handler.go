package handler

import (
	"encoding/json"
	"net/http"

	"lmsadmin/internal/auth"
	"lmsadmin/internal/service"
)

type TokenQuotaHandler struct {
	tokenService *service.TokenQuotaService
	verifier     *auth.Verifier
}

func NewTokenQuotaHandler(tokenService *service.TokenQuotaService, verifier *auth.Verifier) *TokenQuotaHandler {
	return &TokenQuotaHandler{
		tokenService: tokenService,
		verifier:     verifier,
	}
}

// GetQuotaInfo отдает расход токенов филиала за текущий месяц
func (h *TokenQuotaHandler) GetQuotaInfo(w http.ResponseWriter, r *http.Request) {
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

	info, err := h.tokenService.GetQuotaInfo(r.Context(), branchID)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "quota", info)
}

// UpdateLimit - админский эндпоинт изменения месячного лимита токенов
func (h *TokenQuotaHandler) UpdateLimit(w http.ResponseWriter, r *http.Request) {
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
		LimitTokens      int64  `json:"limit_tokens"`
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

	limit, err := h.tokenService.UpdateLimit(r.Context(), req.BranchID, req.LimitTokens, req.IsUnlimited, req.ThresholdPercent, claims.UserID)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "limit", limit)
}
