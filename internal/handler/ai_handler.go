package handler

import (
	"encoding/json"
	"net/http"

	"lmsadmin/internal/auth"
	"lmsadmin/internal/domain"
	"lmsadmin/internal/service"
)

type AIHandler struct {
	aiService *service.AIService
	verifier  *auth.Verifier
}

func NewAIHandler(aiService *service.AIService, verifier *auth.Verifier) *AIHandler {
	return &AIHandler{
		aiService: aiService,
		verifier:  verifier,
	}
}

// Complete проксирует запрос к языковой модели с учетом токенов по квоте
func (h *AIHandler) Complete(w http.ResponseWriter, r *http.Request) {
	claims, err := h.verifier.VerifyToken(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		System       string `json:"system"`
		Prompt       string `json:"prompt"`
		MaxTokens    int    `json:"max_tokens"`
		SourceEntity string `json:"source_entity"`
		SourceID     string `json:"source_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	completion, err := h.aiService.Complete(r.Context(), claims.UserID, req.System, req.Prompt, req.MaxTokens, domain.Provenance{
		SourceApp:    "lms_admin",
		SourceEntity: req.SourceEntity,
		SourceID:     req.SourceID,
	})
	if err != nil {
		serviceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"text":          completion.Text,
		"model":         completion.Model,
		"input_tokens":  completion.Usage.InputTokens,
		"output_tokens": completion.Usage.OutputTokens,
	})
}
