package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"lmsadmin/internal/auth"
	"lmsadmin/internal/domain"
	"lmsadmin/internal/service"
)

type IntegrationHandler struct {
	integrationService *service.IntegrationService
	verifier           *auth.Verifier
}

func NewIntegrationHandler(integrationService *service.IntegrationService, verifier *auth.Verifier) *IntegrationHandler {
	return &IntegrationHandler{
		integrationService: integrationService,
		verifier:           verifier,
	}
}

func (h *IntegrationHandler) adminClaims(w http.ResponseWriter, r *http.Request) *auth.Claims {
	claims, err := h.verifier.VerifyToken(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil
	}
	if !claims.IsAdmin {
		writeError(w, http.StatusForbidden, "admin access required")
		return nil
	}
	return claims
}

func integrationID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *IntegrationHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := h.adminClaims(w, r)
	if claims == nil {
		return
	}

	branchID := r.URL.Query().Get("branch_id")
	if branchID == "" {
		branchID = claims.BranchID
	}

	integrations, err := h.integrationService.ListByBranch(r.Context(), branchID)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "integrations", integrations)
}

func (h *IntegrationHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.adminClaims(w, r) == nil {
		return
	}

	id, err := integrationID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid integration id")
		return
	}

	integ, err := h.integrationService.GetByID(r.Context(), id)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "integration", integ)
}

type integrationRequest struct {
	BranchID     string `json:"branch_id"`
	Type         string `json:"integration_type"`
	TenantID     string `json:"tenant_id"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	SiteURL      string `json:"site_url"`

	UsersList       string `json:"users_list"`
	EnrollmentsList string `json:"enrollments_list"`
	ProgressList    string `json:"progress_list"`
	CoursesList     string `json:"courses_list"`

	EnableUserSync       bool `json:"enable_user_sync"`
	EnableEnrollmentSync bool `json:"enable_enrollment_sync"`
	EnableProgressSync   bool `json:"enable_progress_sync"`
	EnableCourseSync     bool `json:"enable_course_sync"`
}

func (req *integrationRequest) apply(integ *domain.SyncIntegration) {
	integ.BranchID = req.BranchID
	integ.Type = domain.IntegrationType(req.Type)
	integ.TenantID = req.TenantID
	integ.ClientID = req.ClientID
	if req.ClientSecret != "" {
		integ.ClientSecret = req.ClientSecret
	}
	integ.SiteURL = req.SiteURL
	integ.UsersList = req.UsersList
	integ.EnrollmentsList = req.EnrollmentsList
	integ.ProgressList = req.ProgressList
	integ.CoursesList = req.CoursesList
	integ.EnableUserSync = req.EnableUserSync
	integ.EnableEnrollmentSync = req.EnableEnrollmentSync
	integ.EnableProgressSync = req.EnableProgressSync
	integ.EnableCourseSync = req.EnableCourseSync
}

func (h *IntegrationHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.adminClaims(w, r) == nil {
		return
	}

	var req integrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	integ := &domain.SyncIntegration{}
	req.apply(integ)

	if err := h.integrationService.Create(r.Context(), integ); err != nil {
		serviceError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "integration", integ)
}

func (h *IntegrationHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h.adminClaims(w, r) == nil {
		return
	}

	id, err := integrationID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid integration id")
		return
	}

	integ, err := h.integrationService.GetByID(r.Context(), id)
	if err != nil {
		serviceError(w, err)
		return
	}

	var req integrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.apply(integ)

	if err := h.integrationService.Update(r.Context(), integ); err != nil {
		serviceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "integration", integ)
}

// TestConnection проверяет учетные данные без запуска синхронизации
func (h *IntegrationHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	if h.adminClaims(w, r) == nil {
		return
	}

	id, err := integrationID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid integration id")
		return
	}

	ok, reason, err := h.integrationService.TestConnection(r.Context(), id)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"ok":      ok,
		"reason":  reason,
	})
}

// TriggerSync ставит задачу синхронизации и сразу отвечает её id
func (h *IntegrationHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if h.adminClaims(w, r) == nil {
		return
	}

	id, err := integrationID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid integration id")
		return
	}

	job, err := h.integrationService.TriggerSync(r.Context(), id)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeSuccess(w, http.StatusAccepted, "job", job)
}

// JobStatus отдает текущее состояние фоновой задачи
func (h *IntegrationHandler) JobStatus(w http.ResponseWriter, r *http.Request) {
	if h.adminClaims(w, r) == nil {
		return
	}

	job, err := h.integrationService.JobStatus(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		serviceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "job", job)
}

// ListReviews отдает неразобранные конфликты интеграции
func (h *IntegrationHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	if h.adminClaims(w, r) == nil {
		return
	}

	id, err := integrationID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid integration id")
		return
	}

	items, err := h.integrationService.OpenReviews(r.Context(), id)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "reviews", items)
}

// ResolveReview закрывает конфликт после ручного разбора
func (h *IntegrationHandler) ResolveReview(w http.ResponseWriter, r *http.Request) {
	if h.adminClaims(w, r) == nil {
		return
	}

	reviewID, err := strconv.ParseInt(chi.URLParam(r, "reviewID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid review id")
		return
	}

	if err := h.integrationService.ResolveReview(r.Context(), reviewID); err != nil {
		serviceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", nil)
}
