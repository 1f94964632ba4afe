package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lmsadmin/internal/auth"
	"lmsadmin/internal/domain"
	"lmsadmin/internal/service"
)

type RecordingHandler struct {
	recordingService *service.RecordingService
	dispatcher       service.JobDispatcher
	verifier         *auth.Verifier
}

func NewRecordingHandler(recordingService *service.RecordingService, dispatcher service.JobDispatcher, verifier *auth.Verifier) *RecordingHandler {
	return &RecordingHandler{
		recordingService: recordingService,
		dispatcher:       dispatcher,
		verifier:         verifier,
	}
}

// Ingest ставит фоновую задачу забора записей конференции
func (h *RecordingHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	claims, err := h.verifier.VerifyToken(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !claims.IsAdmin {
		writeError(w, http.StatusForbidden, "admin access required")
		return
	}

	id, err := integrationID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid integration id")
		return
	}

	var req service.RecordingIngestPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrganizerID == "" || req.MeetingID == "" {
		writeError(w, http.StatusBadRequest, "organizer_id and meeting_id are required")
		return
	}

	payload, err := json.Marshal(req)
	if err != nil {
		serviceError(w, err)
		return
	}

	job := &domain.SyncJob{
		Kind:          domain.JobKindRecordingIngest,
		IntegrationID: id,
		Payload:       string(payload),
	}
	if err := h.dispatcher.Submit(r.Context(), job); err != nil {
		serviceError(w, err)
		return
	}
	writeSuccess(w, http.StatusAccepted, "job", job)
}

// List отдает сохраненные записи интеграции
func (h *RecordingHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, err := h.verifier.VerifyToken(r); err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := integrationID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid integration id")
		return
	}

	recordings, err := h.recordingService.ListByIntegration(r.Context(), id)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "recordings", recordings)
}

// Download отдает содержимое записи
func (h *RecordingHandler) Download(w http.ResponseWriter, r *http.Request) {
	if _, err := h.verifier.VerifyToken(r); err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := integrationID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid integration id")
		return
	}

	recording, data, err := h.recordingService.GetRecordingData(r.Context(), id, chi.URLParam(r, "remoteID"))
	if err != nil {
		serviceError(w, err)
		return
	}

	w.Header().Set("Content-Type", recording.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", recording.Name))
	w.Write(data)
}
