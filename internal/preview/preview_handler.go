package preview

import (
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"lmsadmin/internal/service"
)

type Handler struct {
	service          *Service
	recordingService *service.RecordingService
}

func NewHandler(previewService *Service, recordingService *service.RecordingService) *Handler {
	return &Handler{
		service:          previewService,
		recordingService: recordingService,
	}
}

// GetPreview отдает JPEG-превью записи конференции
func (h *Handler) GetPreview(w http.ResponseWriter, r *http.Request) {
	integrationID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid integration id", http.StatusBadRequest)
		return
	}

	recording, data, err := h.recordingService.GetRecordingData(r.Context(), integrationID, chi.URLParam(r, "remoteID"))
	if err != nil {
		log.Printf("Failed to get recording data: %v", err)
		http.Error(w, "Failed to get recording data", http.StatusInternalServerError)
		return
	}

	previewData, err := h.service.GetOrGenerate(r.Context(), recording, data)
	if err != nil {
		log.Printf("Failed to generate preview: %v", err)
		http.Error(w, fmt.Sprintf("Failed to generate preview: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=86400") // кешируем на 24 часа

	w.WriteHeader(http.StatusOK)
	w.Write(previewData)
}
