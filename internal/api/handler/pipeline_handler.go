package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/talentdesk/recruiter-notify/internal/api/middleware"
	"github.com/talentdesk/recruiter-notify/internal/processor"
)

// PipelineHandler exposes the pipeline's ops surface: queue observability
// and manual triggers. The host application's business routes live
// elsewhere; this API is for operators only.
type PipelineHandler struct {
	proc   *processor.Processor
	logger *zap.Logger
}

func NewPipelineHandler(proc *processor.Processor, logger *zap.Logger) *PipelineHandler {
	return &PipelineHandler{proc: proc, logger: logger}
}

// QueueStatus handles GET /api/v1/queue/status
func (h *PipelineHandler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"running": h.proc.Running(),
		"queue":   h.proc.Queue().Status(),
	})
}

// FailedItems handles GET /api/v1/queue/failed
// Surfaces permanently failed work items for operator inspection.
func (h *PipelineHandler) FailedItems(w http.ResponseWriter, r *http.Request) {
	items := h.proc.Queue().FailedItems()
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		entry := map[string]any{
			"id":        item.ID,
			"kind":      item.Kind,
			"recipient": item.Payload.RecipientID,
			"attempts":  item.Attempts,
			"failed_at": item.FailedAt,
		}
		if item.LastError != nil {
			entry["last_error"] = *item.LastError
		}
		out = append(out, entry)
	}
	respondJSON(w, http.StatusOK, map[string]any{"failed": out, "count": len(out)})
}

// RunEvaluation handles POST /api/v1/notifications/run
// Manually triggers one business tick, e.g. after a bulk job import.
func (h *PipelineHandler) RunEvaluation(w http.ResponseWriter, r *http.Request) {
	if err := h.proc.RunEvaluation(r.Context()); err != nil {
		h.logger.Error("manual evaluation failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, "evaluation failed")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "evaluated"})
}

// NotifyJobUpdate handles POST /api/v1/jobs/{id}/notify-update
// Called by the host application after a job's content changes.
func (h *PipelineHandler) NotifyJobUpdate(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	sent, err := h.proc.NotifyJobUpdated(r.Context(), jobID)
	if err != nil {
		h.logger.Warn("job-update notification failed",
			zap.String("job_id", jobID),
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err))
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"job_id": jobID,
		"sent":   strconv.Itoa(sent),
	})
}
