package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/talentdesk/recruiter-notify/internal/settings"
)

// SettingsHandler exposes the admin-configurable notification knobs.
type SettingsHandler struct {
	store  settings.Store
	logger *zap.Logger
}

func NewSettingsHandler(store settings.Store, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{store: store, logger: logger}
}

// Get handles GET /api/v1/settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.store.Get(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read settings")
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

type updateSettingsRequest struct {
	FrequencyThreshold   *int    `json:"frequency_threshold,omitempty"`
	NotificationsEnabled *bool   `json:"notifications_enabled,omitempty"`
	SendTime             *string `json:"send_time,omitempty"`
}

// Update handles PUT /api/v1/settings
// Partial updates are allowed; invalid values are rejected whole, never
// clamped, and nothing is applied if any field fails validation.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.FrequencyThreshold != nil {
		if err := settings.ValidateThreshold(*req.FrequencyThreshold); err != nil {
			mapError(w, err)
			return
		}
	}
	if req.SendTime != nil {
		if err := settings.ValidateSendTime(*req.SendTime); err != nil {
			mapError(w, err)
			return
		}
	}

	ctx := r.Context()
	if req.FrequencyThreshold != nil {
		if err := h.store.SetFrequencyThreshold(ctx, *req.FrequencyThreshold); err != nil {
			mapError(w, err)
			return
		}
	}
	if req.NotificationsEnabled != nil {
		if err := h.store.SetNotificationsEnabled(ctx, *req.NotificationsEnabled); err != nil {
			mapError(w, err)
			return
		}
	}
	if req.SendTime != nil {
		if err := h.store.SetSendTime(ctx, *req.SendTime); err != nil {
			mapError(w, err)
			return
		}
	}

	snap, err := h.store.Get(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read settings")
		return
	}
	respondJSON(w, http.StatusOK, snap)
}
