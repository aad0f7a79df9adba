package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"flightrec/pkg/config"
)

// ThrottleTuner adjusts the live comparison window of the replay engine.
type ThrottleTuner interface {
	ThrottleInterval() time.Duration
	SetThrottleInterval(d time.Duration)
}

// SettingsHandler exposes the persisted defaults.
type SettingsHandler struct {
	settings config.Provider
	throttle ThrottleTuner
}

// NewSettingsHandler creates a new SettingsHandler. throttle may be nil.
func NewSettingsHandler(settings config.Provider, throttle ThrottleTuner) *SettingsHandler {
	return &SettingsHandler{settings: settings, throttle: throttle}
}

// SettingsResponse represents the settings API response.
type SettingsResponse struct {
	SimProvider      string  `json:"sim_provider"`
	SaveFolder       string  `json:"save_folder"`
	ReplayRate       float64 `json:"replay_rate"`
	ThrottleInterval string  `json:"throttle_interval"`
	AutoConfirm      bool    `json:"auto_confirm"`
}

// SettingsRequest represents a partial settings update.
type SettingsRequest struct {
	SaveFolder       *string `json:"save_folder,omitempty"`
	ThrottleInterval string  `json:"throttle_interval,omitempty"`
}

// HandleGetSettings returns the current settings.
func (h *SettingsHandler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	folder, _ := h.settings.DefaultSaveFolder(ctx)
	interval := h.settings.ThrottleInterval(ctx)
	if h.throttle != nil {
		interval = h.throttle.ThrottleInterval()
	}

	writeJSON(w, http.StatusOK, SettingsResponse{
		SimProvider:      h.settings.AppConfig().Sim.Provider,
		SaveFolder:       folder,
		ReplayRate:       h.settings.ReplayRate(ctx),
		ThrottleInterval: interval.String(),
		AutoConfirm:      h.settings.AutoConfirm(ctx),
	})
}

// HandleSetSettings applies and persists the fields present in the request.
func (h *SettingsHandler) HandleSetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var interval time.Duration
	if req.ThrottleInterval != "" {
		d, err := config.ParseDuration(req.ThrottleInterval)
		if err != nil || d < 0 {
			writeError(w, http.StatusBadRequest, "invalid throttle_interval")
			return
		}
		interval = d
	}

	if req.SaveFolder != nil {
		if err := h.settings.SetDefaultSaveFolder(ctx, *req.SaveFolder); err != nil {
			slog.Error("Failed to persist save folder", "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		slog.Info("Default save folder changed", "folder", *req.SaveFolder)
	}
	if req.ThrottleInterval != "" {
		if err := h.settings.SetThrottleInterval(ctx, interval); err != nil {
			slog.Error("Failed to persist throttle interval", "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if h.throttle != nil {
			h.throttle.SetThrottleInterval(interval)
		}
		slog.Info("Throttle interval changed", "interval", interval)
	}

	h.HandleGetSettings(w, r)
}
