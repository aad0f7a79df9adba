package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"flightrec/pkg/appstate"
)

// Controller is the application surface the state endpoints drive.
type Controller interface {
	Status() appstate.Status
	Can(e appstate.Event) bool
	Raise(ctx context.Context, e appstate.Event) (bool, error)
	Seek(frame int) error
	ChangeRate(rate float64) error
}

// RatePersister stores the replay rate as the new default.
type RatePersister interface {
	SetReplayRate(ctx context.Context, rate float64) error
}

// StateHandler handles mode and replay control requests.
type StateHandler struct {
	app   Controller
	rates RatePersister
}

// NewStateHandler creates a new StateHandler. rates may be nil.
func NewStateHandler(app Controller, rates RatePersister) *StateHandler {
	return &StateHandler{app: app, rates: rates}
}

// HandleStatus returns a snapshot of the application.
func (h *StateHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Status())
}

type eventResponse struct {
	Event    appstate.Event `json:"event"`
	Accepted bool           `json:"accepted"`
	State    appstate.State `json:"state"`
}

// HandleEvent raises the event named in the path.
func (h *StateHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	e, ok := appstate.ParseEvent(r.PathValue("event"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown event")
		return
	}
	if !h.app.Can(e) {
		writeError(w, http.StatusConflict, "event not available in state "+string(h.app.Status().State))
		return
	}

	// Composite transitions outlive a dropped connection.
	accepted, err := h.app.Raise(context.WithoutCancel(r.Context()), e)
	if err != nil {
		slog.Error("Event failed", "event", e, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, eventResponse{Event: e, Accepted: accepted, State: h.app.Status().State})
}

type seekRequest struct {
	Frame int `json:"frame"`
}

// HandleSeek moves the replay cursor.
func (h *StateHandler) HandleSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.app.Seek(req.Frame); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.app.Status())
}

type rateRequest struct {
	Rate    float64 `json:"rate"`
	Persist bool    `json:"persist"`
}

// HandleRate changes the replay rate, optionally storing it as the default.
func (h *StateHandler) HandleRate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.app.ChangeRate(req.Rate); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Persist && h.rates != nil {
		if err := h.rates.SetReplayRate(r.Context(), req.Rate); err != nil {
			slog.Warn("Failed to persist replay rate", "rate", req.Rate, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, h.app.Status())
}
