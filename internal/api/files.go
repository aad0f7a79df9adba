package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"flightrec/pkg/appstate"
	"flightrec/pkg/store"
)

// FileQueue receives the path the next open dialog should return.
type FileQueue interface {
	QueueOpenFile(path string)
}

// RecordingLister lists the index of saved recordings.
type RecordingLister interface {
	ListRecordings(ctx context.Context, limit int) ([]store.RecordingEntry, error)
}

// FilesHandler handles recording file requests.
type FilesHandler struct {
	app   Controller
	queue FileQueue
	index RecordingLister
}

// NewFilesHandler creates a new FilesHandler.
func NewFilesHandler(app Controller, queue FileQueue, index RecordingLister) *FilesHandler {
	return &FilesHandler{app: app, queue: queue, index: index}
}

type openRequest struct {
	Path string `json:"path"`
	// Load raises RequestLoading right away.
	Load bool `json:"load"`
}

// HandleOpen queues a file for the next load.
func (h *FilesHandler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	h.queue.QueueOpenFile(req.Path)

	if !req.Load {
		writeJSON(w, http.StatusAccepted, map[string]string{"queued": req.Path})
		return
	}
	if !h.app.Can(appstate.EventRequestLoading) {
		writeError(w, http.StatusConflict, "cannot load in state "+string(h.app.Status().State))
		return
	}
	accepted, err := h.app.Raise(context.WithoutCancel(r.Context()), appstate.EventRequestLoading)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, eventResponse{Event: appstate.EventRequestLoading, Accepted: accepted, State: h.app.Status().State})
}

// HandleRecordings lists saved recordings, newest first.
func (h *FilesHandler) HandleRecordings(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	entries, err := h.index.ListRecordings(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []store.RecordingEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
