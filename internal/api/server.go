package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"flightrec/pkg/version"
)

// NewServer creates and configures the HTTP server.
// It accepts handlers for all API endpoints and a shutdownFunc for graceful shutdown.
func NewServer(addr string, state *StateHandler, files *FilesHandler, settings *SettingsHandler, stream *StreamHandler, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	// 1. Health Endpoint
	mux.HandleFunc("GET /health", handleHealth)

	// 2. Version Endpoint
	mux.HandleFunc("GET /api/version", handleVersion)

	// 3. State Machine Endpoints
	mux.HandleFunc("GET /api/status", state.HandleStatus)
	mux.HandleFunc("POST /api/events/{event}", state.HandleEvent)
	mux.HandleFunc("POST /api/replay/seek", state.HandleSeek)
	mux.HandleFunc("POST /api/replay/rate", state.HandleRate)

	// 4. File Endpoints
	if files != nil {
		mux.HandleFunc("POST /api/files/open", files.HandleOpen)
		mux.HandleFunc("GET /api/recordings", files.HandleRecordings)
	}

	// 5. Settings Endpoints
	if settings != nil {
		mux.HandleFunc("GET /api/settings", settings.HandleGetSettings)
		mux.HandleFunc("PUT /api/settings", settings.HandleSetSettings)
	}

	// 6. Logs Endpoint
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)

	// 7. Notification Stream
	if stream != nil {
		mux.HandleFunc("GET /api/ws", stream.HandleWebSocket)
	}

	// 8. Shutdown Endpoint
	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		// Call shutdown in a goroutine to allow response to flush
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	return &http.Server{
		Addr:        addr,
		Handler:     withRequestLog(mux),
		ReadTimeout: 15 * time.Second,
		// Composite events wait for the replay to stop.
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": version.Version})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
