// Package dialog answers the questions the application would normally ask
// the user. Without a window it decides from settings, files queued through
// the API and the saved-recordings index.
package dialog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"flightrec/pkg/notify"
	"flightrec/pkg/storage"
	"flightrec/pkg/store"
)

// Preferences is the subset of settings the dialog consults.
type Preferences interface {
	AutoConfirm(ctx context.Context) bool
}

// Message is a user-facing notice.
type Message struct {
	Level string    `json:"level"`
	Text  string    `json:"text"`
	Time  time.Time `json:"time"`
}

// Headless implements the application dialogs without user interaction.
type Headless struct {
	prefs  Preferences
	index  store.RecordingStore
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	nextOpen string
	lastErr  *Message

	messages notify.Hub[Message]
}

// NewHeadless creates a headless dialog. index may be nil, in which case
// PickOpenFile only returns queued paths.
func NewHeadless(prefs Preferences, index store.RecordingStore) *Headless {
	return &Headless{
		prefs:  prefs,
		index:  index,
		now:    time.Now,
		logger: slog.With("component", "dialog"),
	}
}

// Confirm answers a yes/no question with the auto_confirm setting.
func (h *Headless) Confirm(ctx context.Context, message string) bool {
	ok := h.prefs.AutoConfirm(ctx)
	h.logger.Info("Confirmation requested", "message", message, "answer", ok)
	return ok
}

// ShowError logs the message and publishes it to subscribers.
func (h *Headless) ShowError(ctx context.Context, message string) {
	m := Message{Level: "error", Text: message, Time: h.now()}
	h.mu.Lock()
	h.lastErr = &m
	h.mu.Unlock()

	h.logger.Warn("User error", "message", message)
	h.messages.Publish(m)
}

// OnMessage subscribes to messages shown to the user.
func (h *Headless) OnMessage(fn func(Message)) (unsubscribe func()) {
	return h.messages.Subscribe(fn)
}

// LastError returns the most recent error message, if any.
func (h *Headless) LastError() (Message, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lastErr == nil {
		return Message{}, false
	}
	return *h.lastErr, true
}

// PickSaveFile returns a fresh file name in folder. ok is false when no
// folder is configured.
func (h *Headless) PickSaveFile(ctx context.Context, folder string) (path string, ok bool) {
	if folder == "" {
		h.logger.Warn("No save folder configured")
		return "", false
	}
	if err := os.MkdirAll(folder, 0o755); err != nil {
		h.logger.Error("Failed to create save folder", "folder", folder, "error", err)
		return "", false
	}
	id := uuid.New().String()[:8]
	name := fmt.Sprintf("flight-%s-%s%s", h.now().Format("20060102-150405"), id, storage.Extension)
	return filepath.Join(folder, name), true
}

// QueueOpenFile makes path the answer to the next PickOpenFile.
func (h *Headless) QueueOpenFile(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextOpen = path
}

// PickOpenFile opens the queued file, or else the most recently saved
// recording. A nil reader with a nil error means there was nothing to open.
func (h *Headless) PickOpenFile(ctx context.Context, folder string) (path string, r io.ReadCloser, err error) {
	h.mu.Lock()
	path, h.nextOpen = h.nextOpen, ""
	h.mu.Unlock()

	if path == "" && h.index != nil {
		latest, err := h.index.LatestRecording(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("failed to look up latest recording: %w", err)
		}
		if latest != nil {
			path = latest.Path
		}
	}
	if path == "" {
		h.logger.Info("Nothing to open", "folder", folder)
		return "", nil, nil
	}
	if !filepath.IsAbs(path) && folder != "" {
		path = filepath.Join(folder, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to open recording: %w", err)
	}
	return path, f, nil
}
