package dialog

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flightrec/pkg/store"
)

type prefs bool

func (p prefs) AutoConfirm(context.Context) bool { return bool(p) }

type fakeIndex struct {
	latest *store.RecordingEntry
}

func (f *fakeIndex) SaveRecordingEntry(context.Context, store.RecordingEntry) error { return nil }
func (f *fakeIndex) ListRecordings(context.Context, int) ([]store.RecordingEntry, error) {
	return nil, nil
}
func (f *fakeIndex) LatestRecording(context.Context) (*store.RecordingEntry, error) {
	return f.latest, nil
}
func (f *fakeIndex) DeleteRecordingEntry(context.Context, string) error { return nil }

func TestConfirmFollowsPreference(t *testing.T) {
	ctx := context.Background()
	assert.True(t, NewHeadless(prefs(true), nil).Confirm(ctx, "Discard?"))
	assert.False(t, NewHeadless(prefs(false), nil).Confirm(ctx, "Discard?"))
}

func TestShowErrorPublishes(t *testing.T) {
	h := NewHeadless(prefs(true), nil)
	h.now = func() time.Time { return time.Unix(100, 0) }

	var got []Message
	defer h.OnMessage(func(m Message) { got = append(got, m) })()

	_, ok := h.LastError()
	assert.False(t, ok)

	h.ShowError(context.Background(), "Saving failed")
	require.Len(t, got, 1)
	assert.Equal(t, "Saving failed", got[0].Text)
	assert.Equal(t, "error", got[0].Level)

	last, ok := h.LastError()
	assert.True(t, ok)
	assert.Equal(t, got[0], last)
}

func TestPickSaveFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "rec")
	h := NewHeadless(prefs(true), nil)
	h.now = func() time.Time { return time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC) }

	path, ok := h.PickSaveFile(context.Background(), dir)
	require.True(t, ok)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "flight-20240601-123000-"))
	assert.Equal(t, ".flr", filepath.Ext(path))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	other, _ := h.PickSaveFile(context.Background(), dir)
	assert.NotEqual(t, path, other)

	_, ok = h.PickSaveFile(context.Background(), "")
	assert.False(t, ok)
}

func TestPickOpenFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	queued := filepath.Join(dir, "queued.flr")
	latest := filepath.Join(dir, "latest.flr")
	require.NoError(t, os.WriteFile(queued, []byte("q"), 0o644))
	require.NoError(t, os.WriteFile(latest, []byte("l"), 0o644))

	idx := &fakeIndex{}
	h := NewHeadless(prefs(true), idx)

	t.Run("Nothing", func(t *testing.T) {
		path, r, err := h.PickOpenFile(ctx, dir)
		require.NoError(t, err)
		assert.Nil(t, r)
		assert.Empty(t, path)
	})

	t.Run("LatestFromIndex", func(t *testing.T) {
		idx.latest = &store.RecordingEntry{Path: latest}
		path, r, err := h.PickOpenFile(ctx, dir)
		require.NoError(t, err)
		defer r.Close()
		assert.Equal(t, latest, path)
		b, _ := io.ReadAll(r)
		assert.Equal(t, "l", string(b))
	})

	t.Run("QueuedWinsOnce", func(t *testing.T) {
		h.QueueOpenFile("queued.flr")
		path, r, err := h.PickOpenFile(ctx, dir)
		require.NoError(t, err)
		r.Close()
		assert.Equal(t, queued, path)

		path, r, err = h.PickOpenFile(ctx, dir)
		require.NoError(t, err)
		r.Close()
		assert.Equal(t, latest, path)
	})

	t.Run("MissingFile", func(t *testing.T) {
		h.QueueOpenFile(filepath.Join(dir, "gone.flr"))
		_, r, err := h.PickOpenFile(ctx, dir)
		assert.Error(t, err)
		assert.Nil(t, r)
	})
}
