package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"flightrec/pkg/db"
	"flightrec/pkg/model"
	"flightrec/pkg/store"
)

func sampleRecording() *model.Recording {
	return &model.Recording{
		StartMillis: 1_700_000_000_000,
		EndMillis:   1_700_000_000_300,
		Samples: []model.Sample{
			{ElapsedMillis: 0, Position: model.Position{Latitude: 47.1, Longitude: 8.2, Altitude: 1500, TrueHeading: 359}},
			{ElapsedMillis: 120, Position: model.Position{Latitude: 47.2, Longitude: 8.3, Altitude: 1520, TrueHeading: 1, IsOnGround: 1}},
			{ElapsedMillis: 250, Position: model.Position{Latitude: 47.3, Longitude: 8.4, Altitude: 1540, GearHandlePosition: 1}},
		},
	}
}

func TestEncodeDecode(t *testing.T) {
	var buf bytes.Buffer
	rec := sampleRecording()
	require.NoError(t, Encode(&buf, rec, time.Now()))

	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestDecode_RejectsUnknownVersion(t *testing.T) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	require.NoError(t, msgpack.NewEncoder(zw).Encode(&envelope{Version: 99}))
	require.NoError(t, zw.Close())

	_, err = Decode(&buf)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestDecode_RejectsUnorderedSamples(t *testing.T) {
	rec := sampleRecording()
	rec.Samples[1].ElapsedMillis = 500

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, rec, time.Now()))

	_, err := Decode(&buf)
	assert.ErrorIs(t, err, model.ErrInvalidRecording)
}

func TestDecode_Garbage(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("not a recording")))
	assert.Error(t, err)
}

func TestStorage_SaveIndexesAndLoads(t *testing.T) {
	dir := t.TempDir()
	d, err := db.Init(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	defer d.Close()
	index := store.NewSQLiteStore(d)

	s := New(index)
	fixed := time.Date(2024, 4, 2, 9, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	ctx := context.Background()
	path := filepath.Join(dir, "flights", "circuit"+Extension)
	require.NoError(t, s.Save(ctx, path, sampleRecording()))

	entries, err := index.ListRecordings(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, path, entries[0].Path)
	assert.Equal(t, 3, entries[0].Samples)
	assert.Equal(t, int64(250), entries[0].DurationMs)
	assert.True(t, fixed.Equal(entries[0].SavedAt))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rec, err := s.Load(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, sampleRecording(), rec)

	// No temp files left behind
	files, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestStorage_SaveNil(t *testing.T) {
	s := New(nil)
	err := s.Save(context.Background(), filepath.Join(t.TempDir(), "x"+Extension), nil)
	assert.ErrorIs(t, err, model.ErrInvalidRecording)
}
