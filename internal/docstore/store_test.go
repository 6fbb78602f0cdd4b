package docstore_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GrooveGauge/internal/docstore"
	"GrooveGauge/internal/emotion"
	"GrooveGauge/internal/sessionlog"
)

func sampleLog() sessionlog.Log {
	start := time.Date(2025, 6, 1, 21, 3, 4, 123_000_000, time.UTC)
	return sessionlog.New(
		emotion.NewReading(start, emotion.Happy),
		emotion.NewReading(start.Add(2500*time.Millisecond), emotion.Sad),
	)
}

func TestFileName(t *testing.T) {
	now := time.Date(2025, 6, 1, 23, 3, 4, 123_000_000, time.FixedZone("CEST", 2*3600))
	assert.Equal(t, "emotion_log_2025-06-01T21-03-04-123Z.csv", docstore.FileName(now))
}

func TestExportImportRoundTrip(t *testing.T) {
	store := docstore.New(filepath.Join(t.TempDir(), "docs"))
	log := sampleLog()

	path, err := store.Export(log, log.StartTime())
	require.NoError(t, err)
	assert.Equal(t, "emotion_log_2025-06-01T21-03-04-123Z.csv", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Timestamp,Emotion\n2025-06-01T21:03:04.123Z,happy\n2025-06-01T21:03:06.623Z,sad", string(data))

	imported, report, err := store.Import(path, sessionlog.ImportStrict)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Accepted)
	assert.True(t, log.Equal(imported))
}

func TestImportMissingFile(t *testing.T) {
	store := docstore.New(t.TempDir())
	_, _, err := store.Import(filepath.Join(store.Dir, "missing.csv"), sessionlog.ImportStrict)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestListNewestFirst(t *testing.T) {
	store := docstore.New(t.TempDir())
	log := sampleLog()
	base := time.Date(2025, 6, 1, 21, 0, 0, 0, time.UTC)

	for _, offset := range []time.Duration{0, 2 * time.Hour, time.Hour} {
		_, err := store.Export(log, base.Add(offset))
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir, "notes.txt"), []byte("x"), 0o644))

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "emotion_log_2025-06-01T23-00-00-000Z.csv", entries[0].Name)
	assert.Equal(t, "emotion_log_2025-06-01T21-00-00-000Z.csv", entries[2].Name)
	assert.Positive(t, entries[0].Size)
}

func TestListMissingDir(t *testing.T) {
	entries, err := docstore.New(filepath.Join(t.TempDir(), "nope")).List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCommandSharer(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	target := filepath.Join(t.TempDir(), "shared.csv")
	sharer, err := docstore.NewCommandSharer("cp")
	require.NoError(t, err)
	sharer.Args = append(sharer.Args, "-p")

	src := filepath.Join(t.TempDir(), "log.csv")
	require.NoError(t, os.WriteFile(src, []byte("Timestamp,Emotion"), 0o644))

	// cp -p <src> <target>：路径总是最后一个参数
	sharer.Args = append(sharer.Args, src)
	require.NoError(t, sharer.Share(context.Background(), target, docstore.MimeType))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "Timestamp,Emotion", string(data))

	_, err = docstore.NewCommandSharer("  ")
	assert.Error(t, err)
}

func TestLogSharer(t *testing.T) {
	assert.NoError(t, docstore.LogSharer{}.Share(context.Background(), "/tmp/x.csv", docstore.MimeType))
}
