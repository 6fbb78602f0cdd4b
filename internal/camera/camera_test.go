package camera_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GrooveGauge/internal/camera"
)

func writeFrames(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
	}
	return dir
}

func TestDirectoryCameraCyclesFramesInNameOrder(t *testing.T) {
	dir := writeFrames(t, "b.jpg", "a.png", "notes.txt", "c.JPEG")
	cam := camera.NewDirectoryCamera(dir, camera.GrantAll())
	ctx := context.Background()

	require.NoError(t, cam.Open(ctx))
	defer cam.Release()
	assert.Equal(t, 3, cam.FrameCount())

	var got []string
	for i := 0; i < 4; i++ {
		frame, err := cam.CaptureFrame(ctx)
		require.NoError(t, err)
		got = append(got, string(frame))
	}
	assert.Equal(t, []string{"a.png", "b.jpg", "c.JPEG", "a.png"}, got)
}

func TestDirectoryCameraIsExclusive(t *testing.T) {
	dir := writeFrames(t, "a.jpg")
	cam := camera.NewDirectoryCamera(dir, camera.GrantAll())
	ctx := context.Background()

	require.NoError(t, cam.Open(ctx))
	assert.ErrorIs(t, cam.Open(ctx), camera.ErrDeviceBusy)

	require.NoError(t, cam.Release())
	require.NoError(t, cam.Open(ctx))
	require.NoError(t, cam.Release())
}

func TestDirectoryCameraWithoutFrames(t *testing.T) {
	cam := camera.NewDirectoryCamera(writeFrames(t, "readme.md"), camera.GrantAll())
	assert.ErrorIs(t, cam.Open(context.Background()), camera.ErrNoFrames)

	_, err := cam.CaptureFrame(context.Background())
	assert.ErrorIs(t, err, camera.ErrNotOpen)
}

func TestPermissionPolicy(t *testing.T) {
	policy := camera.PermissionPolicy{Camera: true}

	granted, err := policy.RequestPermission(context.Background(), camera.PermissionCamera)
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = policy.RequestPermission(context.Background(), camera.PermissionMicrophone)
	require.NoError(t, err)
	assert.False(t, granted)
}

func TestParsePosition(t *testing.T) {
	pos, err := camera.ParsePosition("Front")
	require.NoError(t, err)
	assert.Equal(t, camera.PositionFront, pos)

	pos, err = camera.ParsePosition("")
	require.NoError(t, err)
	assert.Equal(t, camera.PositionBack, pos)

	_, err = camera.ParsePosition("side")
	assert.Error(t, err)
}

func TestSnapshotCamera(t *testing.T) {
	status := http.StatusOK
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte("jpeg-bytes"))
	}))
	defer server.Close()

	cam := camera.NewSnapshotCamera(server.URL, time.Second, camera.GrantAll())
	ctx := context.Background()

	_, err := cam.CaptureFrame(ctx)
	assert.ErrorIs(t, err, camera.ErrNotOpen)

	require.NoError(t, cam.Open(ctx))
	defer cam.Release()

	frame, err := cam.CaptureFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(frame))

	status = http.StatusServiceUnavailable
	_, err = cam.CaptureFrame(ctx)
	assert.Error(t, err)
}
