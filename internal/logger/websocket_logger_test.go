package logger_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GrooveGauge/internal/emotion"
	"GrooveGauge/internal/logger"
)

func startHub(t *testing.T) (*logger.WebSocketLogger, string) {
	t.Helper()

	hub := logger.NewWebSocketLogger()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(hub)
	t.Cleanup(func() {
		cancel()
		server.Close()
	})

	return hub, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return conn
}

func TestHubSendsWelcomeAndReadings(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)

	var welcome logger.LogMessage
	require.NoError(t, conn.ReadJSON(&welcome))
	assert.Equal(t, logger.LevelInfo, welcome.Level)
	assert.Equal(t, "feed", welcome.Module)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	ts := time.Date(2025, 6, 1, 21, 0, 0, 0, time.UTC)
	hub.LogReading("session-1234567890", emotion.NewReading(ts, emotion.Surprise), "nice")

	var msg logger.LogMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, logger.LevelReading, msg.Level)
	assert.Equal(t, "session-1234567890", msg.SessionID)
	require.NotNil(t, msg.Reading)
	assert.Equal(t, ts.UnixMilli(), msg.Reading.Timestamp)
	assert.Equal(t, emotion.Surprise, msg.Reading.Emotion)
	assert.Equal(t, 75, msg.Reading.Score)
	assert.Equal(t, "nice", msg.Reading.Feedback)

	hub.LogError("classifier", "", "service unavailable")
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, logger.LevelError, msg.Level)
	assert.Equal(t, "service unavailable", msg.Message)
	assert.Nil(t, msg.Reading)
}

func TestHubDropsClosedClients(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)

	var welcome logger.LogMessage
	require.NoError(t, conn.ReadJSON(&welcome))
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestPublishNeverBlocks(t *testing.T) {
	hub := logger.NewWebSocketLogger()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.LogInfo("test", "", "flood")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("logging blocked without a running hub")
	}
}

func TestLevels(t *testing.T) {
	defer logger.SetLevel("info")

	logger.SetLevel("warn")
	assert.False(t, logger.Enabled(logger.LevelInfo))
	assert.True(t, logger.Enabled(logger.LevelWarning))
	assert.True(t, logger.Enabled(logger.LevelError))

	logger.SetLevel("bogus")
	assert.True(t, logger.Enabled(logger.LevelInfo))
	assert.False(t, logger.Enabled(logger.LevelDebug))
}
