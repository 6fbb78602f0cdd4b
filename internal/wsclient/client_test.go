package wsclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GrooveGauge/internal/emotion"
	"GrooveGauge/internal/logger"
	"GrooveGauge/internal/wsclient"
)

type collector struct {
	mu   sync.Mutex
	msgs []logger.LogMessage
}

func (c *collector) handle(msg logger.LogMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *collector) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.msgs))
	for i, m := range c.msgs {
		out[i] = m.Message
	}
	return out
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testConfig(url string) *wsclient.ClientConfig {
	cfg := wsclient.DefaultClientConfig(url)
	cfg.ReconnectInterval = 10 * time.Millisecond
	cfg.MaxReconnectTries = 3
	cfg.PingInterval = 50 * time.Millisecond
	cfg.PingTimeout = time.Second
	return cfg
}

func TestSubscribeToHub(t *testing.T) {
	hub := logger.NewWebSocketLogger()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	server := httptest.NewServer(hub)
	defer server.Close()

	client := wsclient.New(testConfig(wsURL(server)))
	var got collector
	client.SetMessageHandler(got.handle)

	var rtts atomic.Int32
	client.SetRTTHandler(func(time.Duration) { rtts.Add(1) })

	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()
	assert.Equal(t, wsclient.StateConnected, client.State())

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	hub.LogReading("s1", emotion.NewReading(time.Now(), emotion.Happy), "")

	require.Eventually(t, func() bool { return len(got.messages()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "happy (100)", got.messages()[1])

	assert.Eventually(t, func() bool { return rtts.Load() > 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestReconnectsAfterServerDrop(t *testing.T) {
	var connections atomic.Int32
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		n := connections.Add(1)
		conn.WriteJSON(logger.LogMessage{Level: logger.LevelInfo, Message: "conn-" + string(rune('0'+n))})
		if n == 1 {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client := wsclient.New(testConfig(wsURL(server)))
	var got collector
	client.SetMessageHandler(got.handle)

	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	require.Eventually(t, func() bool { return len(got.messages()) == 2 }, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"conn-1", "conn-2"}, got.messages())
	assert.Equal(t, 1, client.Reconnects())
	assert.Eventually(t, func() bool { return client.State() == wsclient.StateConnected }, time.Second, 5*time.Millisecond)
}

func TestDropsOutOfOrderReadings(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for _, ts := range []int64{200, 100, 300} {
			conn.WriteJSON(logger.LogMessage{
				Level:     logger.LevelReading,
				Message:   "reading",
				SessionID: "s1",
				Reading:   &logger.ReadingPayload{Timestamp: ts, Emotion: emotion.Neutral},
			})
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client := wsclient.New(testConfig(wsURL(server)))
	var mu sync.Mutex
	var stamps []int64
	client.SetMessageHandler(func(msg logger.LogMessage) {
		mu.Lock()
		defer mu.Unlock()
		stamps = append(stamps, msg.Reading.Timestamp)
	})

	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(stamps) == 2
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []int64{200, 300}, stamps)
	mu.Unlock()
	assert.Equal(t, int64(1), client.GetStats()["dropped"])
}

func TestCloseEndsSubscription(t *testing.T) {
	hub := logger.NewWebSocketLogger()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)
	server := httptest.NewServer(hub)
	defer server.Close()

	client := wsclient.New(testConfig(wsURL(server)))
	var states []string
	var mu sync.Mutex
	client.SetStateChangeHandler(func(from, to wsclient.ClientState) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, to.String())
	})

	require.NoError(t, client.Connect(context.Background()))
	require.NoError(t, client.Close())

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not end after Close")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"CONNECTING", "CONNECTED", "CLOSED"}, states)
	assert.Error(t, client.Connect(context.Background()))
}

func TestConnectFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(server)
	server.Close()

	client := wsclient.New(testConfig(url))
	assert.Error(t, client.Connect(context.Background()))
	assert.Equal(t, wsclient.StateDisconnected, client.State())
}
