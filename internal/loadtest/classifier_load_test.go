package loadtest_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GrooveGauge/internal/classifier"
	"GrooveGauge/internal/classifierserver"
	"GrooveGauge/internal/loadtest"
)

type flakyClassifier struct {
	calls atomic.Int64
}

func (f *flakyClassifier) Classify(ctx context.Context, frame []byte) (*classifier.Result, error) {
	if f.calls.Add(1)%2 == 0 {
		return nil, &classifier.StatusError{StatusCode: http.StatusServiceUnavailable, Body: "busy"}
	}
	return &classifier.Result{Emotion: string(frame)}, nil
}

func TestRunAgainstReferenceServer(t *testing.T) {
	cfg := classifierserver.DefaultConfig()
	cfg.ValidateImages = false
	srv := httptest.NewServer(classifierserver.New(cfg).Handler())
	defer srv.Close()

	client := classifier.New(classifier.DefaultConfig(srv.URL))
	tester := loadtest.New(client, loadtest.Config{
		ConcurrentClients: 2,
		Duration:          200 * time.Millisecond,
		TargetRPS:         40,
		Frames:            [][]byte{[]byte("frame-a"), []byte("frame-b")},
	})

	result, err := tester.Run(context.Background())
	require.NoError(t, err)

	assert.Positive(t, result.TotalRequests)
	assert.Equal(t, result.TotalRequests, result.SuccessfulRequests)
	assert.Zero(t, result.FailedRequests)
	assert.LessOrEqual(t, result.MinLatency, result.P50Latency)
	assert.LessOrEqual(t, result.P50Latency, result.P99Latency)
	assert.LessOrEqual(t, result.P99Latency, result.MaxLatency)

	var counted int64
	for _, n := range result.Emotions {
		counted += n
	}
	assert.Equal(t, result.SuccessfulRequests, counted)
}

func TestRunCountsErrorsByStatus(t *testing.T) {
	tester := loadtest.New(&flakyClassifier{}, loadtest.Config{
		ConcurrentClients: 1,
		Duration:          100 * time.Millisecond,
		TargetRPS:         100,
		Frames:            [][]byte{[]byte("happy")},
	})

	result, err := tester.Run(context.Background())
	require.NoError(t, err)

	require.GreaterOrEqual(t, result.TotalRequests, int64(2))
	assert.Equal(t, result.TotalRequests, result.SuccessfulRequests+result.FailedRequests)
	assert.Equal(t, result.FailedRequests, result.ErrorsByType["http_503"])
	assert.Equal(t, result.SuccessfulRequests, result.Emotions["happy"])
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cases := map[string]loadtest.Config{
		"no frames":  {ConcurrentClients: 1, Duration: time.Second},
		"no clients": {Duration: time.Second, Frames: [][]byte{{1}}},
		"duration":   {ConcurrentClients: 1, Frames: [][]byte{{1}}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := loadtest.New(&flakyClassifier{}, cfg).Run(context.Background())
			assert.Error(t, err)
		})
	}
}
