package capture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GrooveGauge/internal/camera"
	"GrooveGauge/internal/emotion"
	"GrooveGauge/internal/testutil"
)

// stepClock 每次调用前进一秒
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// manualSession 启动一个不会自动触发的会话，由测试直接驱动 tick
func manualSession(t *testing.T, cam *testutil.FakeCamera, cls *testutil.FakeClassifier) *Session {
	t.Helper()
	clock := &stepClock{now: time.Date(2025, 6, 1, 21, 0, 0, 0, time.UTC)}
	s := New(cam, cls, Config{Interval: time.Hour, Now: clock.Now})
	require.NoError(t, s.Start(context.Background(), camera.Descriptor{Position: camera.PositionBack}))
	return s
}

func TestTickAppendsOneReadingPerTick(t *testing.T) {
	cls := testutil.NewFakeClassifier("happy", "sad", "neutral")
	s := manualSession(t, testutil.NewFakeCamera(), cls)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		s.tick(ctx)
	}

	log := s.Stop()
	require.Equal(t, 5, log.Len())
	testutil.AssertEmotions(t, log, "happy", "sad", "neutral", "happy", "sad")
	testutil.AssertChronological(t, log)
	assert.Equal(t, []string{"frame-1", "frame-2", "frame-3", "frame-4", "frame-5"}, cls.Frames())

	stats := s.Stats()
	assert.Equal(t, int64(5), stats.Ticks)
	assert.Equal(t, int64(5), stats.Readings)
	assert.Zero(t, stats.Discarded)
}

func TestTickFailuresBecomeErrorReadings(t *testing.T) {
	cam := testutil.NewFakeCamera().FailAt(2)
	cls := testutil.NewFakeClassifier("happy").FailAt(3)
	s := manualSession(t, cam, cls)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		s.tick(ctx)
	}

	// 取帧失败不调用分类器；第4帧是分类器的第3次调用
	log := s.Stop()
	testutil.AssertEmotions(t, log, "happy", emotion.Error, "happy", emotion.Error, "happy")

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.FrameErrors)
	assert.Equal(t, int64(1), stats.ClassifyErrors)
	assert.Equal(t, 4, cls.Calls())
}

func TestTickDefaultsMissingLabelToNone(t *testing.T) {
	s := manualSession(t, testutil.NewFakeCamera(), testutil.NewFakeClassifier())

	s.tick(context.Background())

	testutil.AssertEmotions(t, s.Stop(), emotion.None)
}

func TestTickIsNoOpWhenNotRecording(t *testing.T) {
	cls := testutil.NewFakeClassifier("happy")
	s := manualSession(t, testutil.NewFakeCamera(), cls)
	s.Stop()

	s.tick(context.Background())

	assert.Zero(t, cls.Calls())
	assert.True(t, s.Log().IsEmpty())
}

func TestAppendAfterStopIsDiscarded(t *testing.T) {
	s := manualSession(t, testutil.NewFakeCamera(), testutil.NewFakeClassifier("happy"))
	s.tick(context.Background())
	frozen := s.Stop()

	s.append(emotion.NewReading(time.Now(), "sad"), "")

	assert.True(t, frozen.Equal(s.Log()))
	assert.Equal(t, 1, s.Log().Len())
	assert.Equal(t, int64(1), s.Stats().Discarded)
}
