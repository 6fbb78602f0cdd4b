package analytics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GrooveGauge/internal/analytics"
	"GrooveGauge/internal/emotion"
	"GrooveGauge/internal/sessionlog"
)

func logOf(labels ...string) sessionlog.Log {
	base := time.Date(2025, 6, 1, 21, 0, 0, 0, time.UTC)
	readings := make([]emotion.Reading, len(labels))
	for i, label := range labels {
		readings[i] = emotion.NewReading(base.Add(time.Duration(i)*analytics.DefaultInterval), label)
	}
	return sessionlog.New(readings...)
}

func TestEmptyLogSentinels(t *testing.T) {
	empty := sessionlog.New()

	assert.Equal(t, 0.0, analytics.AverageEngagement(empty))
	assert.Equal(t, "N/A", analytics.DominantEmotion(empty))
	assert.Equal(t, "N/A", analytics.PeakEngagementTime(empty, analytics.DefaultInterval))
	assert.Equal(t, 0, analytics.ReadingCount(empty))
}

func TestAverageEngagement(t *testing.T) {
	assert.Equal(t, 60.0, analytics.AverageEngagement(logOf("happy", "sad")))
	assert.Equal(t, 0.0, analytics.AverageEngagement(logOf("Error", "None")))
	assert.InDelta(t, 36.67, analytics.AverageEngagement(logOf("neutral", "fear", "anger")), 0.01)
	assert.InDelta(t, 28.33, analytics.AverageEngagement(logOf("neutral", "fear", "angry")), 0.01)
}

func TestDominantEmotionTieBreaksByFirstOccurrence(t *testing.T) {
	assert.Equal(t, "happy", analytics.DominantEmotion(logOf("happy", "sad", "happy", "sad")))
	assert.Equal(t, "sad", analytics.DominantEmotion(logOf("sad", "happy", "happy", "sad")))
	assert.Equal(t, "neutral", analytics.DominantEmotion(logOf("happy", "neutral", "neutral")))
	assert.Equal(t, "Error", analytics.DominantEmotion(logOf("Error")))
}

func TestPeakEngagementTimeUsesFirstMaximum(t *testing.T) {
	assert.Equal(t, "0:00", analytics.PeakEngagementTime(logOf("happy", "sad", "happy"), analytics.DefaultInterval))
	assert.Equal(t, "0:05", analytics.PeakEngagementTime(logOf("sad", "neutral", "happy", "happy"), analytics.DefaultInterval))

	labels := make([]string, 30)
	for i := range labels {
		labels[i] = "sad"
	}
	labels[25] = "surprise"
	assert.Equal(t, "1:02", analytics.PeakEngagementTime(logOf(labels...), analytics.DefaultInterval))
}

func TestPeakWithAllZeroScoresIsFirstReading(t *testing.T) {
	assert.Equal(t, "0:00", analytics.PeakEngagementTime(logOf("Error", "None"), analytics.DefaultInterval))
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "0:00", analytics.FormatElapsed(0))
	assert.Equal(t, "0:02", analytics.FormatElapsed(2500*time.Millisecond))
	assert.Equal(t, "10:00", analytics.FormatElapsed(10*time.Minute))
	assert.Equal(t, "0:00", analytics.FormatElapsed(-time.Second))
}

func TestDistributionOrder(t *testing.T) {
	dist := analytics.Distribution(logOf("sad", "happy", "sad", "Error"))
	assert.Equal(t, []analytics.EmotionCount{
		{Emotion: "sad", Count: 2},
		{Emotion: "happy", Count: 1},
		{Emotion: "Error", Count: 1},
	}, dist)
}

func TestSeries(t *testing.T) {
	points := analytics.Series(logOf("happy", "surprise"), analytics.DefaultInterval)
	require.Len(t, points, 2)
	assert.Equal(t, 100, points[0].Score)
	assert.Equal(t, 2500*time.Millisecond, points[1].Elapsed)
	assert.Equal(t, "surprise", points[1].Emotion)
}

func TestAnalyzerSummaryAndReport(t *testing.T) {
	a := analytics.NewAnalyzer(logOf("neutral", "happy", "Error", "None", "happy"), 0)
	assert.Equal(t, analytics.DefaultInterval, a.Interval())

	s := a.Summary()
	assert.Equal(t, 5, s.ReadingCount)
	assert.Equal(t, 50.0, s.AverageEngagement)
	assert.Equal(t, "happy", s.DominantEmotion)
	assert.Equal(t, "0:02", s.PeakTime)
	assert.Equal(t, 100, s.PeakScore)
	assert.Equal(t, 1, s.ErrorCount)
	assert.Equal(t, 1, s.NoneCount)
	assert.Equal(t, 12500*time.Millisecond, s.Duration)
	assert.NotEmpty(t, s.Date)
	assert.InDelta(t, 0.2, a.ErrorRate(), 1e-9)

	report := a.GenerateReport()
	assert.Equal(t, analytics.Feedback("happy"), report["feedback"])
	assert.Equal(t, int64(2500), report["interval_ms"])

	emptyReport := analytics.NewAnalyzer(sessionlog.New(), 0).GenerateReport()
	_, hasFeedback := emptyReport["feedback"]
	assert.False(t, hasFeedback)
}

func TestFeedback(t *testing.T) {
	assert.Contains(t, analytics.Feedback("happy"), "keep it up")
	assert.Contains(t, analytics.Feedback("surprise"), "keep it up")
	assert.Contains(t, analytics.Feedback("sad"), "more upbeat")
}
