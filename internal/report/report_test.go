package report_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"GrooveGauge/internal/analytics"
	"GrooveGauge/internal/emotion"
	"GrooveGauge/internal/report"
	"GrooveGauge/internal/sessionlog"
)

func points(scores ...int) []analytics.Point {
	out := make([]analytics.Point, len(scores))
	for i, s := range scores {
		out[i] = analytics.Point{Index: i, Score: s}
	}
	return out
}

func TestSparkline(t *testing.T) {
	assert.Equal(t, "▁█", report.Sparkline(points(0, 100), 10))
	assert.Equal(t, "█▁", report.Sparkline(points(100, 100, 0, 0), 2))
	assert.Equal(t, "", report.Sparkline(nil, 10))
	assert.Equal(t, 5, len([]rune(report.Sparkline(points(make([]int, 40)...), 5))))
}

func TestRenderSummary(t *testing.T) {
	base := time.Date(2025, 6, 1, 21, 0, 0, 0, time.Local)
	log := sessionlog.New(
		emotion.NewReading(base, emotion.Sad),
		emotion.NewReading(base.Add(2500*time.Millisecond), emotion.Happy),
		emotion.NewReading(base.Add(5*time.Second), emotion.Happy),
		emotion.NewReading(base.Add(7500*time.Millisecond), emotion.Error),
	)
	a := analytics.NewAnalyzer(log, 0)

	out := report.Render(a.Summary(), a.Series(), 60)

	for _, want := range []string{
		"Session Overview",
		"2025-06-01",
		"Average Happiness:",
		"55.0",
		"Most Common Emotion:",
		"happy",
		"Peak Happiness Time:",
		"0:02",
		"Readings:",
		"Failed Readings:",
	} {
		assert.Contains(t, out, want)
	}
}

func TestRenderEmptyLog(t *testing.T) {
	a := analytics.NewAnalyzer(sessionlog.New(), 0)
	out := report.Render(a.Summary(), a.Series(), 0)

	assert.Contains(t, out, "no readings")
	assert.Contains(t, out, "N/A")
	assert.False(t, strings.Contains(out, "Failed Readings:"))
}
