package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"GrooveGauge/internal/sessionlog"
)

// AssertChronological 断言读数按时间非递减排列
func AssertChronological(t *testing.T, log sessionlog.Log) {
	t.Helper()

	readings := log.Readings()
	outOfOrder := 0
	for i := 1; i < len(readings); i++ {
		if readings[i].Timestamp.Before(readings[i-1].Timestamp) {
			outOfOrder++
		}
	}
	assert.Zero(t, outOfOrder, "readings out of chronological order")
}

// AssertEmotions 断言日志中的情绪序列
func AssertEmotions(t *testing.T, log sessionlog.Log, expected ...string) {
	t.Helper()
	if len(expected) == 0 {
		assert.True(t, log.IsEmpty(), "expected an empty log, got %v", log.Emotions())
		return
	}
	assert.Equal(t, expected, log.Emotions(), "unexpected emotion sequence")
}
