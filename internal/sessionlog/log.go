package sessionlog

import (
	"time"

	"GrooveGauge/internal/emotion"
)

// Log 一次录制会话的有序读数序列（值类型，不可变）
//
// 插入顺序即采集完成顺序；允许重复读数。
type Log struct {
	readings []emotion.Reading
}

// New 创建会话日志，复制传入的读数
func New(readings ...emotion.Reading) Log {
	if len(readings) == 0 {
		return Log{}
	}
	copied := make([]emotion.Reading, len(readings))
	copy(copied, readings)
	return Log{readings: copied}
}

// Len 读数数量
func (l Log) Len() int {
	return len(l.readings)
}

// IsEmpty 是否为空日志
func (l Log) IsEmpty() bool {
	return len(l.readings) == 0
}

// At 返回第i个读数
func (l Log) At(i int) emotion.Reading {
	return l.readings[i]
}

// Readings 返回读数副本
func (l Log) Readings() []emotion.Reading {
	return append([]emotion.Reading{}, l.readings...)
}

// StartTime 第一个读数的时间，空日志返回零值
func (l Log) StartTime() time.Time {
	if len(l.readings) == 0 {
		return time.Time{}
	}
	return l.readings[0].Timestamp
}

// Emotions 按顺序返回所有情绪标签
func (l Log) Emotions() []string {
	labels := make([]string, len(l.readings))
	for i, r := range l.readings {
		labels[i] = r.Emotion
	}
	return labels
}

// Equal 比较两个日志（时间戳按毫秒比较）
func (l Log) Equal(other Log) bool {
	if len(l.readings) != len(other.readings) {
		return false
	}
	for i := range l.readings {
		a, b := l.readings[i], other.readings[i]
		if a.Emotion != b.Emotion || a.UnixMilli() != b.UnixMilli() {
			return false
		}
	}
	return true
}
