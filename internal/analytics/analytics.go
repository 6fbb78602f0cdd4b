package analytics

import (
	"fmt"
	"time"

	"GrooveGauge/internal/emotion"
	"GrooveGauge/internal/sessionlog"
)

const (
	// DefaultInterval 固定采集间隔
	DefaultInterval = 2500 * time.Millisecond
	// NotAvailable 空日志的占位结果
	NotAvailable = "N/A"
)

// EngagementScore 情绪到参与度分数（0-100）
func EngagementScore(label string) int {
	return emotion.EngagementScore(label)
}

// AverageEngagement 所有读数参与度的算术平均，空日志为0
func AverageEngagement(log sessionlog.Log) float64 {
	if log.IsEmpty() {
		return 0
	}
	total := 0
	for i := 0; i < log.Len(); i++ {
		total += log.At(i).Score()
	}
	return float64(total) / float64(log.Len())
}

// DominantEmotion 出现次数最多的情绪，次数相同时先出现者优先，空日志为"N/A"
func DominantEmotion(log sessionlog.Log) string {
	dist := Distribution(log)
	if len(dist) == 0 {
		return NotAvailable
	}
	best := dist[0]
	for _, ec := range dist[1:] {
		// 严格大于才替换，保证并列时按首次出现顺序
		if ec.Count > best.Count {
			best = ec
		}
	}
	return best.Emotion
}

// PeakEngagementTime 第一个达到最高参与度的读数相对开始的时间（m:ss）
//
// 经过时间按 下标×采集间隔 计算，不使用读数的墙上时钟。
func PeakEngagementTime(log sessionlog.Log, interval time.Duration) string {
	idx := PeakIndex(log)
	if idx < 0 {
		return NotAvailable
	}
	return FormatElapsed(time.Duration(idx) * interval)
}

// PeakIndex 第一个最高分读数的下标，空日志为-1
func PeakIndex(log sessionlog.Log) int {
	if log.IsEmpty() {
		return -1
	}
	best, bestScore := 0, log.At(0).Score()
	for i := 1; i < log.Len(); i++ {
		if s := log.At(i).Score(); s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

// ReadingCount 读数数量
func ReadingCount(log sessionlog.Log) int {
	return log.Len()
}

// FormatElapsed 将时长格式化为 分:秒
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// EmotionCount 情绪出现次数
type EmotionCount struct {
	Emotion string `json:"emotion"`
	Count   int    `json:"count"`
}

// Distribution 按首次出现顺序统计各情绪次数
func Distribution(log sessionlog.Log) []EmotionCount {
	var counts []EmotionCount
	index := make(map[string]int)
	for i := 0; i < log.Len(); i++ {
		label := log.At(i).Emotion
		if pos, ok := index[label]; ok {
			counts[pos].Count++
			continue
		}
		index[label] = len(counts)
		counts = append(counts, EmotionCount{Emotion: label, Count: 1})
	}
	return counts
}

// Point 图表数据点
type Point struct {
	Index   int           `json:"index"`
	Elapsed time.Duration `json:"elapsed"`
	Score   int           `json:"score"`
	Emotion string        `json:"emotion"`
}

// Series 生成参与度时间序列
func Series(log sessionlog.Log, interval time.Duration) []Point {
	points := make([]Point, log.Len())
	for i := 0; i < log.Len(); i++ {
		r := log.At(i)
		points[i] = Point{
			Index:   i,
			Elapsed: time.Duration(i) * interval,
			Score:   r.Score(),
			Emotion: r.Emotion,
		}
	}
	return points
}

const (
	feedbackEngaged    = "The crowd is loving it your music - keep it up!"
	feedbackNotEngaged = "The crowd is not very engaged. Consider playing a more upbeat song."
)

// Feedback 根据主导情绪给出DJ提示
func Feedback(label string) string {
	if label == emotion.Happy || label == emotion.Surprise {
		return feedbackEngaged
	}
	return feedbackNotEngaged
}
