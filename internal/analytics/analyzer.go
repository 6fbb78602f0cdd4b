package analytics

import (
	"time"

	"GrooveGauge/internal/emotion"
	"GrooveGauge/internal/sessionlog"
)

// Summary 会话摘要统计
type Summary struct {
	ReadingCount      int           `json:"reading_count"`
	AverageEngagement float64       `json:"average_engagement"`
	DominantEmotion   string        `json:"dominant_emotion"`
	PeakTime          string        `json:"peak_time"`
	PeakScore         int           `json:"peak_score"`
	ErrorCount        int           `json:"error_count"`
	NoneCount         int           `json:"none_count"`
	Duration          time.Duration `json:"duration"`
	Date              string        `json:"date,omitempty"`
}

// Analyzer 会话日志分析器
type Analyzer struct {
	log      sessionlog.Log
	interval time.Duration
}

// NewAnalyzer 创建分析器，interval<=0 时使用默认采集间隔
func NewAnalyzer(log sessionlog.Log, interval time.Duration) *Analyzer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Analyzer{log: log, interval: interval}
}

// Interval 返回分析使用的采集间隔
func (a *Analyzer) Interval() time.Duration {
	return a.interval
}

// Summary 计算摘要统计
func (a *Analyzer) Summary() Summary {
	s := Summary{
		ReadingCount:      ReadingCount(a.log),
		AverageEngagement: AverageEngagement(a.log),
		DominantEmotion:   DominantEmotion(a.log),
		PeakTime:          PeakEngagementTime(a.log, a.interval),
		Duration:          time.Duration(a.log.Len()) * a.interval,
	}

	if idx := PeakIndex(a.log); idx >= 0 {
		s.PeakScore = a.log.At(idx).Score()
	}

	for i := 0; i < a.log.Len(); i++ {
		switch a.log.At(i).Emotion {
		case emotion.Error:
			s.ErrorCount++
		case emotion.None, emotion.NoFace:
			s.NoneCount++
		}
	}

	if !a.log.IsEmpty() {
		s.Date = a.log.StartTime().Local().Format("2006-01-02")
	}

	return s
}

// Series 图表数据
func (a *Analyzer) Series() []Point {
	return Series(a.log, a.interval)
}

// ErrorRate 失败读数占比
func (a *Analyzer) ErrorRate() float64 {
	if a.log.IsEmpty() {
		return 0
	}
	return float64(a.Summary().ErrorCount) / float64(a.log.Len())
}

// GenerateReport 生成完整报告
func (a *Analyzer) GenerateReport() map[string]interface{} {
	summary := a.Summary()

	report := map[string]interface{}{
		"summary":      summary,
		"distribution": Distribution(a.log),
		"series":       a.Series(),
		"error_rate":   a.ErrorRate(),
		"interval_ms":  a.interval.Milliseconds(),
	}
	if summary.DominantEmotion != NotAvailable {
		report["feedback"] = Feedback(summary.DominantEmotion)
	}

	return report
}
