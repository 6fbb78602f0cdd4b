package emotion

import (
	"time"
)

// 情绪标签词表
const (
	Happy    = "happy"
	Surprise = "surprise"
	Neutral  = "neutral"
	Fear     = "fear"
	Anger    = "anger"
	Angry    = "angry" // 分类服务实际返回的拼写，不在分数表中
	Sad      = "sad"
	Disgust  = "disgust"

	// None 服务未返回标签时的默认值
	None = "None"
	// NoFace 服务未检测到人脸时返回的标签
	NoFace = "none"
	// Error 采集或分类失败时记录的标签
	Error = "Error"
)

// Vocabulary 分类服务可能返回的情绪标签
var Vocabulary = []string{Happy, Surprise, Neutral, Fear, Angry, Sad, Disgust}

// engagementScores 情绪到参与度分数的固定映射
var engagementScores = map[string]int{
	Happy:    100,
	Surprise: 75,
	Neutral:  50,
	Fear:     35,
	Anger:    25,
	Sad:      20,
}

// Reading 一次带时间戳的情绪分类结果，创建后不可修改
type Reading struct {
	Timestamp time.Time `json:"timestamp"`
	Emotion   string    `json:"emotion"`
}

// NewReading 创建读数，时间截断到毫秒精度
func NewReading(ts time.Time, label string) Reading {
	return Reading{
		Timestamp: ts.Truncate(time.Millisecond),
		Emotion:   label,
	}
}

// UnixMilli 返回毫秒时间戳
func (r Reading) UnixMilli() int64 {
	return r.Timestamp.UnixMilli()
}

// Score 返回该读数的参与度分数
func (r Reading) Score() int {
	return EngagementScore(r.Emotion)
}

// IsError 是否为失败读数
func (r Reading) IsError() bool {
	return r.Emotion == Error
}

// EngagementScore 返回情绪标签对应的参与度分数（0-100），未知标签为0
func EngagementScore(label string) int {
	return engagementScores[label]
}

// IsSentinel 判断标签是否为哨兵值（None/none/Error）
func IsSentinel(label string) bool {
	switch label {
	case None, NoFace, Error:
		return true
	default:
		return false
	}
}

// OrDefault 服务省略标签时返回 None
func OrDefault(label string) string {
	if label == "" {
		return None
	}
	return label
}
