package logger

import (
	"log"
	"strings"
	"sync/atomic"
)

// 日志级别
const (
	LevelDebug   = "DEBUG"
	LevelInfo    = "INFO"
	LevelSuccess = "SUCCESS"
	LevelWarning = "WARNING"
	LevelError   = "ERROR"
	LevelReading = "READING"
)

var levelRank = map[string]int32{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelReading: 1,
	LevelSuccess: 1,
	LevelWarning: 2,
	LevelError:   3,
}

var minLevel atomic.Int32

// InitLogger 初始化日志器，level 为控制台输出的最低级别（debug/info/warning/error）
func InitLogger(level string) {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	SetLevel(level)
	log.Printf("Logger initialized (level=%s)", strings.ToLower(normalizeLevel(level)))
}

// SetLevel 设置控制台最低级别，未知级别按 info 处理
func SetLevel(level string) {
	minLevel.Store(levelRank[normalizeLevel(level)])
}

// Enabled 该级别是否输出到控制台
func Enabled(level string) bool {
	return levelRank[normalizeLevel(level)] >= minLevel.Load()
}

func normalizeLevel(level string) string {
	level = strings.ToUpper(strings.TrimSpace(level))
	if level == "WARN" {
		level = LevelWarning
	}
	if _, ok := levelRank[level]; !ok {
		return LevelInfo
	}
	return level
}
