package sessionlog

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"GrooveGauge/internal/emotion"
)

const (
	// Header CSV首行
	Header = "Timestamp,Emotion"
	// TimestampLayout 导出时间格式（UTC，毫秒精度ISO-8601）
	TimestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

var (
	// ErrImportParse 导入内容格式错误
	ErrImportParse = errors.New("malformed session log")
	// ErrEmptyDocument 导入内容为空
	ErrEmptyDocument = errors.New("empty session log document")
)

// ImportMode 导入遇到错误行时的处理策略
type ImportMode int

const (
	// ImportStrict 任一错误行使整个导入失败
	ImportStrict ImportMode = iota
	// ImportSkipMalformed 跳过错误行并在报告中计数
	ImportSkipMalformed
)

// String 实现字符串接口
func (m ImportMode) String() string {
	switch m {
	case ImportStrict:
		return "strict"
	case ImportSkipMalformed:
		return "skip"
	default:
		return "unknown"
	}
}

// ParseImportMode 解析配置中的导入模式
func ParseImportMode(s string) (ImportMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return ImportStrict, nil
	case "skip", "skip_malformed", "lenient":
		return ImportSkipMalformed, nil
	default:
		return ImportStrict, fmt.Errorf("unknown import mode %q", s)
	}
}

// LineError 单行解析错误
type LineError struct {
	Line   int
	Text   string
	Reason string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %s (%q)", e.Line, e.Reason, e.Text)
}

func (e *LineError) Unwrap() error {
	return ErrImportParse
}

// ImportReport 导入结果统计
type ImportReport struct {
	Accepted int
	Skipped  int
	Errors   []*LineError
}

// WriteCSV 将日志写为CSV文档
func WriteCSV(w io.Writer, l Log) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(Header); err != nil {
		return err
	}
	for _, r := range l.readings {
		// 标签来自固定词表，不含逗号，无需转义
		line := "\n" + r.Timestamp.UTC().Format(TimestampLayout) + "," + r.Emotion
		if _, err := bw.WriteString(line); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// MarshalCSV 导出为CSV字节
func (l Log) MarshalCSV() []byte {
	var buf bytes.Buffer
	_ = WriteCSV(&buf, l)
	return buf.Bytes()
}

// ParseCSV 解析CSV文档为会话日志，文件顺序即日志顺序
func ParseCSV(r io.Reader, mode ImportMode) (Log, ImportReport, error) {
	var report ImportReport

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	sawHeader := false
	var readings []emotion.Reading

	for scanner.Scan() {
		lineNo++
		text := strings.TrimRight(scanner.Text(), "\r")

		// 首行为表头；宽松模式下缺少表头时首行按数据行解析
		if !sawHeader {
			sawHeader = true
			if isHeader(text) {
				continue
			}
			if mode == ImportStrict {
				return Log{}, report, &LineError{Line: lineNo, Text: text, Reason: "missing header"}
			}
		}

		if strings.TrimSpace(text) == "" {
			continue
		}

		reading, lineErr := parseLine(lineNo, text)
		if lineErr != nil {
			if mode == ImportStrict {
				return Log{}, report, lineErr
			}
			report.Skipped++
			report.Errors = append(report.Errors, lineErr)
			continue
		}

		readings = append(readings, reading)
		report.Accepted++
	}

	if err := scanner.Err(); err != nil {
		return Log{}, report, fmt.Errorf("read session log: %w", err)
	}

	if !sawHeader {
		return Log{}, report, ErrEmptyDocument
	}

	return Log{readings: readings}, report, nil
}

// UnmarshalCSV 严格模式解析
func UnmarshalCSV(data []byte) (Log, error) {
	l, _, err := ParseCSV(bytes.NewReader(data), ImportStrict)
	return l, err
}

func isHeader(line string) bool {
	return strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(line, "\ufeff")), Header)
}

// parseLine 按第一个逗号拆分为时间戳和情绪
func parseLine(lineNo int, text string) (emotion.Reading, *LineError) {
	tsStr, label, ok := strings.Cut(text, ",")
	if !ok {
		return emotion.Reading{}, &LineError{Line: lineNo, Text: text, Reason: "expected two fields"}
	}

	ts, err := parseTimestamp(strings.TrimSpace(tsStr))
	if err != nil {
		return emotion.Reading{}, &LineError{Line: lineNo, Text: text, Reason: "invalid timestamp"}
	}

	label = strings.TrimSpace(label)
	if label == "" {
		return emotion.Reading{}, &LineError{Line: lineNo, Text: text, Reason: "empty emotion"}
	}

	return emotion.NewReading(ts, label), nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		ts, err := time.Parse(layout, s)
		if err == nil {
			return ts.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
