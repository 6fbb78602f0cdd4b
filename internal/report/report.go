package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"GrooveGauge/internal/analytics"
)

const (
	// Title 结果页标题
	Title = "Session Overview"

	minWidth = 30
)

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

var (
	colorAccent = lipgloss.Color("#4ECDC4")
	colorBorder = lipgloss.Color("#555555")
	colorDimmed = lipgloss.Color("#888888")
	colorGood   = lipgloss.Color("#2ECC71")
	colorWarn   = lipgloss.Color("#F39C12")
	colorBad    = lipgloss.Color("#E74C3C")
)

// Render 渲染会话概览：标题、日期、参与度走势和统计信息
func Render(summary analytics.Summary, series []analytics.Point, width int) string {
	if width < minWidth {
		width = minWidth
	}
	inner := width - 4

	title := lipgloss.NewStyle().Bold(true).Foreground(colorAccent).Render(Title)

	date := summary.Date
	if date == "" {
		date = analytics.NotAvailable
	}
	dateLine := lipgloss.NewStyle().Foreground(colorDimmed).Render(date)

	chart := lipgloss.NewStyle().Foreground(scoreColor(summary.AverageEngagement)).
		Render(Sparkline(series, inner))
	if len(series) == 0 {
		chart = lipgloss.NewStyle().Foreground(colorDimmed).Render("no readings")
	}

	label := lipgloss.NewStyle().Foreground(colorDimmed).Width(22)
	stats := []string{
		label.Render("Average Happiness:") + fmt.Sprintf("%.1f", summary.AverageEngagement),
		label.Render("Most Common Emotion:") + summary.DominantEmotion,
		label.Render("Peak Happiness Time:") + summary.PeakTime,
		label.Render("Readings:") + fmt.Sprintf("%d", summary.ReadingCount),
	}
	if summary.ErrorCount > 0 {
		stats = append(stats, label.Render("Failed Readings:")+
			lipgloss.NewStyle().Foreground(colorBad).Render(fmt.Sprintf("%d", summary.ErrorCount)))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		title,
		dateLine,
		"",
		chart,
		"",
		strings.Join(stats, "\n"),
	)

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Render(content)
}

// Sparkline 把参与度序列压缩为不超过width列的块字符走势
func Sparkline(series []analytics.Point, width int) string {
	if len(series) == 0 || width <= 0 {
		return ""
	}

	cols := len(series)
	if cols > width {
		cols = width
	}

	var b strings.Builder
	for c := 0; c < cols; c++ {
		// 每列取所覆盖区间的平均分
		from := c * len(series) / cols
		to := (c + 1) * len(series) / cols
		total := 0
		for _, p := range series[from:to] {
			total += p.Score
		}
		score := total / (to - from)
		b.WriteRune(sparkBlocks[score*(len(sparkBlocks)-1)/100])
	}
	return b.String()
}

func scoreColor(avg float64) lipgloss.Color {
	switch {
	case avg >= 60:
		return colorGood
	case avg >= 30:
		return colorWarn
	default:
		return colorBad
	}
}
