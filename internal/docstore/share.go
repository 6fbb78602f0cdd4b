package docstore

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"strings"
)

// Sharer 平台分享动作
type Sharer interface {
	Share(ctx context.Context, path, mimeType string) error
}

// LogSharer 只打印文件路径
type LogSharer struct{}

// Share 打印路径
func (LogSharer) Share(_ context.Context, path, mimeType string) error {
	log.Printf("📤 Shared %s (%s)", path, mimeType)
	return nil
}

// CommandSharer 执行外部命令分享文件，文件路径作为最后一个参数
type CommandSharer struct {
	Command string
	Args    []string
}

// NewCommandSharer 从命令行字符串创建，如 "xdg-open" 或 "rclone copy --progress"
func NewCommandSharer(cmdline string) (*CommandSharer, error) {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty share command")
	}
	return &CommandSharer{Command: fields[0], Args: fields[1:]}, nil
}

// Share 执行命令
func (s *CommandSharer) Share(ctx context.Context, path, _ string) error {
	args := append(append([]string{}, s.Args...), path)
	cmd := exec.CommandContext(ctx, s.Command, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("share via %s: %w: %s", s.Command, err, strings.TrimSpace(string(out)))
	}
	return nil
}
