package docstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"GrooveGauge/internal/sessionlog"
)

const (
	// FilePrefix 导出文件名前缀
	FilePrefix = "emotion_log_"
	// FileExt 导出文件扩展名
	FileExt = ".csv"
	// MimeType 导出文件类型
	MimeType = "text/csv"
)

// Entry 已导出的日志文件
type Entry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Store 应用私有文档目录
type Store struct {
	Dir string
}

// New 创建文档存储
func New(dir string) *Store {
	return &Store{Dir: dir}
}

// FileName 生成导出文件名，时间中的 ':' 和 '.' 替换为 '-'
func FileName(now time.Time) string {
	stamp := now.UTC().Format(sessionlog.TimestampLayout)
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return FilePrefix + stamp + FileExt
}

// Export 把日志写入文档目录，返回文件路径
func (s *Store) Export(log sessionlog.Log, now time.Time) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create documents dir: %w", err)
	}

	path := filepath.Join(s.Dir, FileName(now))
	if err := os.WriteFile(path, log.MarshalCSV(), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return path, nil
}

// Import 读取并解析CSV日志
func (s *Store) Import(path string, mode sessionlog.ImportMode) (sessionlog.Log, sessionlog.ImportReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return sessionlog.Log{}, sessionlog.ImportReport{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	return sessionlog.ParseCSV(f, mode)
}

// List 列出已导出的日志，最新的在前
func (s *Store) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.Dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read documents dir: %w", err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasPrefix(name, FilePrefix) || !strings.HasSuffix(name, FileExt) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Name:    name,
			Path:    filepath.Join(s.Dir, name),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	// UTC时间戳文件名按字典序即时间顺序
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name > entries[j].Name
	})
	return entries, nil
}
