package appflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"GrooveGauge/internal/analytics"
	"GrooveGauge/internal/camera"
	"GrooveGauge/internal/credential"
	"GrooveGauge/internal/docstore"
	"GrooveGauge/internal/sessionlog"
)

var (
	// ErrNothingToExport 日志为空，无可导出内容
	ErrNothingToExport = errors.New("no readings to export")
	// ErrInvalidTransition 当前页面不允许该操作
	ErrInvalidTransition = errors.New("invalid screen transition")
	// ErrNotAuthenticated 未保存访问凭证
	ErrNotAuthenticated = errors.New("not signed in")
)

// ExportError 导出或分享失败
type ExportError struct {
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("export failed: %v", e.Err)
	}
	return fmt.Sprintf("export %s failed: %v", e.Path, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// ImportError 导入失败，当前日志保持不变
type ImportError struct {
	Path string
	Err  error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import %s failed: %v", e.Path, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

// Screen 应用页面
type Screen int

const (
	ScreenWelcome Screen = iota
	ScreenRecording
	ScreenResults
)

func (s Screen) String() string {
	switch s {
	case ScreenWelcome:
		return "Welcome"
	case ScreenRecording:
		return "Recording"
	case ScreenResults:
		return "Results"
	default:
		return "Unknown"
	}
}

// Recorder 一次采集会话
type Recorder interface {
	ID() string
	Start(ctx context.Context, desc camera.Descriptor) error
	Stop() sessionlog.Log
}

// RecorderFactory 为每次录制创建新的会话
type RecorderFactory func() Recorder

// Archiver 会话归档
type Archiver interface {
	SaveSession(ctx context.Context, id string, log sessionlog.Log) error
}

// Config 流程配置
type Config struct {
	Server     string
	Descriptor camera.Descriptor
	ImportMode sessionlog.ImportMode
	Interval   time.Duration
	Now        func() time.Time
}

// Option 流程选项
type Option func(*Flow)

// WithArchiver 停止录制后归档会话
func WithArchiver(a Archiver) Option {
	return func(f *Flow) { f.archiver = a }
}

// WithSharer 导出后调用分享动作
func WithSharer(s docstore.Sharer) Option {
	return func(f *Flow) { f.sharer = s }
}

// Flow 欢迎 → 录制 → 结果 的页面流程
type Flow struct {
	mu sync.Mutex

	screen      Screen
	credentials credential.Store
	newRecorder RecorderFactory
	docs        *docstore.Store
	sharer      docstore.Sharer
	archiver    Archiver
	config      Config

	recorder Recorder
	log      sessionlog.Log
	logDate  time.Time
}

// New 创建页面流程
func New(store credential.Store, factory RecorderFactory, docs *docstore.Store, config Config, opts ...Option) *Flow {
	if config.Server == "" {
		config.Server = credential.DefaultServer
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Interval <= 0 {
		config.Interval = analytics.DefaultInterval
	}

	f := &Flow{
		screen:      ScreenWelcome,
		credentials: store,
		newRecorder: factory,
		docs:        docs,
		config:      config,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Screen 当前页面
func (f *Flow) Screen() Screen {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.screen
}

// Log 当前日志
func (f *Flow) Log() sessionlog.Log {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.log
}

// LogDate 结果页显示的会话日期
func (f *Flow) LogDate() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logDate
}

// SessionID 当前或最近一次录制的会话ID
func (f *Flow) SessionID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recorder == nil {
		return ""
	}
	return f.recorder.ID()
}

// Start 从欢迎页或结果页开始录制，需要已保存凭证
func (f *Flow) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.screen == ScreenRecording {
		return fmt.Errorf("%w: already recording", ErrInvalidTransition)
	}
	return f.startLocked(ctx)
}

// RecordAgain 从结果页重新录制
func (f *Flow) RecordAgain(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.screen != ScreenResults {
		return fmt.Errorf("%w: record again from %s", ErrInvalidTransition, f.screen)
	}
	return f.startLocked(ctx)
}

func (f *Flow) startLocked(ctx context.Context) error {
	if _, err := f.credentials.Get(f.config.Server); err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return ErrNotAuthenticated
		}
		return fmt.Errorf("read credential: %w", err)
	}

	rec := f.newRecorder()
	if err := rec.Start(ctx, f.config.Descriptor); err != nil {
		return err
	}

	f.recorder = rec
	f.log = sessionlog.Log{}
	f.logDate = f.config.Now()
	f.screen = ScreenRecording
	return nil
}

// Stop 结束录制并进入结果页；配置了归档时保存会话（归档失败只记录日志）
func (f *Flow) Stop(ctx context.Context) (sessionlog.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.screen != ScreenRecording {
		return sessionlog.Log{}, fmt.Errorf("%w: stop from %s", ErrInvalidTransition, f.screen)
	}

	f.log = f.recorder.Stop()
	f.screen = ScreenResults

	if f.archiver != nil && !f.log.IsEmpty() {
		if err := f.archiver.SaveSession(ctx, f.recorder.ID(), f.log); err != nil {
			log.Printf("[WARN] appflow: archive session %s: %v", f.recorder.ID(), err)
		}
	}

	return f.log, nil
}

// BackToWelcome 丢弃当前日志并回到欢迎页
func (f *Flow) BackToWelcome() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.screen == ScreenRecording {
		return fmt.Errorf("%w: stop recording first", ErrInvalidTransition)
	}
	f.log = sessionlog.Log{}
	f.logDate = time.Time{}
	f.screen = ScreenWelcome
	return nil
}

// Export 导出当前日志为CSV并分享，返回文件路径
func (f *Flow) Export(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.screen != ScreenResults {
		return "", fmt.Errorf("%w: export from %s", ErrInvalidTransition, f.screen)
	}
	if f.log.IsEmpty() {
		return "", ErrNothingToExport
	}

	path, err := f.docs.Export(f.log, f.config.Now())
	if err != nil {
		return "", &ExportError{Err: err}
	}

	if f.sharer != nil {
		if err := f.sharer.Share(ctx, path, docstore.MimeType); err != nil {
			return path, &ExportError{Path: path, Err: err}
		}
	}
	return path, nil
}

// Import 导入CSV日志并进入结果页；失败时当前日志不变
func (f *Flow) Import(_ context.Context, path string) (sessionlog.ImportReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.screen == ScreenRecording {
		return sessionlog.ImportReport{}, fmt.Errorf("%w: import while recording", ErrInvalidTransition)
	}

	imported, report, err := f.docs.Import(path, f.config.ImportMode)
	if err != nil {
		return report, &ImportError{Path: path, Err: err}
	}

	f.log = imported
	if imported.IsEmpty() {
		f.logDate = f.config.Now()
	} else {
		f.logDate = imported.StartTime()
	}
	f.screen = ScreenResults
	return report, nil
}

// Summary 当前日志的摘要，日期取结果页日期
func (f *Flow) Summary() analytics.Summary {
	f.mu.Lock()
	defer f.mu.Unlock()

	summary := analytics.NewAnalyzer(f.log, f.config.Interval).Summary()
	if !f.logDate.IsZero() {
		summary.Date = f.logDate.Local().Format("2006-01-02")
	}
	return summary
}

// Analyzer 当前日志的分析器
func (f *Flow) Analyzer() *analytics.Analyzer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return analytics.NewAnalyzer(f.log, f.config.Interval)
}

// SignOut 清除凭证并回到欢迎页；录制中会先停止
func (f *Flow) SignOut() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.screen == ScreenRecording {
		f.recorder.Stop()
	}
	if err := f.credentials.Clear(f.config.Server); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}

	f.log = sessionlog.Log{}
	f.logDate = time.Time{}
	f.screen = ScreenWelcome
	return nil
}
