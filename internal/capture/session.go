package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"GrooveGauge/internal/camera"
	"GrooveGauge/internal/classifier"
	"GrooveGauge/internal/emotion"
	"GrooveGauge/internal/sessionlog"
)

var (
	// ErrPermissionDenied 摄像头或麦克风权限未授予
	ErrPermissionDenied = errors.New("device permission denied")
	// ErrAlreadyStarted 会话已启动过（会话只能使用一次）
	ErrAlreadyStarted = errors.New("capture session already started")
)

// DefaultInterval 默认采集间隔
const DefaultInterval = 2500 * time.Millisecond

// State 采集会话状态
type State int32

const (
	StateIdle State = iota
	StateAcquiring
	StateRecording
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAcquiring:
		return "Acquiring"
	case StateRecording:
		return "Recording"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Device 摄像头能力接口
type Device interface {
	RequestPermission(ctx context.Context, perm camera.Permission) (bool, error)
	Open(ctx context.Context) error
	CaptureFrame(ctx context.Context) ([]byte, error)
	Release() error
}

// Classifier 情绪分类能力接口
type Classifier interface {
	Classify(ctx context.Context, frame []byte) (*classifier.Result, error)
}

// Config 会话配置
type Config struct {
	Interval     time.Duration
	ArchiveVideo bool   // 需要麦克风权限，并将原始帧保存到 ArchiveDir
	ArchiveDir   string
	Now          func() time.Time
}

// Stats 会话统计
type Stats struct {
	Ticks          int64     `json:"ticks"`
	Readings       int64     `json:"readings"`
	FrameErrors    int64     `json:"frame_errors"`
	ClassifyErrors int64     `json:"classify_errors"`
	Discarded      int64     `json:"discarded"`
	StartedAt      time.Time `json:"started_at"`
	StoppedAt      time.Time `json:"stopped_at"`
}

// ReadingHandler 新读数回调，feedback 为分类服务返回的反馈语
type ReadingHandler func(reading emotion.Reading, feedback string)

// StateHandler 状态变更回调
type StateHandler func(from, to State)

// Session 采集会话
//
// 定时从设备获取一帧，交给分类服务，按采集顺序把结果追加到会话日志。
// 上一次采集完成后才会安排下一次，因此同一时间最多只有一个采集在进行。
type Session struct {
	id         string
	device     Device
	classifier Classifier
	config     Config

	state atomic.Int32

	// lifecycle 串行化 Start/Stop
	lifecycle sync.Mutex
	opened    bool
	cancel    context.CancelFunc
	done      chan struct{}

	mu         sync.Mutex
	descriptor camera.Descriptor
	readings   []emotion.Reading
	frozen     sessionlog.Log
	final      bool

	onReading     ReadingHandler
	onStateChange StateHandler

	ticks          atomic.Int64
	appended       atomic.Int64
	frameErrors    atomic.Int64
	classifyErrors atomic.Int64
	discarded      atomic.Int64
	startedAt      time.Time
	stoppedAt      time.Time
}

// New 创建采集会话
func New(device Device, cls Classifier, config Config) *Session {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Session{
		id:         uuid.New().String(),
		device:     device,
		classifier: cls,
		config:     config,
	}
}

// ID 会话ID
func (s *Session) ID() string {
	return s.id
}

// State 当前状态
func (s *Session) State() State {
	return State(s.state.Load())
}

// Descriptor 启动时使用的设备描述
func (s *Session) Descriptor() camera.Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.descriptor
}

// OnReading 设置读数回调，需在 Start 之前调用
func (s *Session) OnReading(handler ReadingHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReading = handler
}

// OnStateChange 设置状态回调，需在 Start 之前调用；回调中不能调用 Start/Stop
func (s *Session) OnStateChange(handler StateHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStateChange = handler
}

// Start 请求权限、打开设备并开始采集循环
func (s *Session) Start(ctx context.Context, desc camera.Descriptor) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateAcquiring)) {
		return ErrAlreadyStarted
	}
	s.notifyState(StateIdle, StateAcquiring)
	s.mu.Lock()
	s.descriptor = desc
	s.mu.Unlock()

	if err := s.acquirePermissions(ctx); err != nil {
		s.finish(StateAcquiring)
		return err
	}

	if err := s.device.Open(ctx); err != nil {
		s.finish(StateAcquiring)
		return fmt.Errorf("open %s camera: %w", desc.Position, err)
	}
	s.opened = true

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})

	s.mu.Lock()
	s.startedAt = s.config.Now()
	s.mu.Unlock()

	s.setState(StateAcquiring, StateRecording)
	log.Printf("🎥 Capture session %s recording (%s camera, every %v)", s.id, desc.Position, s.config.Interval)

	go s.run(loopCtx)
	return nil
}

func (s *Session) acquirePermissions(ctx context.Context) error {
	perms := []camera.Permission{camera.PermissionCamera}
	if s.config.ArchiveVideo {
		perms = append(perms, camera.PermissionMicrophone)
	}

	for _, perm := range perms {
		granted, err := s.device.RequestPermission(ctx, perm)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrPermissionDenied, perm, err)
		}
		if !granted {
			return fmt.Errorf("%w: %s", ErrPermissionDenied, perm)
		}
	}
	return nil
}

// Stop 停止采集并返回冻结的会话日志
//
// 返回前会等待进行中的采集结束；停止请求之后才完成的结果会被丢弃。
// 重复调用返回同一份日志。
func (s *Session) Stop() sessionlog.Log {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	final := s.final
	s.mu.Unlock()
	if final {
		return s.Log()
	}

	from := s.State()
	if from == StateRecording {
		s.mu.Lock()
		s.state.Store(int32(StateStopping))
		s.mu.Unlock()
		s.notifyState(from, StateStopping)
		from = StateStopping

		s.cancel()
		<-s.done
	}

	s.finish(from)
	log.Printf("⏹️  Capture session %s stopped with %d readings", s.id, s.Log().Len())
	return s.Log()
}

// finish 释放设备、冻结日志并进入 Stopped
func (s *Session) finish(from State) {
	if s.opened {
		if err := s.device.Release(); err != nil {
			log.Printf("[WARN] capture %s: release device: %v", s.id, err)
		}
		s.opened = false
	}

	s.mu.Lock()
	s.frozen = sessionlog.New(s.readings...)
	s.readings = nil
	s.final = true
	s.stoppedAt = s.config.Now()
	s.state.Store(int32(StateStopped))
	s.mu.Unlock()

	s.notifyState(from, StateStopped)
}

// Log 当前日志快照；停止后为冻结日志
func (s *Session) Log() sessionlog.Log {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.final {
		return s.frozen
	}
	return sessionlog.New(s.readings...)
}

// Stats 获取统计信息
func (s *Session) Stats() Stats {
	s.mu.Lock()
	startedAt, stoppedAt := s.startedAt, s.stoppedAt
	s.mu.Unlock()

	return Stats{
		Ticks:          s.ticks.Load(),
		Readings:       s.appended.Load(),
		FrameErrors:    s.frameErrors.Load(),
		ClassifyErrors: s.classifyErrors.Load(),
		Discarded:      s.discarded.Load(),
		StartedAt:      startedAt,
		StoppedAt:      stoppedAt,
	}
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	timer := time.NewTimer(s.config.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		s.tick(ctx)
		timer.Reset(s.config.Interval)
	}
}

// tick 执行一次采集和分类，失败以 Error 读数记录
func (s *Session) tick(ctx context.Context) {
	if s.State() != StateRecording {
		return
	}
	n := s.ticks.Add(1)

	label, feedback := s.capture(ctx, n)
	s.append(emotion.NewReading(s.config.Now(), label), feedback)
}

func (s *Session) capture(ctx context.Context, n int64) (string, string) {
	frame, err := s.device.CaptureFrame(ctx)
	if err != nil {
		s.frameErrors.Add(1)
		log.Printf("[WARN] capture %s: frame %d acquisition failed: %v", s.id, n, err)
		return emotion.Error, ""
	}

	if s.config.ArchiveVideo {
		s.archiveFrame(n, frame)
	}

	res, err := s.classifier.Classify(ctx, frame)
	if err != nil {
		s.classifyErrors.Add(1)
		log.Printf("[WARN] capture %s: frame %d classification failed: %v", s.id, n, err)
		return emotion.Error, ""
	}
	return emotion.OrDefault(res.Emotion), res.Feedback
}

func (s *Session) append(reading emotion.Reading, feedback string) {
	s.mu.Lock()
	if s.State() != StateRecording {
		s.mu.Unlock()
		s.discarded.Add(1)
		return
	}
	s.readings = append(s.readings, reading)
	handler := s.onReading
	s.mu.Unlock()

	s.appended.Add(1)
	if handler != nil {
		handler(reading, feedback)
	}
}

func (s *Session) archiveFrame(n int64, frame []byte) {
	if s.config.ArchiveDir == "" {
		return
	}
	dir := filepath.Join(s.config.ArchiveDir, s.id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("[WARN] capture %s: archive dir: %v", s.id, err)
		return
	}
	name := filepath.Join(dir, fmt.Sprintf("frame_%05d.jpg", n))
	if err := os.WriteFile(name, frame, 0o644); err != nil {
		log.Printf("[WARN] capture %s: archive frame %d: %v", s.id, n, err)
	}
}

func (s *Session) setState(from, to State) {
	s.mu.Lock()
	s.state.Store(int32(to))
	s.mu.Unlock()
	s.notifyState(from, to)
}

func (s *Session) notifyState(from, to State) {
	s.mu.Lock()
	handler := s.onStateChange
	s.mu.Unlock()
	if handler != nil {
		handler(from, to)
	}
}
