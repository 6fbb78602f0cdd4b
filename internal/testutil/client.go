package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"GrooveGauge/internal/camera"
	"GrooveGauge/internal/classifier"
)

// ErrFakeFrame 模拟的取帧失败
var ErrFakeFrame = errors.New("fake camera: frame unavailable")

// ErrFakeClassify 模拟的分类失败
var ErrFakeClassify = errors.New("fake classifier: request failed")

// FakeCamera 可编排的内存摄像头
type FakeCamera struct {
	camera.PermissionPolicy

	mu         sync.Mutex
	open       bool
	opens      int
	releases   int
	captures   int
	failAt     map[int]error
	blockAfter int
}

// NewFakeCamera 创建授予全部权限的假摄像头
func NewFakeCamera() *FakeCamera {
	return &FakeCamera{
		PermissionPolicy: camera.GrantAll(),
		failAt:           make(map[int]error),
	}
}

// DenyCamera 拒绝摄像头权限
func (c *FakeCamera) DenyCamera() *FakeCamera {
	c.Camera = false
	return c
}

// FailAt 第 n 次取帧（从1开始）返回错误
func (c *FakeCamera) FailAt(n int) *FakeCamera {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failAt[n] = ErrFakeFrame
	return c
}

// BlockAfter 前 n 帧正常返回，之后的取帧阻塞到上下文取消
func (c *FakeCamera) BlockAfter(n int) *FakeCamera {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blockAfter = n
	return c
}

// Open 打开设备
func (c *FakeCamera) Open(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		return camera.ErrDeviceBusy
	}
	c.open = true
	c.opens++
	return nil
}

// CaptureFrame 返回 "frame-<n>"
func (c *FakeCamera) CaptureFrame(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return nil, camera.ErrNotOpen
	}
	c.captures++
	n := c.captures
	block := c.blockAfter > 0 && n > c.blockAfter
	err := c.failAt[n]
	c.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("frame-%d", n)), nil
}

// Release 释放设备
func (c *FakeCamera) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	c.releases++
	return nil
}

// IsOpen 设备是否打开
func (c *FakeCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Captures 取帧次数
func (c *FakeCamera) Captures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.captures
}

// Opens 打开次数
func (c *FakeCamera) Opens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

// Releases 释放次数
func (c *FakeCamera) Releases() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releases
}

// FakeClassifier 按顺序循环返回预设标签的分类器
type FakeClassifier struct {
	mu       sync.Mutex
	labels   []string
	feedback string
	failAt   map[int]error
	calls    int
	frames   []string
}

// NewFakeClassifier 创建假分类器，labels 为空时返回空标签
func NewFakeClassifier(labels ...string) *FakeClassifier {
	return &FakeClassifier{
		labels: labels,
		failAt: make(map[int]error),
	}
}

// WithFeedback 设置返回的反馈语
func (f *FakeClassifier) WithFeedback(feedback string) *FakeClassifier {
	f.feedback = feedback
	return f
}

// FailAt 第 n 次调用（从1开始）返回错误
func (f *FakeClassifier) FailAt(n int) *FakeClassifier {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAt[n] = ErrFakeClassify
	return f
}

// Classify 实现分类接口
func (f *FakeClassifier) Classify(ctx context.Context, frame []byte) (*classifier.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.frames = append(f.frames, string(frame))
	if err := f.failAt[f.calls]; err != nil {
		return nil, err
	}

	res := &classifier.Result{Feedback: f.feedback}
	if len(f.labels) > 0 {
		res.Emotion = f.labels[(f.calls-1)%len(f.labels)]
	}
	return res, nil
}

// Calls 调用次数
func (f *FakeClassifier) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Frames 收到的帧内容
func (f *FakeClassifier) Frames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.frames))
	copy(out, f.frames)
	return out
}

// FakeSharer 记录分享请求
type FakeSharer struct {
	mu     sync.Mutex
	shared []string
	err    error
}

// NewFakeSharer 创建假分享器
func NewFakeSharer() *FakeSharer {
	return &FakeSharer{}
}

// FailWith 让后续分享返回错误
func (s *FakeSharer) FailWith(err error) *FakeSharer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

// Share 记录路径
func (s *FakeSharer) Share(_ context.Context, path, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.shared = append(s.shared, path)
	return nil
}

// Shared 已分享的路径
func (s *FakeSharer) Shared() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.shared))
	copy(out, s.shared)
	return out
}
