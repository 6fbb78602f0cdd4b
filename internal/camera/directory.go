package camera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// DirectoryCamera 按文件名顺序循环回放目录中的图像
type DirectoryCamera struct {
	PermissionPolicy

	dir    string
	handle exclusiveHandle

	mu     sync.Mutex
	frames []string
	next   int
}

// NewDirectoryCamera 创建目录回放摄像头
func NewDirectoryCamera(dir string, policy PermissionPolicy) *DirectoryCamera {
	return &DirectoryCamera{
		PermissionPolicy: policy,
		dir:              dir,
	}
}

// Open 扫描目录并独占设备
func (c *DirectoryCamera) Open(_ context.Context) error {
	if err := c.handle.acquire(); err != nil {
		return err
	}

	frames, err := listFrames(c.dir)
	if err != nil {
		c.handle.release()
		return err
	}

	c.mu.Lock()
	c.frames = frames
	c.next = 0
	c.mu.Unlock()
	return nil
}

// CaptureFrame 读取下一帧
func (c *DirectoryCamera) CaptureFrame(ctx context.Context) ([]byte, error) {
	if !c.handle.isOpen() {
		return nil, ErrNotOpen
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	path := c.frames[c.next]
	c.next = (c.next + 1) % len(c.frames)
	c.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read frame %s: %w", filepath.Base(path), err)
	}
	return data, nil
}

// Release 释放设备
func (c *DirectoryCamera) Release() error {
	c.handle.release()
	return nil
}

// FrameCount 目录中的帧数量
func (c *DirectoryCamera) FrameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func listFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frames dir: %w", err)
	}

	var frames []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			frames = append(frames, filepath.Join(dir, entry.Name()))
		}
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoFrames, dir)
	}

	sort.Strings(frames)
	return frames, nil
}
