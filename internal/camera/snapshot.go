package camera

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxSnapshotSize 单帧最大字节数
const maxSnapshotSize = 16 << 20

// SnapshotCamera 通过HTTP快照地址获取静态帧（如IP摄像头）
type SnapshotCamera struct {
	PermissionPolicy

	url        string
	httpClient *http.Client
	handle     exclusiveHandle
}

// NewSnapshotCamera 创建快照摄像头
func NewSnapshotCamera(url string, timeout time.Duration, policy PermissionPolicy) *SnapshotCamera {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SnapshotCamera{
		PermissionPolicy: policy,
		url:              url,
		httpClient:       &http.Client{Timeout: timeout},
	}
}

// Open 独占设备
func (c *SnapshotCamera) Open(_ context.Context) error {
	return c.handle.acquire()
}

// CaptureFrame 请求一张快照
func (c *SnapshotCamera) CaptureFrame(ctx context.Context) ([]byte, error) {
	if !c.handle.isOpen() {
		return nil, ErrNotOpen
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create snapshot request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snapshot request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotSize))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrNoFrames
	}
	return data, nil
}

// Release 释放设备
func (c *SnapshotCamera) Release() error {
	c.handle.release()
	return nil
}
