package camera

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
)

var (
	// ErrDeviceBusy 设备已被其他会话占用
	ErrDeviceBusy = errors.New("camera device is busy")
	// ErrNotOpen 设备未打开
	ErrNotOpen = errors.New("camera device is not open")
	// ErrNoFrames 没有可用的图像帧
	ErrNoFrames = errors.New("no frames available")
)

// Position 摄像头位置
type Position string

const (
	PositionFront    Position = "front"
	PositionBack     Position = "back"
	PositionExternal Position = "external"
)

// String 实现字符串接口
func (p Position) String() string {
	return string(p)
}

// ParsePosition 解析摄像头位置
func ParsePosition(s string) (Position, error) {
	switch Position(strings.ToLower(strings.TrimSpace(s))) {
	case PositionFront:
		return PositionFront, nil
	case PositionBack, "":
		return PositionBack, nil
	case PositionExternal:
		return PositionExternal, nil
	default:
		return "", fmt.Errorf("unknown camera position %q", s)
	}
}

// Descriptor 设备描述
type Descriptor struct {
	Position Position `json:"position"`
	Name     string   `json:"name,omitempty"`
}

// Permission 设备权限类型
type Permission int

const (
	PermissionCamera Permission = iota
	PermissionMicrophone
)

func (p Permission) String() string {
	switch p {
	case PermissionCamera:
		return "camera"
	case PermissionMicrophone:
		return "microphone"
	default:
		return "unknown"
	}
}

// PermissionPolicy 权限授予策略（替代平台权限弹窗）
type PermissionPolicy struct {
	Camera     bool
	Microphone bool
}

// GrantAll 授予全部权限
func GrantAll() PermissionPolicy {
	return PermissionPolicy{Camera: true, Microphone: true}
}

// RequestPermission 按策略返回是否授权
func (p PermissionPolicy) RequestPermission(_ context.Context, perm Permission) (bool, error) {
	switch perm {
	case PermissionCamera:
		return p.Camera, nil
	case PermissionMicrophone:
		return p.Microphone, nil
	default:
		return false, fmt.Errorf("unknown permission %d", perm)
	}
}

// exclusiveHandle 设备独占句柄，同一时间只允许一个会话打开
type exclusiveHandle struct {
	open atomic.Bool
}

func (h *exclusiveHandle) acquire() error {
	if !h.open.CompareAndSwap(false, true) {
		return ErrDeviceBusy
	}
	return nil
}

func (h *exclusiveHandle) release() {
	h.open.Store(false)
}

func (h *exclusiveHandle) isOpen() bool {
	return h.open.Load()
}
