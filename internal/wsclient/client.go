package wsclient

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"GrooveGauge/internal/logger"
)

// ClientState 客户端连接状态
type ClientState int32

const (
	StateDisconnected ClientState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s ClientState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// MessageHandler 实时消息处理器
type MessageHandler func(msg logger.LogMessage)

// StateChangeHandler 状态变化处理器
type StateChangeHandler func(oldState, newState ClientState)

// RTTHandler RTT变化处理器
type RTTHandler func(rtt time.Duration)

// ClientConfig 客户端配置
type ClientConfig struct {
	URL               string
	HandshakeTimeout  time.Duration
	PingInterval      time.Duration
	PingTimeout       time.Duration
	ReconnectInterval time.Duration
	MaxReconnectTries int
	UserAgent         string
}

// DefaultClientConfig 返回默认配置
func DefaultClientConfig(url string) *ClientConfig {
	return &ClientConfig{
		URL:               url,
		HandshakeTimeout:  10 * time.Second,
		PingInterval:      30 * time.Second,
		PingTimeout:       10 * time.Second,
		ReconnectInterval: 2 * time.Second,
		MaxReconnectTries: 10,
		UserAgent:         "GrooveGauge/1.0",
	}
}

// Client 实时读数订阅客户端，支持自动重连、心跳、读数去重
type Client struct {
	config *ClientConfig
	dialer *websocket.Dialer
	conn   *websocket.Conn
	state  atomic.Int32

	// 消息处理
	onMessage     MessageHandler
	onStateChange StateChangeHandler
	onRTT         RTTHandler

	// 同步控制
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started atomic.Bool

	// 每个会话最后一条读数的时间戳（用于去重）
	seqMu       sync.Mutex
	lastReading map[string]int64

	// 统计
	received   atomic.Int64
	dropped    atomic.Int64
	reconnects atomic.Int32
	avgRTT     atomic.Int64 // nano seconds
}

// New 创建新的订阅客户端
func New(config *ClientConfig) *Client {
	if config == nil {
		panic("config cannot be nil")
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = config.HandshakeTimeout

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		config:      config,
		dialer:      &dialer,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		lastReading: make(map[string]int64),
	}

	client.state.Store(int32(StateDisconnected))
	return client
}

// SetMessageHandler 设置消息处理器
func (c *Client) SetMessageHandler(handler MessageHandler) {
	c.onMessage = handler
}

// SetStateChangeHandler 设置状态变化处理器
func (c *Client) SetStateChangeHandler(handler StateChangeHandler) {
	c.onStateChange = handler
}

// SetRTTHandler 设置RTT变化处理器
func (c *Client) SetRTTHandler(handler RTTHandler) {
	c.onRTT = handler
}

// Connect 连接到实时流
func (c *Client) Connect(ctx context.Context) error {
	if c.started.Load() {
		return errors.New("client cannot be reused")
	}
	if !c.compareAndSwapState(StateDisconnected, StateConnecting) {
		return errors.New("client is not in disconnected state")
	}

	if err := c.doConnect(ctx); err != nil {
		c.setState(StateDisconnected)
		return err
	}

	c.setState(StateConnected)
	c.started.Store(true)

	// 启动后台任务
	go c.heartbeatLoop()
	go c.run()

	return nil
}

// Done 订阅结束（关闭或重连失败）时关闭
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// doConnect 执行实际的连接逻辑
func (c *Client) doConnect(ctx context.Context) error {
	headers := http.Header{
		"User-Agent": []string{c.config.UserAgent},
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.config.URL, headers)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	conn.SetPongHandler(func(payload string) error {
		c.handlePong(conn, payload)
		return nil
	})
	c.extendDeadline(conn)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// Close 关闭客户端连接
func (c *Client) Close() error {
	if !c.compareAndSwapState(StateConnected, StateClosed) &&
		!c.compareAndSwapState(StateReconnecting, StateClosed) &&
		!c.compareAndSwapState(StateDisconnected, StateClosed) {
		return nil // 已经关闭
	}

	c.cancel()

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	var err error
	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = conn.Close()
	}

	if !c.started.Load() {
		close(c.done)
	}
	return err
}

func (c *Client) extendDeadline(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(c.config.PingInterval + c.config.PingTimeout))
}

// run 读取循环，连接断开后重连
func (c *Client) run() {
	defer close(c.done)

	for {
		c.readLoop()

		if c.ctx.Err() != nil {
			return
		}
		if !c.compareAndSwapState(StateConnected, StateReconnecting) {
			return
		}
		if err := c.doReconnect(); err != nil {
			log.Printf("Reconnect failed: %v", err)
			c.compareAndSwapState(StateReconnecting, StateDisconnected)
			return
		}
	}
}

// readLoop 消息读取循环，连接出错时返回
func (c *Client) readLoop() {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return
	}

	for {
		var msg logger.LogMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if c.ctx.Err() == nil {
				log.Printf("Read message failed: %v", err)
			}
			return
		}
		c.extendDeadline(conn)
		c.handleMessage(msg)
	}
}

// handleMessage 处理接收到的消息（读数按会话去重）
func (c *Client) handleMessage(msg logger.LogMessage) {
	if msg.Reading != nil && msg.SessionID != "" {
		c.seqMu.Lock()
		last, seen := c.lastReading[msg.SessionID]
		if seen && msg.Reading.Timestamp < last {
			c.seqMu.Unlock()
			c.dropped.Add(1)
			log.Printf("Out-of-order reading dropped, session=%s ts=%d last=%d",
				msg.SessionID, msg.Reading.Timestamp, last)
			return
		}
		c.lastReading[msg.SessionID] = msg.Reading.Timestamp
		c.seqMu.Unlock()
	}

	c.received.Add(1)
	if c.onMessage != nil {
		c.onMessage(msg)
	}
}

// heartbeatLoop 心跳循环
func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if c.getState() == StateConnected {
				c.sendPing()
			}
		}
	}
}

// sendPing 发送带时间戳的ping
func (c *Client) sendPing() {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return
	}

	payload := strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := conn.WriteControl(websocket.PingMessage, []byte(payload), time.Now().Add(c.config.PingTimeout)); err != nil {
		log.Printf("Send heartbeat failed: %v", err)
	}
}

// handlePong 处理pong并计算RTT
func (c *Client) handlePong(conn *websocket.Conn, payload string) {
	c.extendDeadline(conn)

	sent, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return
	}
	rtt := time.Since(time.Unix(0, sent))
	if rtt <= 0 {
		return // 无效的RTT
	}

	// 更新平均RTT（简单移动平均）
	oldAvg := time.Duration(c.avgRTT.Load())
	newAvg := rtt
	if oldAvg > 0 {
		newAvg = (oldAvg + rtt) / 2
	}
	c.avgRTT.Store(int64(newAvg))

	if c.onRTT != nil {
		c.onRTT(rtt)
	}
}

// doReconnect 指数退避重连
func (c *Client) doReconnect() error {
	// 关闭旧连接
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	backOff := backoff.NewExponentialBackOff()
	backOff.InitialInterval = c.config.ReconnectInterval
	backOff.MaxElapsedTime = 0

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		log.Printf("Reconnecting... (attempt %d/%d)", attempt, c.config.MaxReconnectTries)
		return c.doConnect(c.ctx)
	}, backoff.WithContext(backoff.WithMaxRetries(backOff, uint64(c.config.MaxReconnectTries)), c.ctx))
	if err != nil {
		return err
	}

	if !c.compareAndSwapState(StateReconnecting, StateConnected) {
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.mu.Unlock()
		return errors.New("client closed during reconnect")
	}
	log.Printf("Reconnected successfully")
	c.reconnects.Add(1)
	return nil
}

// State 获取当前状态
func (c *Client) State() ClientState {
	return c.getState()
}

// getState 获取当前状态
func (c *Client) getState() ClientState {
	return ClientState(c.state.Load())
}

// setState 设置状态
func (c *Client) setState(newState ClientState) {
	oldState := ClientState(c.state.Swap(int32(newState)))
	if oldState != newState && c.onStateChange != nil {
		c.onStateChange(oldState, newState)
	}
}

// compareAndSwapState 原子性状态切换
func (c *Client) compareAndSwapState(oldState, newState ClientState) bool {
	swapped := c.state.CompareAndSwap(int32(oldState), int32(newState))
	if swapped && c.onStateChange != nil {
		c.onStateChange(oldState, newState)
	}
	return swapped
}

// Reconnects 获取重连成功次数
func (c *Client) Reconnects() int {
	return int(c.reconnects.Load())
}

// GetStats 获取客户端统计信息
func (c *Client) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"state":      c.getState().String(),
		"received":   c.received.Load(),
		"dropped":    c.dropped.Load(),
		"reconnects": c.reconnects.Load(),
		"avg_rtt_ms": time.Duration(c.avgRTT.Load()).Milliseconds(),
	}
}
