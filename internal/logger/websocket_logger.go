package logger

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"GrooveGauge/internal/emotion"
)

// writeWait 单个客户端写超时
const writeWait = time.Second

// ReadingPayload 实时读数
type ReadingPayload struct {
	Timestamp int64  `json:"timestamp"`
	Emotion   string `json:"emotion"`
	Score     int    `json:"score"`
	Feedback  string `json:"feedback,omitempty"`
}

// LogMessage 日志消息结构
type LogMessage struct {
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Module    string          `json:"module"`
	SessionID string          `json:"session_id,omitempty"`
	Reading   *ReadingPayload `json:"reading,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// WebSocketLogger WebSocket日志与读数广播器
//
// 只有 Run 所在的协程向客户端写数据；广播通道满时丢弃消息，不阻塞采集循环。
type WebSocketLogger struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan LogMessage
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	welcome    string
	done       chan struct{}
}

// NewWebSocketLogger 创建新的WebSocket日志器
func NewWebSocketLogger() *WebSocketLogger {
	return &WebSocketLogger{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan LogMessage, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有来源
			},
		},
		welcome: "Connected to the GrooveGauge live feed",
		done:    make(chan struct{}),
	}
}

// Run 启动广播循环，直到 ctx 取消
func (wsl *WebSocketLogger) Run(ctx context.Context) {
	defer close(wsl.done)

	for {
		select {
		case <-ctx.Done():
			wsl.closeAll()
			return

		case client := <-wsl.register:
			wsl.mu.Lock()
			wsl.clients[client] = true
			count := len(wsl.clients)
			wsl.mu.Unlock()
			log.Printf("WebSocket客户端已连接，当前连接数: %d", count)

			wsl.send(client, LogMessage{
				Level:     LevelInfo,
				Message:   wsl.welcome,
				Module:    "feed",
				Timestamp: time.Now(),
			})

		case client := <-wsl.unregister:
			wsl.remove(client)

		case message := <-wsl.broadcast:
			wsl.mu.RLock()
			clients := make([]*websocket.Conn, 0, len(wsl.clients))
			for client := range wsl.clients {
				clients = append(clients, client)
			}
			wsl.mu.RUnlock()

			for _, client := range clients {
				wsl.send(client, message)
			}
		}
	}
}

func (wsl *WebSocketLogger) send(client *websocket.Conn, message LogMessage) {
	client.SetWriteDeadline(time.Now().Add(writeWait))
	if err := client.WriteJSON(message); err != nil {
		log.Printf("发送日志消息失败: %v", err)
		wsl.remove(client)
	}
}

func (wsl *WebSocketLogger) remove(client *websocket.Conn) {
	wsl.mu.Lock()
	defer wsl.mu.Unlock()
	if _, ok := wsl.clients[client]; ok {
		delete(wsl.clients, client)
		client.Close()
		log.Printf("WebSocket客户端已断开，当前连接数: %d", len(wsl.clients))
	}
}

func (wsl *WebSocketLogger) closeAll() {
	wsl.mu.Lock()
	defer wsl.mu.Unlock()
	for client := range wsl.clients {
		client.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed shutting down"),
			time.Now().Add(writeWait))
		client.Close()
		delete(wsl.clients, client)
	}
}

// ClientCount 当前连接数
func (wsl *WebSocketLogger) ClientCount() int {
	wsl.mu.RLock()
	defer wsl.mu.RUnlock()
	return len(wsl.clients)
}

func (wsl *WebSocketLogger) publish(msg LogMessage) {
	select {
	case wsl.broadcast <- msg:
	default:
		// 如果通道满了，丢弃消息避免阻塞
	}
}

func (wsl *WebSocketLogger) emit(level, module, sessionID, message string) {
	logMsg := LogMessage{
		Level:     level,
		Message:   message,
		Module:    module,
		SessionID: sessionID,
		Timestamp: time.Now(),
	}

	// 同时输出到控制台
	if Enabled(level) {
		if sessionID != "" {
			log.Printf("[%s] [Session-%s] %s: %s", level, shortID(sessionID), module, message)
		} else {
			log.Printf("[%s] %s: %s", level, module, message)
		}
	}

	wsl.publish(logMsg)
}

// LogInfo 记录信息日志
func (wsl *WebSocketLogger) LogInfo(module, sessionID, message string) {
	wsl.emit(LevelInfo, module, sessionID, message)
}

// LogSuccess 记录成功日志
func (wsl *WebSocketLogger) LogSuccess(module, sessionID, message string) {
	wsl.emit(LevelSuccess, module, sessionID, message)
}

// LogWarning 记录警告日志
func (wsl *WebSocketLogger) LogWarning(module, sessionID, message string) {
	wsl.emit(LevelWarning, module, sessionID, message)
}

// LogError 记录错误日志
func (wsl *WebSocketLogger) LogError(module, sessionID, message string) {
	wsl.emit(LevelError, module, sessionID, message)
}

// LogReading 广播一条读数
func (wsl *WebSocketLogger) LogReading(sessionID string, reading emotion.Reading, feedback string) {
	msg := LogMessage{
		Level:     LevelReading,
		Message:   fmt.Sprintf("%s (%d)", reading.Emotion, reading.Score()),
		Module:    "capture",
		SessionID: sessionID,
		Reading: &ReadingPayload{
			Timestamp: reading.UnixMilli(),
			Emotion:   reading.Emotion,
			Score:     reading.Score(),
			Feedback:  feedback,
		},
		Timestamp: reading.Timestamp,
	}

	if Enabled(LevelDebug) {
		log.Printf("[%s] [Session-%s] capture: %s", LevelReading, shortID(sessionID), msg.Message)
	}

	wsl.publish(msg)
}

// ServeHTTP 处理WebSocket连接
func (wsl *WebSocketLogger) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := wsl.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket升级失败: %v", err)
		return
	}

	select {
	case wsl.register <- conn:
	case <-wsl.done:
		conn.Close()
		return
	}

	// 处理客户端断开
	defer func() {
		select {
		case wsl.unregister <- conn:
		case <-wsl.done:
		}
	}()

	// 保持连接活跃
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("WebSocket连接错误: %v", err)
			}
			return
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
