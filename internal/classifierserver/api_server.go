package classifierserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"GrooveGauge/internal/analytics"
	"GrooveGauge/internal/classifier"
	"GrooveGauge/internal/emotion"
)

// ServiceName gRPC健康检查服务名
const ServiceName = "groovegauge.classifier"

// noFaceFeedback 未检测到人脸时的反馈
const noFaceFeedback = "No faces detected."

// Config 服务配置
type Config struct {
	Addr           string
	GRPCAddr       string
	Detector       Detector
	ValidateImages bool // 要求 image 为可解码的 JPEG/PNG
	AllowedOrigins []string
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Addr:           ":3000",
		GRPCAddr:       ":3001",
		Detector:       HashDetector{},
		ValidateImages: true,
		AllowedOrigins: []string{"*"},
	}
}

// Server 参考情绪分类服务
type Server struct {
	config     *Config
	router     *mux.Router
	handler    http.Handler
	httpServer *http.Server
	grpcServer *grpc.Server
	health     *health.Server

	// 统计信息
	requestCount  int64
	errorCount    int64
	emotionCounts map[string]int64
	responseTime  []time.Duration
	startTime     time.Time
	mu            sync.RWMutex
}

// errorResponse 错误响应
type errorResponse struct {
	Error string `json:"error"`
}

// New 创建分类服务
func New(config *Config) *Server {
	if config.Detector == nil {
		config.Detector = HashDetector{}
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		config:        config,
		router:        mux.NewRouter(),
		emotionCounts: make(map[string]int64),
		startTime:     time.Now(),
		health:        health.NewServer(),
		grpcServer:    grpc.NewServer(),
	}

	s.setupRoutes()

	// 设置CORS
	c := cors.New(cors.Options{
		AllowedOrigins: config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})
	s.handler = c.Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return s
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	// 添加中间件
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.metricsMiddleware)

	s.router.HandleFunc(classifier.AnalyzePath, s.analyzeEmotionHandler).Methods("POST")
	s.router.HandleFunc("/health", s.healthCheckHandler).Methods("GET")
	s.router.HandleFunc("/metrics", s.metricsHandler).Methods("GET")
}

// Handler 带CORS的HTTP处理器
func (s *Server) Handler() http.Handler {
	return s.handler
}

// 中间件
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		duration := time.Since(start)
		log.Printf("%s %s %s %v", r.Method, r.RequestURI, r.RemoteAddr, duration)
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		duration := time.Since(start)

		s.mu.Lock()
		s.requestCount++
		s.responseTime = append(s.responseTime, duration)
		// 保持最近1000个请求的响应时间
		if len(s.responseTime) > 1000 {
			s.responseTime = s.responseTime[1:]
		}
		s.mu.Unlock()
	})
}

func (s *Server) analyzeEmotionHandler(w http.ResponseWriter, r *http.Request) {
	var req classifier.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Image == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "No image provided")
		return
	}

	img, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Failed to decode image: %v", err))
		return
	}
	if s.config.ValidateImages {
		if _, _, err := image.DecodeConfig(bytes.NewReader(img)); err != nil {
			s.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Failed to decode image: %v", err))
			return
		}
	}

	faces, err := s.config.Detector.Detect(r.Context(), img)
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, fmt.Sprintf("Emotion detection failed: %v", err))
		return
	}

	top := TopOverall(faces)
	if top == "" {
		s.countEmotion(emotion.NoFace)
		s.writeJSONResponse(w, http.StatusOK, classifier.Result{Emotion: emotion.NoFace, Feedback: noFaceFeedback})
		return
	}

	s.countEmotion(top)
	s.writeJSONResponse(w, http.StatusOK, classifier.Result{Emotion: top, Feedback: analytics.Feedback(top)})
}

func (s *Server) countEmotion(label string) {
	s.mu.Lock()
	s.emotionCounts[label]++
	s.mu.Unlock()
}

// 健康检查和指标
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"uptime":    time.Since(s.startTime).Seconds(),
		"timestamp": time.Now().UnixMilli(),
	})
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, s.GetStats())
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	s.mu.Lock()
	s.errorCount++
	s.mu.Unlock()

	s.writeJSONResponse(w, statusCode, errorResponse{Error: message})
}

func (s *Server) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// Serve 在给定监听器上运行HTTP与gRPC服务，任一退出即返回
func (s *Server) Serve(httpLis, grpcLis net.Listener) error {
	errCh := make(chan error, 2)

	go func() {
		log.Printf("Starting classifier HTTP server on %s", httpLis.Addr())
		if err := s.httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		errCh <- nil
	}()

	go func() {
		log.Printf("Starting classifier gRPC health server on %s", grpcLis.Addr())
		if err := s.grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc server: %w", err)
			return
		}
		errCh <- nil
	}()

	return <-errCh
}

// ListenAndServe 监听配置的地址并启动服务
func (s *Server) ListenAndServe() error {
	httpLis, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Addr, err)
	}
	grpcLis, err := net.Listen("tcp", s.config.GRPCAddr)
	if err != nil {
		httpLis.Close()
		return fmt.Errorf("listen %s: %w", s.config.GRPCAddr, err)
	}
	return s.Serve(httpLis, grpcLis)
}

// Shutdown 停止服务
func (s *Server) Shutdown(ctx context.Context) error {
	log.Printf("Stopping classifier server")
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	return s.httpServer.Shutdown(ctx)
}

// GetStats 获取服务器统计信息
func (s *Server) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var avgResponseTime float64
	if len(s.responseTime) > 0 {
		var total time.Duration
		for _, rt := range s.responseTime {
			total += rt
		}
		avgResponseTime = float64(total.Nanoseconds()) / float64(len(s.responseTime)) / 1e6
	}

	emotions := make(map[string]int64, len(s.emotionCounts))
	for label, n := range s.emotionCounts {
		emotions[label] = n
	}

	return map[string]interface{}{
		"uptime_seconds":       time.Since(s.startTime).Seconds(),
		"total_requests":       s.requestCount,
		"error_count":          s.errorCount,
		"avg_response_time_ms": avgResponseTime,
		"emotions":             emotions,
	}
}
