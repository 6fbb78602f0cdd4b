package loadtest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"GrooveGauge/internal/classifier"
)

// Classifier 被压测的分类能力
type Classifier interface {
	Classify(ctx context.Context, frame []byte) (*classifier.Result, error)
}

// Config 分类服务负载测试配置
type Config struct {
	ConcurrentClients int
	Duration          time.Duration
	TargetRPS         int      // 目标每秒请求数，0 表示不限速
	Frames            [][]byte // 按请求序号轮流发送
}

// Result 负载测试结果
type Result struct {
	TotalRequests      int64         `json:"total_requests"`
	SuccessfulRequests int64         `json:"successful_requests"`
	FailedRequests     int64         `json:"failed_requests"`
	Duration           time.Duration `json:"duration"`

	// 延迟指标 (毫秒)
	MinLatency float64 `json:"min_latency_ms"`
	MaxLatency float64 `json:"max_latency_ms"`
	AvgLatency float64 `json:"avg_latency_ms"`
	P50Latency float64 `json:"p50_latency_ms"`
	P95Latency float64 `json:"p95_latency_ms"`
	P99Latency float64 `json:"p99_latency_ms"`

	RequestsPerSecond float64 `json:"requests_per_second"`

	ErrorsByType map[string]int64 `json:"errors_by_type"`
	Emotions     map[string]int64 `json:"emotions"`
}

// Tester 分类服务负载测试器
type Tester struct {
	config     Config
	classifier Classifier

	total   atomic.Int64
	success atomic.Int64
	failed  atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	errors    map[string]int64
	emotions  map[string]int64
}

// New 创建负载测试器
func New(cls Classifier, config Config) *Tester {
	return &Tester{
		config:     config,
		classifier: cls,
		errors:     make(map[string]int64),
		emotions:   make(map[string]int64),
	}
}

// validateConfig 验证配置
func (t *Tester) validateConfig() error {
	if len(t.config.Frames) == 0 {
		return fmt.Errorf("no frames configured")
	}
	if t.config.ConcurrentClients < 1 {
		return fmt.Errorf("invalid concurrent clients: %d", t.config.ConcurrentClients)
	}
	if t.config.Duration <= 0 {
		return fmt.Errorf("invalid duration: %v", t.config.Duration)
	}
	return nil
}

// Run 运行负载测试直到时长结束或 ctx 取消
func (t *Tester) Run(ctx context.Context) (*Result, error) {
	if err := t.validateConfig(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log.Printf("Starting classifier load test: %d clients, %v duration, target %d RPS",
		t.config.ConcurrentClients, t.config.Duration, t.config.TargetRPS)

	ctx, cancel := context.WithTimeout(ctx, t.config.Duration)
	defer cancel()

	var interval time.Duration
	if t.config.TargetRPS > 0 {
		rpsPerClient := float64(t.config.TargetRPS) / float64(t.config.ConcurrentClients)
		interval = time.Duration(float64(time.Second) / rpsPerClient)
	}

	start := time.Now()
	var wg sync.WaitGroup
	var seq atomic.Int64
	for i := 0; i < t.config.ConcurrentClients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.clientWorker(ctx, interval, &seq)
		}()
	}
	wg.Wait()

	result := t.generateResult(time.Since(start))
	log.Printf("Classifier load test completed: %d requests, %.1f req/s", result.TotalRequests, result.RequestsPerSecond)
	return result, nil
}

// clientWorker 客户端工作器
func (t *Tester) clientWorker(ctx context.Context, interval time.Duration, seq *atomic.Int64) {
	var ticker *time.Ticker
	if interval > 0 {
		ticker = time.NewTicker(interval)
		defer ticker.Stop()
	}

	for {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		} else if ctx.Err() != nil {
			return
		}

		n := seq.Add(1) - 1
		t.executeRequest(ctx, t.config.Frames[n%int64(len(t.config.Frames))])
	}
}

// executeRequest 发送一帧并记录指标
func (t *Tester) executeRequest(ctx context.Context, frame []byte) {
	start := time.Now()
	res, err := t.classifier.Classify(ctx, frame)
	latency := time.Since(start)

	// 测试结束时被取消的请求不计入
	if err != nil && ctx.Err() != nil {
		return
	}

	t.total.Add(1)
	t.mu.Lock()
	defer t.mu.Unlock()

	t.latencies = append(t.latencies, latency)
	if err != nil {
		t.failed.Add(1)
		t.errors[errorType(err)]++
		return
	}
	t.success.Add(1)
	t.emotions[res.Emotion]++
}

// errorType 错误分类
func errorType(err error) string {
	var statusErr *classifier.StatusError
	switch {
	case errors.As(err, &statusErr):
		return fmt.Sprintf("http_%d", statusErr.StatusCode)
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "request"
	}
}

// generateResult 汇总结果
func (t *Tester) generateResult(elapsed time.Duration) *Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := &Result{
		TotalRequests:      t.total.Load(),
		SuccessfulRequests: t.success.Load(),
		FailedRequests:     t.failed.Load(),
		Duration:           elapsed,
		ErrorsByType:       make(map[string]int64, len(t.errors)),
		Emotions:           make(map[string]int64, len(t.emotions)),
	}
	for k, v := range t.errors {
		result.ErrorsByType[k] = v
	}
	for k, v := range t.emotions {
		result.Emotions[k] = v
	}
	if elapsed > 0 {
		result.RequestsPerSecond = float64(result.TotalRequests) / elapsed.Seconds()
	}

	if len(t.latencies) == 0 {
		return result
	}

	sorted := make([]time.Duration, len(t.latencies))
	copy(sorted, t.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, l := range sorted {
		total += l
	}
	result.MinLatency = ms(sorted[0])
	result.MaxLatency = ms(sorted[len(sorted)-1])
	result.AvgLatency = ms(total / time.Duration(len(sorted)))
	result.P50Latency = ms(percentile(sorted, 50))
	result.P95Latency = ms(percentile(sorted, 95))
	result.P99Latency = ms(percentile(sorted, 99))
	return result
}

// percentile 已排序序列的百分位
func percentile(sorted []time.Duration, p int) time.Duration {
	idx := (len(sorted)*p + 99) / 100
	if idx < 1 {
		idx = 1
	}
	if idx > len(sorted) {
		idx = len(sorted)
	}
	return sorted[idx-1]
}

func ms(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}
