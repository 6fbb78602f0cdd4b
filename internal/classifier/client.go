package classifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// AnalyzePath 情绪分析接口路径
const AnalyzePath = "/analyze-emotion"

// ErrClassificationRequest 分类请求失败（网络、超时、状态码或解析错误）
var ErrClassificationRequest = errors.New("classification request failed")

// Result 分类结果
type Result struct {
	Emotion  string `json:"emotion"`
	Feedback string `json:"feedback"`
}

// Request 分类请求体
type Request struct {
	Image string `json:"image"`
}

// StatusError 非2xx响应
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// TokenSource 提供认证令牌（可为空）
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Config 客户端配置
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	MaxRetries    int
	RetryInterval time.Duration
	UserAgent     string
}

// DefaultConfig 返回默认配置
func DefaultConfig(baseURL string) *Config {
	return &Config{
		BaseURL:       baseURL,
		Timeout:       10 * time.Second,
		MaxRetries:    0,
		RetryInterval: 500 * time.Millisecond,
		UserAgent:     "GrooveGauge/1.0",
	}
}

// Client 情绪分类服务客户端
type Client struct {
	config     *Config
	httpClient *http.Client
	tokens     TokenSource
}

// Option 客户端选项
type Option func(*Client)

// WithHTTPClient 使用自定义HTTP客户端
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTokenSource 设置认证令牌来源
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// New 创建分类客户端
func New(config *Config, opts ...Option) *Client {
	if config == nil {
		panic("config cannot be nil")
	}

	c := &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify 发送一帧图像并返回情绪标签与反馈
//
// 服务省略 emotion 字段时 Result.Emotion 为空，由调用方决定默认值。
func (c *Client) Classify(ctx context.Context, frame []byte) (*Result, error) {
	body, err := json.Marshal(Request{Image: base64.StdEncoding.EncodeToString(frame)})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrClassificationRequest, err)
	}

	token := ""
	if c.tokens != nil {
		token, err = c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: token: %v", ErrClassificationRequest, err)
		}
	}

	var result *Result
	operation := func() error {
		res, err := c.doRequest(ctx, body, token)
		if err != nil {
			return err
		}
		result = res
		return nil
	}

	if err := backoff.RetryNotify(operation, c.newBackOff(ctx), func(err error, wait time.Duration) {
		log.Printf("[WARN] classifier: retrying in %v: %v", wait, err)
	}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClassificationRequest, err)
	}

	return result, nil
}

// newBackOff 指数退避，最多重试 MaxRetries 次
func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if c.config.RetryInterval > 0 {
		exp.InitialInterval = c.config.RetryInterval
	}
	exp.MaxElapsedTime = 0

	retries := c.config.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

// doRequest 执行一次HTTP请求；4xx与解析错误不重试
func (c *Client) doRequest(ctx context.Context, body []byte, token string) (*Result, error) {
	url := strings.TrimRight(c.config.BaseURL, "/") + AnalyzePath

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(fmt.Errorf("http request: %w", err))
		}
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("parse response: %w", err))
	}

	return &result, nil
}
