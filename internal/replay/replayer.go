package replay

import (
	"context"
	"errors"
	"sync"
	"time"

	"GrooveGauge/internal/emotion"
	"GrooveGauge/internal/sessionlog"
)

// Speed 回放速度倍率
type Speed float64

const (
	SpeedSlow    Speed = 0.5 // 慢速回放
	SpeedNormal  Speed = 1.0 // 按原始间隔
	SpeedFast    Speed = 2.0 // 快速回放
	SpeedInstant Speed = 0.0 // 无延迟
)

var (
	// ErrAlreadyPlaying 回放已在进行
	ErrAlreadyPlaying = errors.New("replay is already playing")
	// ErrNotPlaying 回放未开始或已结束
	ErrNotPlaying = errors.New("replay is not playing")
)

// Config 回放配置
type Config struct {
	Speed    Speed         `json:"speed"`
	Emotions []string      `json:"emotions,omitempty"` // 只回放这些情绪，为空时全部回放
	MaxGap   time.Duration `json:"max_gap"`            // 相邻读数的最长等待，0 表示不限制
}

// Event 回放事件
type Event struct {
	Index      int             `json:"index"`
	Reading    emotion.Reading `json:"reading"`
	ReplayTime time.Time       `json:"replay_time"`
	Delay      time.Duration   `json:"delay"`
}

// Stats 回放统计
type Stats struct {
	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time"`
	Duration      time.Duration `json:"duration"`
	TotalReadings int           `json:"total_readings"`
	Replayed      int           `json:"replayed"`
	Skipped       int           `json:"skipped"`
	Errors        int           `json:"errors"`
	PauseCount    int           `json:"pause_count"`
}

// Callback 回放回调，返回错误只计数不中断回放
type Callback func(event Event) error

// Replayer 会话日志回放器，按读数时间间隔依次交给回调
type Replayer struct {
	log       sessionlog.Log
	config    Config
	callbacks []Callback
	stats     Stats

	playing bool
	resume  chan struct{} // 非空表示已暂停

	mu     sync.RWMutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New 创建回放器
func New(log sessionlog.Log, config *Config) *Replayer {
	if config == nil {
		config = &Config{Speed: SpeedNormal}
	}
	return &Replayer{
		log:    log,
		config: *config,
		stats:  Stats{TotalReadings: log.Len()},
	}
}

// AddCallback 添加回放回调
func (r *Replayer) AddCallback(callback Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, callback)
}

// Play 开始回放，ctx 取消时提前结束
func (r *Replayer) Play(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.playing {
		return ErrAlreadyPlaying
	}

	ctx, cancel := context.WithCancel(ctx)
	r.playing = true
	r.cancel = cancel
	r.done = make(chan struct{})
	r.stats = Stats{TotalReadings: r.log.Len(), StartTime: time.Now()}

	go r.replayLoop(ctx, r.done)
	return nil
}

// Pause 暂停回放
func (r *Replayer) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.playing {
		return ErrNotPlaying
	}
	if r.resume == nil {
		r.resume = make(chan struct{})
		r.stats.PauseCount++
	}
	return nil
}

// Resume 恢复回放
func (r *Replayer) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.playing {
		return ErrNotPlaying
	}
	if r.resume != nil {
		close(r.resume)
		r.resume = nil
	}
	return nil
}

// Stop 停止回放并等待回放协程退出
func (r *Replayer) Stop() {
	r.mu.RLock()
	cancel, done := r.cancel, r.done
	r.mu.RUnlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Wait 等待回放完成
func (r *Replayer) Wait() {
	r.mu.RLock()
	done := r.done
	r.mu.RUnlock()

	if done != nil {
		<-done
	}
}

// IsPlaying 是否正在回放
func (r *Replayer) IsPlaying() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.playing
}

// IsPaused 是否已暂停
func (r *Replayer) IsPaused() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resume != nil
}

// GetStats 获取回放统计
func (r *Replayer) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := r.stats
	if r.playing {
		stats.Duration = time.Since(stats.StartTime)
	}
	return stats
}

// replayLoop 回放主循环
func (r *Replayer) replayLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		r.mu.Lock()
		r.playing = false
		if r.resume != nil {
			close(r.resume)
			r.resume = nil
		}
		r.stats.EndTime = time.Now()
		r.stats.Duration = r.stats.EndTime.Sub(r.stats.StartTime)
		r.mu.Unlock()
	}()

	var last time.Time
	for i := 0; i < r.log.Len(); i++ {
		if !r.waitWhilePaused(ctx) {
			return
		}

		reading := r.log.At(i)
		if !r.shouldReplay(reading) {
			r.mu.Lock()
			r.stats.Skipped++
			r.mu.Unlock()
			continue
		}

		delay := r.delayFor(last, reading.Timestamp)
		last = reading.Timestamp
		if wait := r.scaled(delay); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}

		event := Event{Index: i, Reading: reading, ReplayTime: time.Now(), Delay: delay}
		err := r.executeCallbacks(event)

		r.mu.Lock()
		if err != nil {
			r.stats.Errors++
		} else {
			r.stats.Replayed++
		}
		r.mu.Unlock()
	}
}

// waitWhilePaused 暂停时阻塞，ctx 取消返回 false
func (r *Replayer) waitWhilePaused(ctx context.Context) bool {
	for {
		r.mu.RLock()
		resume := r.resume
		r.mu.RUnlock()

		if resume == nil {
			return ctx.Err() == nil
		}
		select {
		case <-resume:
		case <-ctx.Done():
			return false
		}
	}
}

func (r *Replayer) shouldReplay(reading emotion.Reading) bool {
	if len(r.config.Emotions) == 0 {
		return true
	}
	for _, label := range r.config.Emotions {
		if label == reading.Emotion {
			return true
		}
	}
	return false
}

// delayFor 距上一条回放读数的原始间隔
func (r *Replayer) delayFor(last, ts time.Time) time.Duration {
	if last.IsZero() {
		return 0
	}
	delay := ts.Sub(last)
	if delay < 0 {
		delay = 0
	}
	if r.config.MaxGap > 0 && delay > r.config.MaxGap {
		delay = r.config.MaxGap
	}
	return delay
}

func (r *Replayer) scaled(delay time.Duration) time.Duration {
	if r.config.Speed <= 0 {
		return 0
	}
	return time.Duration(float64(delay) / float64(r.config.Speed))
}

func (r *Replayer) executeCallbacks(event Event) error {
	r.mu.RLock()
	callbacks := make([]Callback, len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.mu.RUnlock()

	var firstErr error
	for _, callback := range callbacks {
		if err := callback(event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
