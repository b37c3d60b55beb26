package metrics

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultActivityWindow 是判定用户活跃的时间窗口。
	DefaultActivityWindow = 60 * time.Second
	// DefaultUpdateInterval 是活跃度指标的刷新周期。
	DefaultUpdateInterval = 5 * time.Second
	// activeConnectionsCap 限制近似连接数的上报上限。
	activeConnectionsCap = 10
)

// Tracker 基于日志流维护每个用户的活跃度簿记，周期性推导
// user_active_connections 与 user_requests_per_second 两个仪表。
// 访问日志只记录已完成的请求，拿不到连接建立/断开事件，
// 这里的连接数只是窗口内请求数的近似。
type Tracker struct {
	store    *Store
	window   time.Duration
	interval time.Duration

	mu       sync.Mutex
	counts   map[string]int
	lastSeen map[string]time.Time

	now func() time.Time
}

// TrackerOption 定义 Tracker 可配参数。
type TrackerOption func(*Tracker)

// WithActivityWindow 覆盖活跃窗口。
func WithActivityWindow(window time.Duration) TrackerOption {
	return func(t *Tracker) {
		if window > 0 {
			t.window = window
		}
	}
}

// WithUpdateInterval 覆盖刷新周期。
func WithUpdateInterval(interval time.Duration) TrackerOption {
	return func(t *Tracker) {
		if interval > 0 {
			t.interval = interval
		}
	}
}

// WithClock 注入时间源，供测试使用。
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker 创建活跃度跟踪器。
func NewTracker(store *Store, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		store:    store,
		window:   DefaultActivityWindow,
		interval: DefaultUpdateInterval,
		counts:   make(map[string]int),
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Mark 记录一次请求。userIP 应当是 Store 实际使用的标签值，
// 以便序列上限对活跃度指标同样生效。
func (t *Tracker) Mark(userIP string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[userIP]++
	t.lastSeen[userIP] = t.now()
}

// Run 周期性刷新活跃度指标，直到 ctx 取消。
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Refresh()
		}
	}
}

// Refresh 重新计算并写入所有用户的活跃连接数与 RPS 仪表。
func (t *Tracker) Refresh() {
	now := t.now()
	windowSeconds := t.window.Seconds()

	t.mu.Lock()
	defer t.mu.Unlock()
	for userIP, seen := range t.lastSeen {
		recent := t.counts[userIP]
		if now.Sub(seen) < t.window {
			active := recent
			if active > activeConnectionsCap {
				active = activeConnectionsCap
			}
			t.store.SetActiveConnections(userIP, float64(active))
			t.store.SetRequestsPerSecond(userIP, float64(recent)/windowSeconds)
		} else {
			// 静默超过窗口：连接数与 RPS 归零并重置计数。
			t.counts[userIP] = 0
			t.store.SetActiveConnections(userIP, 0)
			t.store.SetRequestsPerSecond(userIP, 0)
		}
	}
}
