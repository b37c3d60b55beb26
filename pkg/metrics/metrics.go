// Package metrics 维护导出器的全部指标序列。
//
// Store 持有私有的 prometheus.Registry，由 main 显式构造并同时注入
// 摄取管道与 HTTP 端，不依赖进程级全局注册表。序列随首次观测惰性
// 创建并存活至进程退出；user_active_connections 只能从日志流近似
// 推算（按活跃窗口内的请求数估计），精确值需要代理侧的连接信号。
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prehisle/ustats/pkg/logline"
)

// OverflowUser 是超出用户序列上限后统一归入的标签值。
const OverflowUser = "other"

// DefaultNamespace 与下游看板消费的指标名保持一致（nginx_user_requests_total 等）。
const DefaultNamespace = "nginx"

// durationBuckets 沿用原有导出器的延迟分桶。
var durationBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05,
	0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
}

// Store 是并发安全的指标存储：计数器、仪表与直方图按标签组寻址，
// 单键更新原子可见，抓取读取与摄取写入互不阻塞。
type Store struct {
	registry *prometheus.Registry

	namespace       string
	maxTrackedUsers int

	mu           sync.Mutex
	trackedUsers map[string]struct{}

	requestsTotal       *prometheus.CounterVec
	bytesTotal          *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	activeConnections   *prometheus.GaugeVec
	requestsPerSecond   *prometheus.GaugeVec
	lastRequestTime     *prometheus.GaugeVec
	rateLimitHits       *prometheus.CounterVec
	rateLimitHitsGlobal *prometheus.CounterVec
	timeoutEvents       *prometheus.CounterVec
	timeoutEventsGlobal *prometheus.CounterVec
	parseErrors         *prometheus.CounterVec
	handlerRequests     *prometheus.CounterVec
	handlerDuration     *prometheus.HistogramVec
	adminActions        *prometheus.CounterVec

	now func() time.Time
}

// StoreOption 定义 Store 可配参数。
type StoreOption func(*Store)

// WithNamespace 覆盖指标名前缀，默认 nginx。
func WithNamespace(namespace string) StoreOption {
	return func(s *Store) {
		s.namespace = namespace
	}
}

// WithMaxTrackedUsers 限制按用户展开的序列数量：超过上限后，
// 新出现的客户端地址统一记入 user_ip="other"。0 表示不设上限。
func WithMaxTrackedUsers(n int) StoreOption {
	return func(s *Store) {
		s.maxTrackedUsers = n
	}
}

// NewStore 创建并注册全部指标序列。
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		registry:     prometheus.NewRegistry(),
		namespace:    DefaultNamespace,
		trackedUsers: make(map[string]struct{}),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: s.namespace,
			Name:      "user_requests_total",
			Help:      "Total number of requests per user.",
		},
		[]string{"user_ip", "status", "method", "route"},
	)
	s.bytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: s.namespace,
			Name:      "user_bytes_total",
			Help:      "Total bytes transferred per user.",
		},
		[]string{"user_ip", "direction"},
	)
	s.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: s.namespace,
			Name:      "user_request_duration_seconds",
			Help:      "Request duration per user.",
			Buckets:   durationBuckets,
		},
		[]string{"user_ip", "route"},
	)
	s.activeConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: s.namespace,
			Name:      "user_active_connections",
			Help:      "Approximate number of active connections per user.",
		},
		[]string{"user_ip"},
	)
	s.requestsPerSecond = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: s.namespace,
			Name:      "user_requests_per_second",
			Help:      "Requests per second per user.",
		},
		[]string{"user_ip"},
	)
	s.lastRequestTime = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: s.namespace,
			Name:      "user_last_request_time",
			Help:      "Unix timestamp of last request per user.",
		},
		[]string{"user_ip"},
	)
	s.rateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: s.namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Total number of rate limit hits (429 status codes) per user.",
		},
		[]string{"user_ip", "route", "http_method"},
	)
	s.rateLimitHitsGlobal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: s.namespace,
			Name:      "rate_limit_hits_global_total",
			Help:      "Total number of rate limit hits (429 status codes), aggregated across users.",
		},
		[]string{"route", "http_method"},
	)
	s.timeoutEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: s.namespace,
			Name:      "timeout_events_total",
			Help:      "Total number of timeout events (504, 408, or slow responses) per user.",
		},
		[]string{"user_ip", "route", "timeout_type", "http_method"},
	)
	s.timeoutEventsGlobal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: s.namespace,
			Name:      "timeout_events_global_total",
			Help:      "Total number of timeout events (504, 408, or slow responses), aggregated across users.",
		},
		[]string{"route", "timeout_type", "http_method"},
	)
	s.parseErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: s.namespace,
			Name:      "log_parse_errors_total",
			Help:      "Total number of access log lines rejected by the parser.",
		},
		[]string{"reason"},
	)
	s.handlerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: s.namespace,
			Name:      "exporter_http_requests_total",
			Help:      "Total number of HTTP requests served by the exporter itself.",
		},
		[]string{"method", "route", "status"},
	)
	s.handlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: s.namespace,
			Name:      "exporter_http_request_duration_seconds",
			Help:      "Latency histogram for the exporter's own HTTP endpoints.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "route"},
	)
	s.adminActions = newAdminActionsVec(s.namespace)

	s.registry.MustRegister(
		s.requestsTotal,
		s.bytesTotal,
		s.requestDuration,
		s.activeConnections,
		s.requestsPerSecond,
		s.lastRequestTime,
		s.rateLimitHits,
		s.rateLimitHitsGlobal,
		s.timeoutEvents,
		s.timeoutEventsGlobal,
		s.parseErrors,
		s.handlerRequests,
		s.handlerDuration,
		s.adminActions,
	)
	return s
}

// ObserveRequest 根据一条记录及其判定结果更新全部相关序列，
// 返回实际使用的 user_ip 标签值（序列超限时为 OverflowUser）。
func (s *Store) ObserveRequest(rec logline.Record, cls logline.Classification) string {
	userIP := s.userLabel(rec.ClientIP)
	status := strconv.Itoa(rec.Status)

	s.requestsTotal.WithLabelValues(userIP, status, rec.Method, rec.Route).Inc()
	s.bytesTotal.WithLabelValues(userIP, "sent").Add(float64(rec.BytesSent))
	if rec.RequestTime != nil {
		s.requestDuration.WithLabelValues(userIP, rec.Route).Observe(*rec.RequestTime)
	}
	s.lastRequestTime.WithLabelValues(userIP).Set(float64(s.now().Unix()))

	if cls.RateLimited {
		s.rateLimitHits.WithLabelValues(userIP, rec.Route, rec.Method).Inc()
		s.rateLimitHitsGlobal.WithLabelValues(rec.Route, rec.Method).Inc()
	}
	if cls.Timeout != logline.TimeoutNone {
		s.timeoutEvents.WithLabelValues(userIP, rec.Route, string(cls.Timeout), rec.Method).Inc()
		s.timeoutEventsGlobal.WithLabelValues(rec.Route, string(cls.Timeout), rec.Method).Inc()
	}
	return userIP
}

// IncParseError 记录一次解析失败。
func (s *Store) IncParseError(reason logline.Reason) {
	s.parseErrors.WithLabelValues(string(reason)).Inc()
}

// SetActiveConnections 由活跃度跟踪器写入近似的连接数。
func (s *Store) SetActiveConnections(userIP string, value float64) {
	s.activeConnections.WithLabelValues(userIP).Set(value)
}

// SetRequestsPerSecond 由活跃度跟踪器写入窗口均值。
func (s *Store) SetRequestsPerSecond(userIP string, value float64) {
	s.requestsPerSecond.WithLabelValues(userIP).Set(value)
}

// ObserveHandlerRequest 记录导出器自身 HTTP 端点的一次请求。
func (s *Store) ObserveHandlerRequest(method, route string, status int, duration time.Duration) {
	s.handlerRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	s.handlerDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler 返回 /metrics 端点的处理器。抓取只读，不会修改任何序列。
func (s *Store) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Gatherer 暴露私有注册表，供测试做快照断言。
func (s *Store) Gatherer() prometheus.Gatherer {
	return s.registry
}

// userLabel 应用序列上限：未超限的地址按原值展开，超限后归入 OverflowUser。
func (s *Store) userLabel(ip string) string {
	if s.maxTrackedUsers <= 0 {
		return ip
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trackedUsers[ip]; ok {
		return ip
	}
	if len(s.trackedUsers) >= s.maxTrackedUsers {
		return OverflowUser
	}
	s.trackedUsers[ip] = struct{}{}
	return ip
}
