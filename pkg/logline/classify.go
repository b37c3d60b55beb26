package logline

// TimeoutType 区分三类超时事件。
type TimeoutType string

const (
	// TimeoutNone 表示请求未超时。
	TimeoutNone TimeoutType = ""
	// TimeoutGateway 对应上游网关超时（504）。
	TimeoutGateway TimeoutType = "gateway_timeout"
	// TimeoutRequest 对应客户端请求超时（408）。
	TimeoutRequest TimeoutType = "request_timeout"
	// TimeoutResponse 对应响应耗时超过阈值（对齐 proxy_read_timeout）。
	TimeoutResponse TimeoutType = "response_timeout"
)

// DefaultResponseTimeoutSeconds 是响应超时判定的默认阈值，
// 与代理侧 proxy_read_timeout 600s 保持一致。
const DefaultResponseTimeoutSeconds = 600.0

// Classification 汇总一条记录的限流与超时判定结果，两者相互独立。
type Classification struct {
	RateLimited bool
	Timeout     TimeoutType
}

// Classify 对单条记录做限流与超时判定。
// 状态码判定优先于耗时判定：504 同时超过阈值时只计 gateway_timeout，
// 每条记录至多归入一种超时类型。
func Classify(rec Record, responseTimeoutSeconds float64) Classification {
	cls := Classification{
		RateLimited: rec.Status == 429,
	}
	switch {
	case rec.Status == 504:
		cls.Timeout = TimeoutGateway
	case rec.Status == 408:
		cls.Timeout = TimeoutRequest
	case rec.RequestTime != nil && *rec.RequestTime > responseTimeoutSeconds:
		cls.Timeout = TimeoutResponse
	}
	return cls
}
