package logline

import "time"

// Record 表示访问日志中一条已完成的 HTTP 请求。
type Record struct {
	ClientIP  string    `json:"client_ip"`
	Timestamp time.Time `json:"timestamp"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	Route     string    `json:"route"`
	Status    int       `json:"status"`
	BytesSent int64     `json:"bytes_sent"`

	// RequestTime 为 nil 表示日志行采用无计时字段的基础格式。
	RequestTime *float64 `json:"request_time,omitempty"`

	// 上游计时字段；日志中为 "-" 时保持 nil，表示未联系上游。
	UpstreamConnectTime  *float64 `json:"upstream_connect_time,omitempty"`
	UpstreamHeaderTime   *float64 `json:"upstream_header_time,omitempty"`
	UpstreamResponseTime *float64 `json:"upstream_response_time,omitempty"`
}
