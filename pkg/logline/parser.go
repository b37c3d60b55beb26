package logline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Reason 标识一行日志被拒绝的原因。
type Reason string

const (
	// ReasonTooFewFields 表示日志行字段数量不足，无法匹配任何已知格式。
	ReasonTooFewFields Reason = "too_few_fields"
	// ReasonMalformedTimestamp 表示方括号内的时间戳无法解析。
	ReasonMalformedTimestamp Reason = "malformed_timestamp"
	// ReasonMalformedRequestLine 表示引号内的请求行不是 "METHOD PATH PROTO" 形式。
	ReasonMalformedRequestLine Reason = "malformed_request_line"
	// ReasonBadStatus 表示状态码字段不是整数。
	ReasonBadStatus Reason = "bad_status"
	// ReasonBadBytes 表示响应字节数字段不是非负整数。
	ReasonBadBytes Reason = "bad_bytes"
	// ReasonBadTiming 表示 rt=/uct=/uht=/urt= 计时字段无法解析为浮点数。
	ReasonBadTiming Reason = "bad_timing"
)

// ParseError 描述单行日志解析失败的结构化结果，不会中断摄取流程。
type ParseError struct {
	Reason Reason
	Line   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse log line: %s", e.Reason)
}

// timeLocalLayout 对应 nginx $time_local 的默认格式。
const timeLocalLayout = "02/Jan/2006:15:04:05 -0700"

var (
	// 增强格式：combined 日志加上 rt/uct/uht/urt 计时后缀。
	// 数值字段故意用 \S+ 捕获，便于给出具体的拒绝原因。
	enhancedPattern = regexp.MustCompile(
		`^(\S+) - (\S+) \[([^\]]+)\] "([^"]*)" (\S+) (\S+) "([^"]*)" "([^"]*)" "([^"]*)"` +
			` rt=(\S+) uct="([^"]*)" uht="([^"]*)" urt="([^"]*)"$`)

	// 基础格式：不带计时字段的 combined 日志，作为兼容回退。
	basicPattern = regexp.MustCompile(
		`^(\S+) - (\S+) \[([^\]]+)\] "([^"]*)" (\S+) (\S+) "([^"]*)" "([^"]*)" "([^"]*)"$`)
)

// Parser 将原始日志行解析为 Record，并通过注入的解析函数归一化路由。
type Parser struct {
	resolve func(path string) string
}

// Option 定义 Parser 可配参数。
type Option func(*Parser)

// WithRouteResolver 注入路由归一化函数，通常来自 routes.Service。
func WithRouteResolver(resolve func(path string) string) Option {
	return func(p *Parser) {
		p.resolve = resolve
	}
}

// NewParser 创建 Parser。未注入解析函数时所有路径归为根路由 "/"。
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		resolve: func(string) string { return "/" },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse 解析单行日志。成功时恰好返回一个 Record；
// 失败时返回 *ParseError，调用方负责计数后继续处理下一行。
func (p *Parser) Parse(line string) (Record, error) {
	line = strings.TrimSpace(line)

	var (
		groups []string
		timed  bool
	)
	if m := enhancedPattern.FindStringSubmatch(line); m != nil {
		groups = m
		timed = true
	} else if m := basicPattern.FindStringSubmatch(line); m != nil {
		groups = m
	} else {
		return Record{}, &ParseError{Reason: ReasonTooFewFields, Line: line}
	}

	timestamp, err := time.Parse(timeLocalLayout, groups[3])
	if err != nil {
		return Record{}, &ParseError{Reason: ReasonMalformedTimestamp, Line: line}
	}

	method, path, err := splitRequestLine(groups[4])
	if err != nil {
		return Record{}, &ParseError{Reason: ReasonMalformedRequestLine, Line: line}
	}

	status, err := strconv.Atoi(groups[5])
	if err != nil {
		return Record{}, &ParseError{Reason: ReasonBadStatus, Line: line}
	}

	bytesSent, err := strconv.ParseInt(groups[6], 10, 64)
	if err != nil || bytesSent < 0 {
		return Record{}, &ParseError{Reason: ReasonBadBytes, Line: line}
	}

	rec := Record{
		ClientIP:  groups[1],
		Timestamp: timestamp,
		Method:    method,
		Path:      path,
		Route:     p.resolve(path),
		Status:    status,
		BytesSent: bytesSent,
	}

	if timed {
		rt, err := strconv.ParseFloat(groups[10], 64)
		if err != nil {
			return Record{}, &ParseError{Reason: ReasonBadTiming, Line: line}
		}
		rec.RequestTime = &rt

		for i, dst := range []**float64{
			&rec.UpstreamConnectTime,
			&rec.UpstreamHeaderTime,
			&rec.UpstreamResponseTime,
		} {
			value, err := parseUpstreamTiming(groups[11+i])
			if err != nil {
				return Record{}, &ParseError{Reason: ReasonBadTiming, Line: line}
			}
			*dst = value
		}
	}

	return rec, nil
}

// splitRequestLine 拆分 "METHOD PATH PROTO" 请求行。
func splitRequestLine(raw string) (method, path string, err error) {
	parts := strings.Fields(raw)
	if len(parts) != 3 {
		return "", "", fmt.Errorf("request line must have 3 tokens, got %d", len(parts))
	}
	return parts[0], parts[1], nil
}

// parseUpstreamTiming 解析 uct/uht/urt 字段，"-" 表示无上游计时。
func parseUpstreamTiming(raw string) (*float64, error) {
	if raw == "-" || raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &value, nil
}
