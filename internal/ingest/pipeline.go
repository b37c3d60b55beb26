package ingest

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prehisle/ustats/pkg/logline"
	"github.com/prehisle/ustats/pkg/metrics"
)

// Pipeline 串起解析、判定与指标更新，是摄取侧唯一的写入路径。
// 解析失败只计数不中断；抓取端并发读取同一 Store，互不阻塞。
type Pipeline struct {
	parser                 *logline.Parser
	store                  *metrics.Store
	tracker                *metrics.Tracker
	responseTimeoutSeconds float64
	logger                 *slog.Logger
}

// PipelineOption 定义 Pipeline 可配参数。
type PipelineOption func(*Pipeline)

// WithResponseTimeout 覆盖响应超时阈值（秒）。
func WithResponseTimeout(seconds float64) PipelineOption {
	return func(p *Pipeline) {
		if seconds > 0 {
			p.responseTimeoutSeconds = seconds
		}
	}
}

// WithPipelineLogger 设置日志记录器。
func WithPipelineLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPipeline 创建摄取管道。
func NewPipeline(parser *logline.Parser, store *metrics.Store, tracker *metrics.Tracker, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		parser:                 parser,
		store:                  store,
		tracker:                tracker,
		responseTimeoutSeconds: logline.DefaultResponseTimeoutSeconds,
		logger:                 slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandleLine 处理单行日志：解析失败累计 log_parse_errors_total 后返回，
// 成功则更新全部相关序列并登记用户活跃度。
func (p *Pipeline) HandleLine(line string) {
	rec, err := p.parser.Parse(line)
	if err != nil {
		var parseErr *logline.ParseError
		if errors.As(err, &parseErr) {
			p.store.IncParseError(parseErr.Reason)
			p.logger.Debug("discard malformed log line",
				"reason", string(parseErr.Reason), "line", line)
		}
		return
	}

	cls := logline.Classify(rec, p.responseTimeoutSeconds)
	userLabel := p.store.ObserveRequest(rec, cls)
	if p.tracker != nil {
		p.tracker.Mark(userLabel)
	}
}

// Run 用给定 Tailer 驱动管道直至 ctx 取消。
func (p *Pipeline) Run(ctx context.Context, tailer *Tailer) error {
	return tailer.Run(ctx, p.HandleLine)
}
