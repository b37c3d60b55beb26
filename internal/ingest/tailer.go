// Package ingest 实现访问日志的摄取侧：持续读取日志源并驱动
// 解析、判定与指标更新。摄取是单条顺序管道，行序与日志一致。
package ingest

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// StdinPath 表示从标准输入读取日志流。
const StdinPath = "-"

const (
	defaultPollInterval = 500 * time.Millisecond
	defaultBackoffMin   = 200 * time.Millisecond
	defaultBackoffMax   = 10 * time.Second
)

// Tailer 从持续增长的日志源产出无界的行序列。
// 源暂时无数据时阻塞等待（fsnotify 事件加轮询兜底），不忙等；
// 打开失败按指数退避重试而不是退出进程；未换行的半行先缓冲，
// 凑齐完整一行才交付。
type Tailer struct {
	path         string
	pollInterval time.Duration
	backoffMin   time.Duration
	backoffMax   time.Duration
	logger       *slog.Logger
}

// TailerOption 定义 Tailer 可配参数。
type TailerOption func(*Tailer)

// WithPollInterval 覆盖无事件时的轮询间隔。
func WithPollInterval(interval time.Duration) TailerOption {
	return func(t *Tailer) {
		if interval > 0 {
			t.pollInterval = interval
		}
	}
}

// WithBackoff 覆盖打开失败的退避区间。
func WithBackoff(min, max time.Duration) TailerOption {
	return func(t *Tailer) {
		if min > 0 {
			t.backoffMin = min
		}
		if max >= min {
			t.backoffMax = max
		}
	}
}

// WithTailerLogger 设置日志记录器。
func WithTailerLogger(logger *slog.Logger) TailerOption {
	return func(t *Tailer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTailer 创建 Tailer。path 为 "-" 时读取标准输入。
func NewTailer(path string, opts ...TailerOption) *Tailer {
	t := &Tailer{
		path:         path,
		pollInterval: defaultPollInterval,
		backoffMin:   defaultBackoffMin,
		backoffMax:   defaultBackoffMax,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run 逐行调用 emit 直到 ctx 取消；标准输入读到 EOF 时正常返回。
// 任何一行都不会被静默丢弃。
func (t *Tailer) Run(ctx context.Context, emit func(line string)) error {
	if t.path == StdinPath {
		return t.runStdin(ctx, emit)
	}
	return t.runFile(ctx, emit)
}

func (t *Tailer) runStdin(ctx context.Context, emit func(line string)) error {
	reader := bufio.NewReader(os.Stdin)
	for {
		line, err := reader.ReadString('\n')
		if line != "" && strings.TrimRight(line, "\r\n") != "" {
			emit(strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			if err == io.EOF {
				t.logger.Info("stdin closed, ingestion finished")
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (t *Tailer) runFile(ctx context.Context, emit func(line string)) error {
	watcher := t.newWatcher()
	if watcher != nil {
		defer watcher.Close()
	}

	backoff := t.backoffMin
	for {
		file, err := os.Open(t.path)
		if err != nil {
			t.logger.Warn("open log source failed, retrying",
				"path", t.path, "backoff", backoff.String(), "error", err)
			if err := sleepCtx(ctx, backoff); err != nil {
				return err
			}
			backoff = minDuration(backoff*2, t.backoffMax)
			continue
		}
		backoff = t.backoffMin

		err = t.readUntilRotated(ctx, file, watcher, emit)
		file.Close()
		if err != nil {
			return err
		}
		// 源被轮转或截断，从头重新打开。
	}
}

// readUntilRotated 读取当前文件直到 ctx 取消（返回错误）
// 或检测到轮转/截断（返回 nil，调用方重新打开）。
func (t *Tailer) readUntilRotated(ctx context.Context, file *os.File, watcher *fsnotify.Watcher, emit func(line string)) error {
	reader := bufio.NewReader(file)
	var pending strings.Builder
	var consumed int64

	for {
		chunk, err := reader.ReadString('\n')
		consumed += int64(len(chunk))
		if err == nil {
			line := strings.TrimRight(pending.String()+chunk, "\r\n")
			pending.Reset()
			if line != "" {
				emit(line)
			}
			continue
		}
		if err != io.EOF {
			t.logger.Warn("read log source failed, reopening", "path", t.path, "error", err)
			return nil
		}
		// 半行先缓冲，等后续写入补齐。
		pending.WriteString(chunk)

		if err := t.waitForChange(ctx, watcher); err != nil {
			return err
		}

		rotated, err := t.sourceRotated(file, consumed)
		if err != nil || rotated {
			return nil
		}
	}
}

// waitForChange 阻塞至文件有新事件、轮询周期到达或 ctx 取消。
func (t *Tailer) waitForChange(ctx context.Context, watcher *fsnotify.Watcher) error {
	timer := time.NewTimer(t.pollInterval)
	defer timer.Stop()

	if watcher == nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name == t.path {
				return nil
			}
		case err, ok := <-watcher.Errors:
			if ok && err != nil {
				t.logger.Warn("log source watch error", "error", err)
			}
			return nil
		}
	}
}

// sourceRotated 判断源是否被截断或替换。
func (t *Tailer) sourceRotated(file *os.File, consumed int64) (bool, error) {
	current, err := os.Stat(t.path)
	if err != nil {
		// 文件被移除或暂不可见，按轮转处理。
		return true, nil
	}
	if current.Size() < consumed {
		t.logger.Info("log source truncated, reopening", "path", t.path)
		return true, nil
	}
	opened, err := file.Stat()
	if err != nil {
		return true, nil
	}
	if !os.SameFile(current, opened) {
		t.logger.Info("log source rotated, reopening", "path", t.path)
		return true, nil
	}
	return false, nil
}

func (t *Tailer) newWatcher() *fsnotify.Watcher {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		t.logger.Warn("fsnotify unavailable, falling back to polling", "error", err)
		return nil
	}
	if err := watcher.Add(filepath.Dir(t.path)); err != nil {
		t.logger.Warn("watch log directory failed, falling back to polling",
			"dir", filepath.Dir(t.path), "error", err)
		watcher.Close()
		return nil
	}
	return watcher
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
