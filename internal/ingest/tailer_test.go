package ingest_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prehisle/ustats/internal/ingest"
)

type lineSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *lineSink) add(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

func (s *lineSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func startTailer(t *testing.T, path string) (*lineSink, context.CancelFunc) {
	t.Helper()
	sink := &lineSink{}
	ctx, cancel := context.WithCancel(context.Background())
	tailer := ingest.NewTailer(path,
		ingest.WithPollInterval(10*time.Millisecond),
		ingest.WithBackoff(10*time.Millisecond, 50*time.Millisecond),
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = tailer.Run(ctx, sink.add)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("tailer did not stop")
		}
	})
	return sink, cancel
}

func TestTailer_EmitsAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	require.NoError(t, os.WriteFile(path, []byte("first\n"), 0o644))

	sink, _ := startTailer(t, path)

	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = file.WriteString("second\nthird\n")
	require.NoError(t, err)
	require.NoError(t, file.Close())

	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == 3
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"first", "second", "third"}, sink.snapshot())
}

func TestTailer_BuffersPartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	sink, _ := startTailer(t, path)

	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = file.WriteString("incomple")
	require.NoError(t, err)

	// 半行不应被提前交付。
	time.Sleep(100 * time.Millisecond)
	require.Empty(t, sink.snapshot())

	_, err = file.WriteString("te line\n")
	require.NoError(t, err)
	require.NoError(t, file.Close())

	require.Eventually(t, func() bool {
		lines := sink.snapshot()
		return len(lines) == 1 && lines[0] == "incomplete line"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestTailer_WaitsForMissingSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "access.log")

	sink, _ := startTailer(t, path)

	// 源尚不存在时退避等待而不是退出。
	time.Sleep(100 * time.Millisecond)
	require.Empty(t, sink.snapshot())

	require.NoError(t, os.WriteFile(path, []byte("late arrival\n"), 0o644))

	require.Eventually(t, func() bool {
		lines := sink.snapshot()
		return len(lines) == 1 && lines[0] == "late arrival"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestTailer_ReopensAfterTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	require.NoError(t, os.WriteFile(path, []byte("old one\nold two\n"), 0o644))

	sink, _ := startTailer(t, path)

	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == 2
	}, 5*time.Second, 10*time.Millisecond)

	// 截断后重写，模拟 copytruncate 轮转。
	require.NoError(t, os.WriteFile(path, []byte("fresh\n"), 0o644))

	require.Eventually(t, func() bool {
		lines := sink.snapshot()
		return len(lines) == 3 && lines[2] == "fresh"
	}, 5*time.Second, 10*time.Millisecond)
}
