package logline_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prehisle/ustats/pkg/logline"
)

func testResolver(path string) string {
	for _, prefix := range []string{"/server1", "/server2"} {
		if len(path) >= len(prefix) && path[:len(prefix)] == prefix {
			return prefix
		}
	}
	return "/"
}

func TestParser_EnhancedFormat(t *testing.T) {
	parser := logline.NewParser(logline.WithRouteResolver(testResolver))

	line := `192.168.1.100 - - [30/Aug/2026:12:34:56 +0000] "GET /server1/api/data HTTP/1.1" 200 1024 "-" "curl/8.5.0" "-" rt=0.123 uct="0.001" uht="0.120" urt="0.122"`
	rec, err := parser.Parse(line)
	require.NoError(t, err)

	require.Equal(t, "192.168.1.100", rec.ClientIP)
	require.Equal(t, "GET", rec.Method)
	require.Equal(t, "/server1/api/data", rec.Path)
	require.Equal(t, "/server1", rec.Route)
	require.Equal(t, 200, rec.Status)
	require.Equal(t, int64(1024), rec.BytesSent)
	require.Equal(t, time.Date(2026, time.August, 30, 12, 34, 56, 0, time.UTC), rec.Timestamp.UTC())

	require.NotNil(t, rec.RequestTime)
	require.InDelta(t, 0.123, *rec.RequestTime, 1e-9)
	require.NotNil(t, rec.UpstreamConnectTime)
	require.InDelta(t, 0.001, *rec.UpstreamConnectTime, 1e-9)
	require.NotNil(t, rec.UpstreamHeaderTime)
	require.NotNil(t, rec.UpstreamResponseTime)
}

func TestParser_DashMeansNoUpstreamTiming(t *testing.T) {
	parser := logline.NewParser(logline.WithRouteResolver(testResolver))

	line := `10.0.0.1 - - [01/Jan/2026:00:00:00 +0000] "POST /server2/upload HTTP/1.1" 429 0 "-" "-" "-" rt=0.000 uct="-" uht="-" urt="-"`
	rec, err := parser.Parse(line)
	require.NoError(t, err)

	require.NotNil(t, rec.RequestTime)
	require.Nil(t, rec.UpstreamConnectTime)
	require.Nil(t, rec.UpstreamHeaderTime)
	require.Nil(t, rec.UpstreamResponseTime)
	require.Equal(t, "/server2", rec.Route)
	require.Equal(t, 429, rec.Status)
}

func TestParser_BasicFormatWithoutTiming(t *testing.T) {
	parser := logline.NewParser()

	line := `172.16.0.9 - alice [15/Mar/2026:08:00:01 +0200] "GET /status HTTP/1.0" 200 512 "http://example.com" "Mozilla/5.0" "-"`
	rec, err := parser.Parse(line)
	require.NoError(t, err)

	require.Equal(t, "172.16.0.9", rec.ClientIP)
	require.Nil(t, rec.RequestTime)
	require.Equal(t, "/", rec.Route)
	require.Equal(t, int64(512), rec.BytesSent)
}

func TestParser_UnmatchedPathFallsBackToRoot(t *testing.T) {
	parser := logline.NewParser(logline.WithRouteResolver(testResolver))

	line := `192.168.1.5 - - [30/Aug/2026:12:00:00 +0000] "GET /other/path HTTP/1.1" 200 10 "-" "-" "-" rt=0.010 uct="-" uht="-" urt="-"`
	rec, err := parser.Parse(line)
	require.NoError(t, err)
	require.Equal(t, "/", rec.Route)
}

func TestParser_MalformedLines(t *testing.T) {
	parser := logline.NewParser()

	cases := []struct {
		name   string
		line   string
		reason logline.Reason
	}{
		{
			name:   "garbage",
			line:   "this is not an access log line",
			reason: logline.ReasonTooFewFields,
		},
		{
			name:   "truncated",
			line:   `192.168.1.1 - - [30/Aug/2026:12:00:00 +0000] "GET /x`,
			reason: logline.ReasonTooFewFields,
		},
		{
			name:   "bad timestamp",
			line:   `192.168.1.1 - - [yesterday] "GET /x HTTP/1.1" 200 1 "-" "-" "-"`,
			reason: logline.ReasonMalformedTimestamp,
		},
		{
			name:   "bad request line",
			line:   `192.168.1.1 - - [30/Aug/2026:12:00:00 +0000] "GET" 200 1 "-" "-" "-"`,
			reason: logline.ReasonMalformedRequestLine,
		},
		{
			name:   "non numeric status",
			line:   `192.168.1.1 - - [30/Aug/2026:12:00:00 +0000] "GET /x HTTP/1.1" abc 1 "-" "-" "-"`,
			reason: logline.ReasonBadStatus,
		},
		{
			name:   "non numeric bytes",
			line:   `192.168.1.1 - - [30/Aug/2026:12:00:00 +0000] "GET /x HTTP/1.1" 200 many "-" "-" "-"`,
			reason: logline.ReasonBadBytes,
		},
		{
			name:   "bad request time",
			line:   `192.168.1.1 - - [30/Aug/2026:12:00:00 +0000] "GET /x HTTP/1.1" 200 1 "-" "-" "-" rt=slow uct="-" uht="-" urt="-"`,
			reason: logline.ReasonBadTiming,
		},
		{
			name:   "bad upstream timing",
			line:   `192.168.1.1 - - [30/Aug/2026:12:00:00 +0000] "GET /x HTTP/1.1" 200 1 "-" "-" "-" rt=0.1 uct="fast" uht="-" urt="-"`,
			reason: logline.ReasonBadTiming,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parser.Parse(tc.line)
			require.Error(t, err)
			var parseErr *logline.ParseError
			require.ErrorAs(t, err, &parseErr)
			require.Equal(t, tc.reason, parseErr.Reason)
		})
	}
}

func TestParser_EmptyBytesRejected(t *testing.T) {
	parser := logline.NewParser()
	line := `192.168.1.1 - - [30/Aug/2026:12:00:00 +0000] "GET /x HTTP/1.1" 200 -5 "-" "-" "-"`
	_, err := parser.Parse(line)
	var parseErr *logline.ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Equal(t, logline.ReasonBadBytes, parseErr.Reason)
}
