package ingest_test

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/prehisle/ustats/internal/ingest"
	"github.com/prehisle/ustats/pkg/logline"
	"github.com/prehisle/ustats/pkg/metrics"
)

func newTestPipeline(store *metrics.Store) *ingest.Pipeline {
	parser := logline.NewParser(logline.WithRouteResolver(func(path string) string {
		for _, prefix := range []string{"/server1", "/server2"} {
			if strings.HasPrefix(path, prefix) {
				return prefix
			}
		}
		return "/"
	}))
	return ingest.NewPipeline(parser, store, metrics.NewTracker(store))
}

func TestPipeline_MalformedLineBetweenGoodOnes(t *testing.T) {
	store := metrics.NewStore()
	pipeline := newTestPipeline(store)

	pipeline.HandleLine(`192.168.1.100 - - [30/Aug/2026:12:00:00 +0000] "GET /server1 HTTP/1.1" 200 128 "-" "-" "-" rt=0.020 uct="-" uht="-" urt="-"`)
	pipeline.HandleLine(`this line is garbage`)
	pipeline.HandleLine(`192.168.1.100 - - [30/Aug/2026:12:00:01 +0000] "GET /server1 HTTP/1.1" 200 128 "-" "-" "-" rt=0.030 uct="-" uht="-" urt="-"`)

	expected := `
# HELP nginx_user_requests_total Total number of requests per user.
# TYPE nginx_user_requests_total counter
nginx_user_requests_total{method="GET",route="/server1",status="200",user_ip="192.168.1.100"} 2
`
	require.NoError(t, testutil.GatherAndCompare(
		store.Gatherer(), strings.NewReader(expected), "nginx_user_requests_total"))

	expected = `
# HELP nginx_log_parse_errors_total Total number of access log lines rejected by the parser.
# TYPE nginx_log_parse_errors_total counter
nginx_log_parse_errors_total{reason="too_few_fields"} 1
`
	require.NoError(t, testutil.GatherAndCompare(
		store.Gatherer(), strings.NewReader(expected), "nginx_log_parse_errors_total"))
}

func TestPipeline_ClassificationFansOut(t *testing.T) {
	store := metrics.NewStore()
	pipeline := newTestPipeline(store)

	pipeline.HandleLine(`10.9.8.7 - - [30/Aug/2026:12:00:00 +0000] "POST /server2/upload HTTP/1.1" 429 0 "-" "-" "-" rt=0.001 uct="-" uht="-" urt="-"`)
	pipeline.HandleLine(`10.9.8.7 - - [30/Aug/2026:12:00:02 +0000] "GET /server2 HTTP/1.1" 504 0 "-" "-" "-" rt=600.5 uct="-" uht="-" urt="-"`)

	expected := `
# HELP nginx_rate_limit_hits_total Total number of rate limit hits (429 status codes) per user.
# TYPE nginx_rate_limit_hits_total counter
nginx_rate_limit_hits_total{http_method="POST",route="/server2",user_ip="10.9.8.7"} 1
# HELP nginx_timeout_events_total Total number of timeout events (504, 408, or slow responses) per user.
# TYPE nginx_timeout_events_total counter
nginx_timeout_events_total{http_method="GET",route="/server2",timeout_type="gateway_timeout",user_ip="10.9.8.7"} 1
# HELP nginx_timeout_events_global_total Total number of timeout events (504, 408, or slow responses), aggregated across users.
# TYPE nginx_timeout_events_global_total counter
nginx_timeout_events_global_total{http_method="GET",route="/server2",timeout_type="gateway_timeout"} 1
`
	require.NoError(t, testutil.GatherAndCompare(
		store.Gatherer(), strings.NewReader(expected),
		"nginx_rate_limit_hits_total",
		"nginx_timeout_events_total",
		"nginx_timeout_events_global_total"))
}
