package admin

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vampouille/georchestra/internal/observability/metrics"
	"github.com/Vampouille/georchestra/internal/task"
	"github.com/Vampouille/georchestra/internal/task/engine"
	"github.com/Vampouille/georchestra/internal/task/scheduler"
	logx "github.com/Vampouille/georchestra/pkg/logx"
)

type fakeTasks struct{}

func (fakeTasks) GetTaskQueue() []task.Info {
	return []task.Info{{UUID: "u-1", Name: "extract", Priority: task.PriorityHigh, State: task.StateWaiting}}
}
func (fakeTasks) Counts() scheduler.Counts            { return scheduler.Counts{Ready: 1} }
func (fakeTasks) Schedules() []scheduler.ScheduleInfo { return nil }

type fakePool struct{}

func (fakePool) Snapshot() engine.Snapshot { return engine.Snapshot{Running: true, MaxWorkers: 2} }

func testDeps(t *testing.T) Deps {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	return Deps{Gatherer: reg, Metrics: m, Tasks: fakeTasks{}, Pool: fakePool{}}
}

func get(t *testing.T, h http.Handler, target string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTasksEndpoint(t *testing.T) {
	t.Parallel()
	h := newMux(testDeps(t), defaultPprofPrefix, "")

	rec := get(t, h, "/debug/tasks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var v TasksView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, 1, v.Counts.Ready)
	require.Len(t, v.Queue, 1)
	assert.Equal(t, "u-1", v.Queue[0].UUID)
	assert.Equal(t, task.PriorityHigh, v.Queue[0].Priority)
	require.NotNil(t, v.Pool)
	assert.Equal(t, 2, v.Pool.MaxWorkers)

	req := httptest.NewRequest(http.MethodPost, "/debug/tasks", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	t.Parallel()
	h := newMux(testDeps(t), defaultPprofPrefix, "")

	require.Equal(t, http.StatusOK, get(t, h, "/healthz", nil).Code)
	rec := get(t, h, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `taskmgr_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
}

func TestTokenGuard(t *testing.T) {
	t.Parallel()
	h := newMux(testDeps(t), defaultPprofPrefix, "s3cret")

	tests := []struct {
		name   string
		target string
		hdr    map[string]string
		want   int
	}{
		{"missing", "/healthz", nil, http.StatusUnauthorized},
		{"wrong bearer", "/healthz", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"bearer", "/healthz", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
		{"query", "/debug/tasks?token=s3cret", nil, http.StatusOK},
		{"wrong query", "/debug/tasks?token=x", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := get(t, h, tc.target, tc.hdr)
			assert.Equal(t, tc.want, rec.Code)
			if tc.want == http.StatusUnauthorized {
				assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestPprofUnderCustomPrefix(t *testing.T) {
	t.Parallel()
	h := newMux(Deps{}, normalizePrefix("ops/pprof"), "")

	rec := get(t, h, "/ops/pprof/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "goroutine")

	rec = get(t, h, "/ops/pprof", nil)
	assert.Equal(t, http.StatusPermanentRedirect, rec.Code)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/metrics", nil).Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/debug/tasks", nil).Code)
}

func TestNormalizePrefix(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "/debug/pprof/", normalizePrefix(""))
	assert.Equal(t, "/x/", normalizePrefix("x"))
	assert.Equal(t, "/x/", normalizePrefix("/x/"))
}

func TestInsecureBindRefused(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, Deps{}, logx.Nop())
	err := s.serveOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure bind")
}

func TestStartReconfigureStop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, testDeps(t), logx.Nop())
	s.Start(ctx)
	defer s.Stop(ctx)

	addr := waitAddr(t, s)
	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", strings.TrimSpace(string(body)))

	s.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0", Token: "t"})
	addr = waitAddr(t, s)
	resp, err = http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	s.Reconfigure(stopCtx, Config{Enabled: false})
	assert.Nil(t, s.Supervisor())
	assert.Empty(t, s.Addr())
}

func waitAddr(t *testing.T, s *Service) string {
	t.Helper()
	var addr string
	require.Eventually(t, func() bool {
		addr = s.Addr()
		return addr != ""
	}, 3*time.Second, 10*time.Millisecond)
	return addr
}
