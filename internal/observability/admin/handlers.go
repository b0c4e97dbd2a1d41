package admin

import (
	"encoding/json"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Vampouille/georchestra/internal/task"
	"github.com/Vampouille/georchestra/internal/task/engine"
	"github.com/Vampouille/georchestra/internal/task/scheduler"
)

// TaskSource is the read side of the task manager. *scheduler.Service
// implements it.
type TaskSource interface {
	GetTaskQueue() []task.Info
	Counts() scheduler.Counts
	Schedules() []scheduler.ScheduleInfo
}

// PoolSource is implemented by *engine.Service.
type PoolSource interface {
	Snapshot() engine.Snapshot
}

// TasksView is the /debug/tasks payload.
type TasksView struct {
	Time      time.Time                `json:"time"`
	Counts    scheduler.Counts         `json:"counts"`
	Queue     []task.Info              `json:"queue"`
	Schedules []scheduler.ScheduleInfo `json:"schedules,omitempty"`
	Pool      *engine.Snapshot         `json:"pool,omitempty"`
}

const defaultPprofPrefix = "/debug/pprof/"

func newMux(deps Deps, prefix, token string) http.Handler {
	mux := http.NewServeMux()
	handle := func(route string, h http.Handler) {
		mux.Handle(route, withAuth(token, deps.Metrics.Middleware(route, h)))
	}

	handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))

	if deps.Gatherer != nil {
		handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	if deps.Tasks != nil {
		handle("/debug/tasks", tasksHandler(deps.Tasks, deps.Pool))
	}

	base := strings.TrimSuffix(prefix, "/")
	handle(prefix, pprofIndexAt(prefix))
	handle(base+"/cmdline", http.HandlerFunc(hpprof.Cmdline))
	handle(base+"/profile", http.HandlerFunc(hpprof.Profile))
	handle(base+"/symbol", http.HandlerFunc(hpprof.Symbol))
	handle(base+"/trace", http.HandlerFunc(hpprof.Trace))
	if base != "" {
		mux.HandleFunc(base, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, prefix, http.StatusPermanentRedirect)
		})
	}
	return mux
}

func tasksHandler(tasks TaskSource, pool PoolSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		v := TasksView{
			Time:      time.Now(),
			Counts:    tasks.Counts(),
			Queue:     tasks.GetTaskQueue(),
			Schedules: tasks.Schedules(),
		}
		if pool != nil {
			snap := pool.Snapshot()
			v.Pool = &snap
		}
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		if r.URL.Query().Has("pretty") {
			enc.SetIndent("", "  ")
		}
		_ = enc.Encode(v)
	})
}

// withAuth accepts "Authorization: Bearer <token>" or "?token=<token>".
func withAuth(token string, h http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("token"); got != "" {
			if got == tok {
				h.ServeHTTP(w, r)
				return
			}
			unauthorized(w)
			return
		}
		const p = "Bearer "
		if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
			h.ServeHTTP(w, r)
			return
		}
		unauthorized(w)
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func normalizePrefix(prefix string) string {
	p := strings.TrimSpace(prefix)
	if p == "" {
		p = defaultPprofPrefix
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// pprofIndexAt serves pprof.Index under any prefix. Index only resolves
// named profiles below /debug/pprof/, so the path is rewritten first.
func pprofIndexAt(prefix string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r2 := r.Clone(r.Context())
		r2.URL.Path = defaultPprofPrefix + strings.TrimPrefix(r.URL.Path, prefix)
		hpprof.Index(w, r2)
	})
}
