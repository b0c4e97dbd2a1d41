// Package metrics exposes task execution counters and gauges to prometheus.
//
// A nil *Collector is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "taskmgr"

// Execution outcomes used as the "outcome" label.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

type Collector struct {
	backlog      prometheus.Gauge
	workersLive  prometheus.Gauge
	workersBusy  prometheus.Gauge
	collections  *prometheus.GaugeVec
	executions   *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	submitted    *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New builds a collector and registers it on reg. A nil reg uses the
// prometheus default registerer.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		backlog: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_backlog",
			Help:      "Tasks queued in the worker pool and not yet started.",
		}),
		workersLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_workers",
			Help:      "Live worker goroutines.",
		}),
		workersBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_workers_busy",
			Help:      "Workers currently executing a task.",
		}),
		collections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_tasks",
			Help:      "Tasks tracked by the manager per collection.",
		}, []string{"collection"}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Task executions by outcome and priority.",
		}, []string{"outcome", "priority"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Task execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"priority"}),
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submitted_total",
			Help:      "Tasks handed to the worker pool.",
		}, []string{"priority"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Admin HTTP requests.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	for _, col := range []prometheus.Collector{
		c.backlog, c.workersLive, c.workersBusy, c.collections,
		c.executions, c.taskDuration, c.submitted,
		c.httpRequests, c.httpDuration,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) SetPool(backlog, live, busy int) {
	if c == nil {
		return
	}
	c.backlog.Set(float64(backlog))
	c.workersLive.Set(float64(live))
	c.workersBusy.Set(float64(busy))
}

func (c *Collector) Submitted(priority string) {
	if c == nil {
		return
	}
	c.submitted.WithLabelValues(priority).Inc()
}

// Executed records one finished execution.
func (c *Collector) Executed(outcome, priority string, d time.Duration) {
	if c == nil {
		return
	}
	c.executions.WithLabelValues(outcome, priority).Inc()
	c.taskDuration.WithLabelValues(priority).Observe(d.Seconds())
}

// SetCollections publishes the manager collection sizes keyed by name.
func (c *Collector) SetCollections(sizes map[string]int) {
	if c == nil {
		return
	}
	for name, n := range sizes {
		c.collections.WithLabelValues(name).Set(float64(n))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latency per route.
func (c *Collector) Middleware(route string, next http.Handler) http.Handler {
	if c == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		c.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		c.httpDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
