// Package metrics exposes pipeline counters over Prometheus. The endpoint is
// optional; a nil *Metrics is safe to call so components never guard their
// instrumentation.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's Prometheus collectors on a private registry,
// so parallel tests never collide on duplicate registration.
type Metrics struct {
	registry *prometheus.Registry

	tasksMerged      prometheus.Counter
	tasksFailed      *prometheus.CounterVec
	mergeConflicts   prometheus.Counter
	agentInvocations *prometheus.CounterVec
	reviews          *prometheus.CounterVec
	taskDuration     prometheus.Histogram
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		tasksMerged: factory.NewCounter(prometheus.CounterOpts{
			Name: "kugutsu_tasks_merged_total",
			Help: "Tasks successfully merged into the base branch.",
		}),
		tasksFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kugutsu_tasks_failed_total",
			Help: "Tasks that failed terminally, by pipeline phase.",
		}, []string{"phase"}),
		mergeConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "kugutsu_merge_conflicts_total",
			Help: "Merge attempts that hit a conflict and forked back to development.",
		}),
		agentInvocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kugutsu_agent_invocations_total",
			Help: "Agent executor invocations, by role.",
		}, []string{"role"}),
		reviews: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kugutsu_reviews_total",
			Help: "Completed reviews, by verdict.",
		}, []string{"verdict"}),
		taskDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "kugutsu_task_duration_seconds",
			Help:    "Wall-clock time from admission to merged.",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		}),
	}
}

// TaskMerged records a successful merge and the task's total duration.
func (m *Metrics) TaskMerged(duration time.Duration) {
	if m == nil {
		return
	}
	m.tasksMerged.Inc()
	m.taskDuration.Observe(duration.Seconds())
}

// TaskFailed records a terminal failure in the given phase.
func (m *Metrics) TaskFailed(phase string) {
	if m == nil {
		return
	}
	m.tasksFailed.WithLabelValues(phase).Inc()
}

// MergeConflict records a conflict fork-back.
func (m *Metrics) MergeConflict() {
	if m == nil {
		return
	}
	m.mergeConflicts.Inc()
}

// AgentInvocation records one executor call for the given role.
func (m *Metrics) AgentInvocation(role string) {
	if m == nil {
		return
	}
	m.agentInvocations.WithLabelValues(role).Inc()
}

// ReviewCompleted records a review by verdict.
func (m *Metrics) ReviewCompleted(verdict string) {
	if m == nil {
		return
	}
	m.reviews.WithLabelValues(verdict).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Serve exposes /metrics on addr until ctx is cancelled. Returns the
// http.Server error unless it is the normal shutdown result.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	if m == nil || addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
