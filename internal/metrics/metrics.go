// Package metrics exposes build counters and timings as Prometheus metrics.
//
// A nil *Recorder is valid and records nothing, so components accept one
// unconditionally.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache lookup outcomes.
const (
	ResultHit  = "hit"
	ResultMiss = "miss"
	ResultRace = "race"
)

// Recorder holds the collectors for one registry.
type Recorder struct {
	registry *prometheus.Registry

	cacheLookups   *prometheus.CounterVec
	modulesBuilt   prometheus.Counter
	missingModules prometheus.Counter
	bundlesWritten prometheus.Counter
	builds         *prometheus.CounterVec
	buildDuration  *prometheus.HistogramVec
}

// NewRecorder creates collectors and registers them on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commoner_cache_lookups_total",
				Help: "Content cache lookups by backend and outcome.",
			},
			[]string{"backend", "result"},
		),
		modulesBuilt: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "commoner_modules_built_total",
				Help: "Modules constructed by the module builder.",
			},
		),
		missingModules: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "commoner_missing_modules_total",
				Help: "Identifiers replaced by a failing stub because no provider resolved them.",
			},
		),
		bundlesWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "commoner_bundles_written_total",
				Help: "Non-empty bundles published to the output directory.",
			},
		),
		builds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commoner_builds_total",
				Help: "Build attempts by mode and status.",
			},
			[]string{"mode", "status"},
		),
		buildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "commoner_build_duration_seconds",
				Help:    "Wall time of a complete build.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
	}

	r.registry.MustRegister(
		r.cacheLookups,
		r.modulesBuilt,
		r.missingModules,
		r.bundlesWritten,
		r.builds,
		r.buildDuration,
	)
	return r
}

// CacheLookup counts one cache lookup outcome for a backend.
func (r *Recorder) CacheLookup(backend, result string) {
	if r == nil {
		return
	}
	r.cacheLookups.WithLabelValues(backend, result).Inc()
}

// ModuleBuilt counts a constructed module.
func (r *Recorder) ModuleBuilt() {
	if r == nil {
		return
	}
	r.modulesBuilt.Inc()
}

// MissingModule counts a stub substitution.
func (r *Recorder) MissingModule() {
	if r == nil {
		return
	}
	r.missingModules.Inc()
}

// BundleWritten counts a published bundle.
func (r *Recorder) BundleWritten() {
	if r == nil {
		return
	}
	r.bundlesWritten.Inc()
}

// ObserveBuild records a finished build attempt.
func (r *Recorder) ObserveBuild(mode string, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.builds.WithLabelValues(mode, status).Inc()
	r.buildDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (r *Recorder) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
