// Package metrics holds the prometheus collectors for turns, model calls and
// tool invocations.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Tool outcomes.
const (
	OutcomeOK              = "ok"
	OutcomeValidationError = "validation_error"
	OutcomeErrorPayload    = "error_payload"
	OutcomeTimeout         = "timeout"
	OutcomeFailed          = "failed"
)

var (
	toolInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tessa_tool_invocations_total",
		Help: "Total number of tool invocations",
	}, []string{"tool", "outcome"})

	toolLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tessa_tool_latency_seconds",
		Help:    "Tool execution latency in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	}, []string{"tool"})

	modelInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tessa_model_invocations_total",
		Help: "Total number of worker/supervisor model invocations",
	}, []string{"role", "status"})

	modelLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tessa_model_latency_seconds",
		Help:    "Model invocation latency in seconds",
		Buckets: []float64{0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	}, []string{"role"})

	turns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tessa_turns_total",
		Help: "Total number of conversation turns",
	}, []string{"status"})

	turnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tessa_turn_duration_seconds",
		Help:    "Duration of a full turn in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})
)

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordToolInvocation records one tool execution with its outcome.
func RecordToolInvocation(tool, outcome string, d time.Duration) {
	toolInvocations.WithLabelValues(tool, outcome).Inc()
	toolLatency.WithLabelValues(tool).Observe(d.Seconds())
}

// RecordModelInvocation records one worker or supervisor call.
func RecordModelInvocation(role string, success bool, d time.Duration) {
	modelInvocations.WithLabelValues(role, status(success)).Inc()
	modelLatency.WithLabelValues(role).Observe(d.Seconds())
}

// RecordTurn records a completed (or failed) orchestration run.
func RecordTurn(success bool, d time.Duration) {
	turns.WithLabelValues(status(success)).Inc()
	turnDuration.Observe(d.Seconds())
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve serves /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("metrics server shutdown failed")
		}
	}()

	log.Debug().Str("addr", addr).Msg("serving metrics")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
