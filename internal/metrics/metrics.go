// Package metrics exposes Prometheus collectors for the doctor server. Session
// metrics are fed from the event bus by a Collector; HTTP metrics come from
// the Instrument middleware.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/normanking/doctor/internal/bus"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doctor_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "doctor_http_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "endpoint"},
	)

	SessionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "doctor_sessions_total",
			Help: "Total number of sessions opened",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "doctor_active_sessions",
			Help: "Number of active sessions",
		},
	)

	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doctor_turns_total",
			Help: "Total number of answered turns",
		},
		[]string{"keyword", "source"},
	)

	SynthesisErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doctor_synthesis_errors_total",
			Help: "Templates that failed to assemble and were answered with the fallback",
		},
		[]string{"keyword"},
	)

	TurnLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "doctor_turn_latency_seconds",
			Help:    "Engine time per turn in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		},
	)
)

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Collector keeps the session metrics in step with bus events.
type Collector struct {
	bus *bus.Bus
	id  bus.SubscriptionID
}

// Attach subscribes a collector to every event on b. Delivery is inline, so no
// event is lost to a full buffer.
func Attach(b *bus.Bus) *Collector {
	c := &Collector{bus: b}
	c.id = b.SubscribeInline("", Observe)
	return c
}

// Detach stops collecting.
func (c *Collector) Detach() error {
	if c.id == "" {
		return nil
	}
	return c.bus.Unsubscribe(c.id)
}

// Observe applies one event to the collectors.
func Observe(e bus.Event) {
	switch e.Type {
	case bus.EventSessionOpened:
		SessionsTotal.Inc()
		ActiveSessions.Inc()
	case bus.EventSessionClosed:
		ActiveSessions.Dec()
	case bus.EventMessageOut:
		// turn 0 is the greeting
		if e.Turn == 0 {
			return
		}
		TurnsTotal.WithLabelValues(e.Keyword, e.Source).Inc()
		TurnLatency.Observe(e.Latency.Seconds())
	case bus.EventSynthesisError:
		SynthesisErrors.WithLabelValues(e.Keyword).Inc()
	}
}

// Instrument records request count and duration for endpoint. Do not wrap
// WebSocket handlers; the recorder does not support hijacking.
func Instrument(endpoint string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		RequestCount.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
		RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
