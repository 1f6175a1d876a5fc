// Package metrics records Prometheus metrics from bus events.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	eventbus "github.com/hanpama/reflectgraph/internal/eventbus"
	events "github.com/hanpama/reflectgraph/internal/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reflectgraph"

// Metrics holds the collectors. Build it with New and feed it with Attach.
type Metrics struct {
	HTTPRequests        *prometheus.CounterVec
	OperationDuration   *prometheus.HistogramVec
	OperationErrors     *prometheus.CounterVec
	ActiveSubscriptions prometheus.Gauge
	SubscriptionEvents  *prometheus.CounterVec
	GRPCCalls           *prometheus.CounterVec
	GRPCDuration        *prometheus.HistogramVec
	SchemaBuilds        *prometheus.CounterVec
	SchemaTypes         prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by method, status code and serving mode.",
		}, []string{"method", "code", "mode"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "graphql", Name: "operation_duration_seconds",
			Help:    "GraphQL operation execution time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		OperationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "graphql", Name: "operation_errors_total",
			Help: "GraphQL errors returned by operation type.",
		}, []string{"type"}),
		ActiveSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "graphql", Name: "active_subscriptions",
			Help: "Subscriptions currently streaming.",
		}),
		SubscriptionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "graphql", Name: "subscription_events_total",
			Help: "Events delivered by subscription field.",
		}, []string{"field"}),
		GRPCCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "grpc", Name: "client_calls_total",
			Help: "Backend gRPC calls by method and status code.",
		}, []string{"service", "method", "code"}),
		GRPCDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "grpc", Name: "client_call_duration_seconds",
			Help:    "Backend gRPC call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"service", "method"}),
		SchemaBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "schema", Name: "builds_total",
			Help: "Schema generation attempts by result.",
		}, []string{"result"}),
		SchemaTypes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "schema", Name: "types",
			Help: "Types in the most recently built schema.",
		}),
	}
	reg.MustRegister(
		m.HTTPRequests, m.OperationDuration, m.OperationErrors,
		m.ActiveSubscriptions, m.SubscriptionEvents,
		m.GRPCCalls, m.GRPCDuration,
		m.SchemaBuilds, m.SchemaTypes,
	)
	return m
}

// Attach subscribes m to the global bus.
func (m *Metrics) Attach() (detach func()) {
	unsubs := []func(){
		eventbus.Subscribe(func(_ context.Context, e events.HTTPFinish) {
			m.HTTPRequests.WithLabelValues(e.Request.Method, strconv.Itoa(e.Status), string(e.Mode)).Inc()
		}),
		eventbus.Subscribe(func(_ context.Context, e events.GraphQLFinish) {
			op := opType(e.OperationType)
			m.OperationDuration.WithLabelValues(op).Observe(e.Duration.Seconds())
			if len(e.Errors) > 0 {
				m.OperationErrors.WithLabelValues(op).Add(float64(len(e.Errors)))
			}
		}),
		eventbus.Subscribe(func(context.Context, events.SubscriptionStart) {
			m.ActiveSubscriptions.Inc()
		}),
		eventbus.Subscribe(func(_ context.Context, e events.SubscriptionEvent) {
			m.SubscriptionEvents.WithLabelValues(e.Field).Inc()
			if e.Errors > 0 {
				m.OperationErrors.WithLabelValues("subscription").Add(float64(e.Errors))
			}
		}),
		eventbus.Subscribe(func(context.Context, events.SubscriptionFinish) {
			m.ActiveSubscriptions.Dec()
		}),
		eventbus.Subscribe(func(_ context.Context, e events.GRPCClientFinish) {
			m.GRPCCalls.WithLabelValues(e.Service, e.Method, e.Code.String()).Inc()
			m.GRPCDuration.WithLabelValues(e.Service, e.Method).Observe(e.Duration.Seconds())
		}),
		eventbus.Subscribe(func(_ context.Context, e events.SchemaBuilt) {
			if e.Err != nil {
				m.SchemaBuilds.WithLabelValues("error").Inc()
				return
			}
			m.SchemaBuilds.WithLabelValues("ok").Inc()
			m.SchemaTypes.Set(float64(e.Types))
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func opType(t string) string {
	if t == "" {
		return "unknown"
	}
	return t
}
