// Package otel turns bus events into OpenTelemetry spans. HTTP and
// operation spans are keyed by request id; gRPC and subscription spans by
// their own ids, so overlapping calls of one request do not collide.
package otel

import (
	"context"
	"sync"

	eventbus "github.com/hanpama/reflectgraph/internal/eventbus"
	events "github.com/hanpama/reflectgraph/internal/events"
	reqid "github.com/hanpama/reflectgraph/internal/reqid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const instrumentation = "github.com/hanpama/reflectgraph"

// Setup exports spans over OTLP/gRPC to endpoint and attaches subscribers to
// the global bus. With an empty endpoint nothing is configured. The returned
// function flushes and detaches.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	detach := Attach(tp)
	return func(ctx context.Context) error {
		detach()
		return tp.Shutdown(ctx)
	}, nil
}

// Attach subscribes span recording on the global bus using tp.
func Attach(tp trace.TracerProvider) (detach func()) {
	s := &subscriber{tracer: tp.Tracer(instrumentation)}
	return s.register()
}

type subscriber struct {
	tracer    trace.Tracer
	httpSpans sync.Map // rid -> trace.Span
	gqlSpans  sync.Map // rid -> trace.Span
	subSpans  sync.Map // subscription id -> trace.Span
	grpcSpans sync.Map // call id -> trace.Span
}

func (s *subscriber) parent(ctx context.Context, maps ...*sync.Map) context.Context {
	rid, _ := reqid.FromContext(ctx)
	for _, m := range maps {
		if v, ok := m.Load(rid); ok {
			return trace.ContextWithSpan(ctx, v.(trace.Span))
		}
	}
	return ctx
}

func end(m *sync.Map, key string, fn func(trace.Span)) {
	v, ok := m.LoadAndDelete(key)
	if !ok {
		return
	}
	span := v.(trace.Span)
	fn(span)
	span.End()
}

func (s *subscriber) register() func() {
	unsubs := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPStart) {
			rid, _ := reqid.FromContext(ctx)
			_, span := s.tracer.Start(ctx, "http.request", trace.WithSpanKind(trace.SpanKindServer))
			span.SetAttributes(
				semconv.HTTPMethodKey.String(e.Request.Method),
				attribute.String("http.target", e.Request.URL.Path),
				attribute.String("graphql.request_id", rid),
			)
			s.httpSpans.Store(rid, span)
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
			rid, _ := reqid.FromContext(ctx)
			end(&s.httpSpans, rid, func(span trace.Span) {
				span.SetAttributes(
					semconv.HTTPStatusCodeKey.Int(e.Status),
					attribute.String("graphql.http.mode", string(e.Mode)),
					attribute.Int("graphql.operation_count", e.Operations),
				)
			})
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.GraphQLStart) {
			rid, _ := reqid.FromContext(ctx)
			_, span := s.tracer.Start(s.parent(ctx, &s.httpSpans), "graphql.operation")
			span.SetAttributes(
				attribute.String("graphql.operation.name", e.OperationName),
				attribute.String("graphql.operation.type", e.OperationType),
			)
			s.gqlSpans.Store(rid, span)
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.GraphQLFinish) {
			rid, _ := reqid.FromContext(ctx)
			end(&s.gqlSpans, rid, func(span trace.Span) {
				span.SetAttributes(attribute.Int("graphql.error_count", len(e.Errors)))
				if len(e.Errors) > 0 {
					span.SetStatus(codes.Error, e.Errors[0].Error())
				}
			})
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.SubscriptionStart) {
			_, span := s.tracer.Start(s.parent(ctx, &s.gqlSpans, &s.httpSpans), "graphql.subscription")
			span.SetAttributes(
				attribute.String("graphql.operation.name", e.OperationName),
				attribute.String("graphql.subscription.field", e.Field),
			)
			s.subSpans.Store(e.ID, span)
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.SubscriptionEvent) {
			if v, ok := s.subSpans.Load(e.ID); ok {
				v.(trace.Span).AddEvent("graphql.subscription.event", trace.WithAttributes(
					attribute.Int("graphql.error_count", e.Errors),
				))
			}
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.SubscriptionFinish) {
			end(&s.subSpans, e.ID, func(span trace.Span) {
				span.SetAttributes(attribute.Int("graphql.subscription.events", e.Events))
				if e.Err != nil {
					span.RecordError(e.Err)
					span.SetStatus(codes.Error, e.Err.Error())
				}
			})
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.GRPCClientStart) {
			_, span := s.tracer.Start(s.parent(ctx, &s.gqlSpans, &s.httpSpans), "grpc.client",
				trace.WithSpanKind(trace.SpanKindClient))
			span.SetAttributes(
				semconv.RPCSystemKey.String("grpc"),
				semconv.RPCServiceKey.String(e.Service),
				semconv.RPCMethodKey.String(e.Method),
				attribute.String("net.peer.name", e.Target),
				attribute.Bool("rpc.streaming", e.Streaming),
			)
			s.grpcSpans.Store(e.CallID, span)
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.GRPCClientFinish) {
			end(&s.grpcSpans, e.CallID, func(span trace.Span) {
				span.SetAttributes(attribute.String("grpc.code", e.Code.String()))
				if e.Streaming {
					span.SetAttributes(attribute.Int("rpc.messages", e.Messages))
				}
				if e.Err != nil {
					span.RecordError(e.Err)
					span.SetStatus(codes.Error, e.Err.Error())
				}
			})
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
