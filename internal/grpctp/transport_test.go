package grpctp

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	eventbus "github.com/hanpama/reflectgraph/internal/eventbus"
	events "github.com/hanpama/reflectgraph/internal/events"
	"github.com/hanpama/reflectgraph/internal/prototest"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

func newTransport(t *testing.T, books *prototest.Books, opts ...Option) *Transport {
	t.Helper()
	dial := prototest.Serve(t, books)
	opts = append([]Option{
		WithProvider(NewStaticEndpoints(map[string][]string{"shop.Books": {"passthrough:///bufnet"}})),
		WithDialOptions(dial...),
	}, opts...)
	tp := New(opts...)
	t.Cleanup(func() { _ = tp.Close() })
	return tp
}

func request(name protoreflect.Name, set func(m *dynamicpb.Message, f protoreflect.FieldDescriptors)) *dynamicpb.Message {
	md := prototest.Method(name).Input()
	m := dynamicpb.NewMessage(md)
	if set != nil {
		set(m, md.Fields())
	}
	return m
}

func recordCalls(t *testing.T) *[]any {
	t.Helper()
	bus := eventbus.New()
	eventbus.Use(bus)
	t.Cleanup(func() { eventbus.Use(nil) })
	var got []any
	eventbus.On(bus, func(_ context.Context, e events.GRPCClientStart) { got = append(got, e) })
	eventbus.On(bus, func(_ context.Context, e events.GRPCClientFinish) { got = append(got, e) })
	return &got
}

func TestCallUnary(t *testing.T) {
	calls := recordCalls(t)
	tp := newTransport(t, prototest.NewBooks())

	resp, err := tp.Call(context.Background(), prototest.Method("GetBook"), request("GetBook", func(m *dynamicpb.Message, f protoreflect.FieldDescriptors) {
		m.Set(f.ByName("id"), protoreflect.ValueOfString("2"))
	}))
	require.NoError(t, err)
	require.Equal(t, "SPQR", resp.Get(resp.Descriptor().Fields().ByName("title")).String())

	require.Len(t, *calls, 2)
	start := (*calls)[0].(events.GRPCClientStart)
	finish := (*calls)[1].(events.GRPCClientFinish)
	require.NotEmpty(t, start.CallID)
	require.Equal(t, start.CallID, finish.CallID)
	require.Equal(t, "shop.Books", finish.Service)
	require.Equal(t, "GetBook", finish.Method)
	require.Equal(t, codes.OK, finish.Code)
}

func TestCallStatusError(t *testing.T) {
	tp := newTransport(t, prototest.NewBooks())
	_, err := tp.Call(context.Background(), prototest.Method("GetBook"), request("GetBook", func(m *dynamicpb.Message, f protoreflect.FieldDescriptors) {
		m.Set(f.ByName("id"), protoreflect.ValueOfString("404"))
	}))
	require.Equal(t, codes.NotFound, status.Code(err))
}

func TestCallRejectsStreamingMethod(t *testing.T) {
	tp := newTransport(t, prototest.NewBooks())
	_, err := tp.Call(context.Background(), prototest.Method("WatchBooks"), request("WatchBooks", nil))
	require.ErrorIs(t, err, ErrNotStreaming)
	_, err = tp.Stream(context.Background(), prototest.Method("GetBook"), request("GetBook", nil))
	require.ErrorIs(t, err, ErrNotStreaming)
}

func TestStream(t *testing.T) {
	calls := recordCalls(t)
	tp := newTransport(t, prototest.NewBooks())

	src, err := tp.Stream(context.Background(), prototest.Method("WatchBooks"), request("WatchBooks", func(m *dynamicpb.Message, f protoreflect.FieldDescriptors) {
		m.Set(f.ByName("count"), protoreflect.ValueOfInt32(3))
	}))
	require.NoError(t, err)
	defer src.Close()

	var titles []string
	for {
		v, err := src.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		msg := v.(protoreflect.Message)
		titles = append(titles, msg.Get(msg.Descriptor().Fields().ByName("title")).String())
	}
	require.Equal(t, []string{"Dune", "SPQR", "Dune"}, titles)

	finish := (*calls)[len(*calls)-1].(events.GRPCClientFinish)
	require.True(t, finish.Streaming)
	require.Equal(t, 3, finish.Messages)
	require.NoError(t, finish.Err)
}

func TestStreamCancel(t *testing.T) {
	tp := newTransport(t, prototest.NewBooks())
	src, err := tp.Stream(context.Background(), prototest.Method("WatchBooks"), request("WatchBooks", func(m *dynamicpb.Message, f protoreflect.FieldDescriptors) {
		m.Set(f.ByName("count"), protoreflect.ValueOfInt32(100))
	}))
	require.NoError(t, err)
	_, err = src.Next(context.Background())
	require.NoError(t, err)

	// Messages already buffered may still be delivered after cancellation.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var nextErr error
	for i := 0; i < 100 && nextErr == nil; i++ {
		_, nextErr = src.Next(ctx)
	}
	require.ErrorIs(t, nextErr, context.Canceled)
	require.NoError(t, src.Close())
}

func TestNoEndpoints(t *testing.T) {
	tp := New(WithProvider(NewStaticEndpoints(nil)))
	_, err := tp.Call(context.Background(), prototest.Method("GetBook"), request("GetBook", nil))
	require.ErrorIs(t, err, ErrNoEndpoints)
}

func TestClosed(t *testing.T) {
	tp := newTransport(t, prototest.NewBooks())
	require.NoError(t, tp.Close())
	_, err := tp.Call(context.Background(), prototest.Method("GetBook"), request("GetBook", nil))
	require.ErrorIs(t, err, ErrClosed)
}

func TestPoolReusesConnections(t *testing.T) {
	p := newConnPool("passthrough:///bufnet", 2, prototest.Serve(t, prototest.NewBooks()))
	a, err := p.get()
	require.NoError(t, err)
	b, err := p.get()
	require.NoError(t, err)
	require.NotSame(t, a, b)
	c, err := p.get()
	require.NoError(t, err)
	require.Contains(t, []any{a, b}, c)
	require.Len(t, p.conns, 2)

	require.NoError(t, p.close())
	_, err = p.get()
	require.ErrorIs(t, err, ErrClosed)
}

func TestProviderFunc(t *testing.T) {
	var p EndpointProvider = ProviderFunc(func(_ context.Context, service string) ([]string, error) {
		return []string{service + ":1"}, nil
	})
	got, err := p.Endpoints(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, []string{"x:1"}, got)
}

func TestOptions(t *testing.T) {
	o := buildOptions([]Option{WithMaxConnsPerEndpoint(0), WithRPCTimeout(-1)})
	require.Equal(t, 2, o.MaxConnsPerEndpoint, "non-positive values keep the default")
	require.Equal(t, 3*time.Second, o.RPCTimeout)
	require.Len(t, o.DialOptions, 2)

	o = buildOptions([]Option{WithMaxMessageBytes(1024)})
	require.Len(t, o.DialOptions, 3)
}

func TestMessageLimit(t *testing.T) {
	tp := newTransport(t, prototest.NewBooks(), WithMaxMessageBytes(8))
	_, err := tp.Call(context.Background(), prototest.Method("GetBook"), request("GetBook", func(m *dynamicpb.Message, f protoreflect.FieldDescriptors) {
		m.Set(f.ByName("id"), protoreflect.ValueOfString("2"))
	}))
	require.Equal(t, codes.ResourceExhausted, status.Code(err))
}
