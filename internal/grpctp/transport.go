// Package grpctp calls gRPC methods described only by their descriptors.
// Requests and responses are dynamicpb messages.
package grpctp

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	eventbus "github.com/hanpama/reflectgraph/internal/eventbus"
	events "github.com/hanpama/reflectgraph/internal/events"
	"github.com/hanpama/reflectgraph/internal/eventsource"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Transport is a gRPC client with per-endpoint connection pooling and
// deadline propagation. Endpoints come from an EndpointProvider.
type Transport struct {
	opts *Options

	mu     sync.RWMutex
	pools  map[string]*connPool // key: endpoint
	closed atomic.Bool
}

func New(opts ...Option) *Transport {
	return &Transport{
		opts:  buildOptions(opts),
		pools: make(map[string]*connPool),
	}
}

func fullMethod(m protoreflect.MethodDescriptor) string {
	return fmt.Sprintf("/%s/%s", m.Parent().FullName(), m.Name())
}

// Call invokes a unary method. A default timeout applies when ctx has no
// deadline.
func (t *Transport) Call(ctx context.Context, method protoreflect.MethodDescriptor, request protoreflect.Message) (protoreflect.Message, error) {
	if method.IsStreamingClient() || method.IsStreamingServer() {
		return nil, errors.Wrapf(ErrNotStreaming, "%s is streaming", method.FullName())
	}
	if _, ok := ctx.Deadline(); !ok && t.opts.RPCTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.RPCTimeout)
		defer cancel()
	}
	service := string(method.Parent().FullName())
	endpoint, cc, err := t.conn(ctx, service)
	if err != nil {
		return nil, err
	}

	call := events.GRPCClientStart{CallID: uuid.NewString(), Service: service, Method: string(method.Name()), Target: endpoint}
	start := time.Now()
	eventbus.Publish(ctx, call)
	resp := dynamicpb.NewMessage(method.Output())
	err = cc.Invoke(ctx, fullMethod(method), request.Interface(), resp)
	eventbus.Publish(ctx, events.GRPCClientFinish{
		CallID:   call.CallID,
		Service:  service,
		Method:   call.Method,
		Target:   endpoint,
		Code:     status.Code(err),
		Err:      err,
		Duration: time.Since(start),
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

var serverStream = &grpc.StreamDesc{ServerStreams: true}

// Stream opens a server-streaming call and returns its responses as an event
// source. The call lives until the source is closed, ctx is cancelled or the
// server ends the stream.
func (t *Transport) Stream(ctx context.Context, method protoreflect.MethodDescriptor, request protoreflect.Message) (eventsource.Source, error) {
	if method.IsStreamingClient() || !method.IsStreamingServer() {
		return nil, errors.Wrapf(ErrNotStreaming, "%s is not server-streaming", method.FullName())
	}
	service := string(method.Parent().FullName())
	endpoint, cc, err := t.conn(ctx, service)
	if err != nil {
		return nil, err
	}

	call := events.GRPCClientStart{
		CallID: uuid.NewString(), Service: service, Method: string(method.Name()), Target: endpoint, Streaming: true,
	}
	eventbus.Publish(ctx, call)
	sctx, cancel := context.WithCancel(ctx)
	obs := &observedSource{ctx: ctx, call: call, start: time.Now()}

	stream, err := cc.NewStream(sctx, serverStream, fullMethod(method))
	if err == nil {
		err = stream.SendMsg(request.Interface())
	}
	if err == nil {
		err = stream.CloseSend()
	}
	if err != nil {
		cancel()
		if stream != nil && errors.Is(err, io.EOF) {
			// SendMsg reports io.EOF when the server already ended the
			// call; the real status is returned by RecvMsg.
			err = stream.RecvMsg(dynamicpb.NewMessage(method.Output()))
		}
		obs.finish(err)
		return nil, err
	}

	output := method.Output()
	obs.Source = eventsource.FromGRPCStream(stream, func() any { return dynamicpb.NewMessage(output) }, cancel)
	return obs, nil
}

// observedSource publishes the finish event of a streaming call once.
type observedSource struct {
	eventsource.Source
	ctx   context.Context
	call  events.GRPCClientStart
	start time.Time
	count atomic.Int64
	once  sync.Once
}

func (s *observedSource) Next(ctx context.Context) (any, error) {
	v, err := s.Source.Next(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			s.finish(nil)
		} else {
			s.finish(err)
		}
		return nil, err
	}
	s.count.Add(1)
	return v, nil
}

func (s *observedSource) Close() error {
	s.finish(nil)
	return s.Source.Close()
}

func (s *observedSource) finish(err error) {
	s.once.Do(func() {
		eventbus.Publish(s.ctx, events.GRPCClientFinish{
			CallID:    s.call.CallID,
			Service:   s.call.Service,
			Method:    s.call.Method,
			Target:    s.call.Target,
			Streaming: true,
			Messages:  int(s.count.Load()),
			Code:      status.Code(err),
			Err:       err,
			Duration:  time.Since(s.start),
		})
	})
}

func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	var errs []error
	for _, p := range t.pools {
		if err := p.close(); err != nil {
			errs = append(errs, err)
		}
	}
	t.pools = map[string]*connPool{}
	return errors.Join(errs...)
}

// conn picks an endpoint for service at random and returns a pooled
// connection to it.
func (t *Transport) conn(ctx context.Context, service string) (string, *grpc.ClientConn, error) {
	if t.closed.Load() {
		return "", nil, ErrClosed
	}
	if t.opts.Provider == nil {
		return "", nil, errors.New("grpctp: provider not configured")
	}
	endpoints, err := t.opts.Provider.Endpoints(ctx, service)
	if err != nil {
		return "", nil, errors.Wrapf(err, "resolving %s", service)
	}
	if len(endpoints) == 0 {
		return "", nil, errors.Wrapf(ErrNoEndpoints, "resolving %s", service)
	}
	endpoint := endpoints[rand.IntN(len(endpoints))]

	t.mu.RLock()
	pool := t.pools[endpoint]
	t.mu.RUnlock()
	if pool == nil {
		t.mu.Lock()
		if t.closed.Load() {
			t.mu.Unlock()
			return "", nil, ErrClosed
		}
		pool = t.pools[endpoint]
		if pool == nil {
			pool = newConnPool(endpoint, t.opts.MaxConnsPerEndpoint, t.opts.DialOptions)
			t.pools[endpoint] = pool
		}
		t.mu.Unlock()
	}
	cc, err := pool.get()
	return endpoint, cc, err
}
