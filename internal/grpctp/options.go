package grpctp

import (
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"
)

// Options configures a Transport. The zero value of a field keeps its
// default: two connections per endpoint, a 3s unary timeout, gRPC's
// default message limits, and insecure credentials with default backoff.
// Streaming calls are bounded only by the caller's context.
type Options struct {
	Provider EndpointProvider

	MaxConnsPerEndpoint int
	// RPCTimeout applies to unary calls whose context has no deadline.
	RPCTimeout          time.Duration
	// MaxMessageBytes caps both received and sent messages.
	MaxMessageBytes     int

	DialOptions []grpc.DialOption
}

type Option func(*Options)

func WithProvider(p EndpointProvider) Option { return func(o *Options) { o.Provider = p } }

func WithMaxConnsPerEndpoint(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxConnsPerEndpoint = n
		}
	}
}

func WithRPCTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.RPCTimeout = d
		}
	}
}

func WithMaxMessageBytes(n int) Option { return func(o *Options) { o.MaxMessageBytes = n } }

// WithDialOptions replaces the default credentials and backoff.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *Options) { o.DialOptions = append(o.DialOptions, opts...) }
}

func buildOptions(opts []Option) *Options {
	o := &Options{MaxConnsPerEndpoint: 2, RPCTimeout: 3 * time.Second}
	for _, f := range opts {
		f(o)
	}
	if len(o.DialOptions) == 0 {
		o.DialOptions = []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig}),
		}
	}
	if o.MaxMessageBytes > 0 {
		o.DialOptions = append(o.DialOptions, grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(o.MaxMessageBytes),
			grpc.MaxCallSendMsgSize(o.MaxMessageBytes),
		))
	}
	return o
}
