package grpctp

import "github.com/cockroachdb/errors"

var (
	// ErrNoEndpoints indicates the provider returned no endpoints for a service.
	ErrNoEndpoints = errors.New("grpctp: no endpoints available")
	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("grpctp: closed")
	// ErrNotStreaming is returned by Stream for methods that do not stream
	// responses, and by Call for methods that do.
	ErrNotStreaming = errors.New("grpctp: method shape does not match call")
)
