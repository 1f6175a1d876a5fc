package events

import (
	"time"

	"google.golang.org/grpc/codes"
)

// GRPCClientStart is emitted before a gRPC client call. CallID correlates
// the start with its finish when calls of one request overlap.
type GRPCClientStart struct {
	CallID    string
	Service   string
	Method    string
	Target    string
	Streaming bool
}

// GRPCClientFinish is emitted after a gRPC client call completes. For
// server-streaming calls it is emitted when the stream ends.
type GRPCClientFinish struct {
	CallID    string
	Service   string
	Method    string
	Target    string
	Streaming bool
	Messages  int
	Code      codes.Code
	Err       error
	Duration  time.Duration
}
