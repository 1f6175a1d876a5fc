package eventsource

import (
	"context"
	"sync"

	"google.golang.org/grpc"
)

// FromGRPCStream adapts the receive side of a server-streaming call. newMsg
// allocates the message each RecvMsg decodes into. cancel must cancel the
// context the stream was opened with; Close and cancellation of the ctx given
// to Next both call it. The stream's own metadata (headers, trailers) is not
// forwarded.
func FromGRPCStream(stream grpc.ClientStream, newMsg func() any, cancel context.CancelFunc) Source {
	return &grpcSource{stream: stream, newMsg: newMsg, cancel: cancel}
}

type grpcSource struct {
	stream grpc.ClientStream
	newMsg func() any
	cancel context.CancelFunc
	once   sync.Once
}

func (s *grpcSource) Next(ctx context.Context) (any, error) {
	stop := context.AfterFunc(ctx, s.cancel)
	defer stop()
	msg := s.newMsg()
	if err := s.stream.RecvMsg(msg); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return msg, nil
}

func (s *grpcSource) Close() error {
	s.once.Do(s.cancel)
	return nil
}
