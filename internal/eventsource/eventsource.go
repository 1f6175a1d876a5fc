// Package eventsource defines the single pull-based event source consumed by
// subscription execution, together with adapters from the concrete producer
// shapes a resolver may return.
//
// Adapters convert between representations only. They do not carry over any
// producer-side context values (request scoped values, metadata, deadlines
// attached to the producer's own context); the consumer's ctx passed to Next is
// the only context that flows downstream.
package eventsource

import (
	"context"
	"io"
	"iter"
	"reflect"
	"sync"
)

// Source is an ordered producer of events. Next blocks until an event is
// available, ctx is done, or the source ends. The end of the stream is
// reported as io.EOF. Close releases the upstream producer and may be called
// more than once.
type Source interface {
	Next(ctx context.Context) (any, error)
	Close() error
}

// From converts v into a Source. Recognized shapes are Source, Publisher,
// receive-capable channels, iter.Seq[T] and iter.Seq2[T, error]. It reports
// false for any other value.
func From(v any) (Source, bool) {
	switch s := v.(type) {
	case nil:
		return nil, false
	case Source:
		return s, true
	case Publisher:
		return FromPublisher(s), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan:
		if rv.IsNil() || rv.Type().ChanDir()&reflect.RecvDir == 0 {
			return nil, false
		}
		return newChanSource(rv), true
	case reflect.Func:
		if rv.IsNil() {
			return nil, false
		}
		if seq, ok := reflectSeq(rv); ok {
			return FromSeq2(seq), true
		}
	}
	return nil, false
}

// IsSource reports whether From would accept a value of type t.
func IsSource(t reflect.Type) bool {
	if t == nil {
		return false
	}
	if t.Implements(sourceType) || t.Implements(publisherType) {
		return true
	}
	switch t.Kind() {
	case reflect.Chan:
		return t.ChanDir()&reflect.RecvDir != 0
	case reflect.Func:
		_, _, ok := seqShape(t)
		return ok
	}
	return false
}

// ElemType returns the event type produced by a source of type t, when it can
// be determined statically.
func ElemType(t reflect.Type) (reflect.Type, bool) {
	switch t.Kind() {
	case reflect.Chan:
		return t.Elem(), true
	case reflect.Func:
		elem, _, ok := seqShape(t)
		return elem, ok
	}
	return nil, false
}

var (
	sourceType    = reflect.TypeFor[Source]()
	publisherType = reflect.TypeFor[Publisher]()
	errorType     = reflect.TypeFor[error]()
)

// Of returns a Source yielding values in order.
func Of(values ...any) Source {
	return FromSeq2(func(yield func(any, error) bool) {
		for _, v := range values {
			if !yield(v, nil) {
				return
			}
		}
	})
}

// FromChan adapts a receive channel. The source ends when ch is closed.
func FromChan[T any](ch <-chan T) Source {
	return newChanSource(reflect.ValueOf(ch))
}

func newChanSource(ch reflect.Value) *chanSource {
	return &chanSource{ch: ch, closed: make(chan struct{})}
}

type chanSource struct {
	ch     reflect.Value
	closed chan struct{}
	once   sync.Once
}

func (s *chanSource) Next(ctx context.Context) (any, error) {
	if s.isClosed() {
		return nil, io.EOF
	}
	chosen, v, ok := reflect.Select([]reflect.SelectCase{
		{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())},
		{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(s.closed)},
		{Dir: reflect.SelectRecv, Chan: s.ch},
	})
	switch {
	case chosen == 0:
		return nil, ctx.Err()
	case chosen == 1, !ok, s.isClosed():
		return nil, io.EOF
	}
	return v.Interface(), nil
}

func (s *chanSource) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Close stops reading and wakes a pending Next. The channel itself belongs to
// its producer.
func (s *chanSource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// FromSeq adapts a cooperative iterator. Iteration is driven by Next; Close
// stops the iterator.
func FromSeq[T any](seq iter.Seq[T]) Source {
	return FromSeq2(func(yield func(any, error) bool) {
		for v := range seq {
			if !yield(v, nil) {
				return
			}
		}
	})
}

// FromSeq2 adapts an iterator of value/error pairs. A non-nil error ends the
// source with that error.
//
// The iterator advances on its own goroutine, one step per Next call, so a
// pending Next can be abandoned by ctx or Close. A step abandoned by ctx is
// kept and returned by the following Next.
func FromSeq2[T any](seq iter.Seq2[T, error]) Source {
	next, stop := iter.Pull2(seq)
	return &seqSource{
		next: func() (any, error, bool) {
			v, err, ok := next()
			return v, err, ok
		},
		stop:    stop,
		results: make(chan seqResult, 1),
		closed:  make(chan struct{}),
	}
}

type seqResult struct {
	value any
	err   error
	ok    bool
}

type seqSource struct {
	next    func() (any, error, bool)
	stop    func()
	results chan seqResult
	closed  chan struct{}
	once    sync.Once

	mu      sync.Mutex
	pending bool // a step was started and its result is not consumed yet
	running bool // next is executing
	done    bool
	err     error
}

func (s *seqSource) Next(ctx context.Context) (any, error) {
	s.mu.Lock()
	if s.done {
		err := s.err
		s.mu.Unlock()
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if !s.pending {
		s.pending = true
		s.running = true
		go s.step()
	}
	s.mu.Unlock()

	select {
	case r := <-s.results:
		return s.consume(r)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, io.EOF
	}
}

func (s *seqSource) consume(r seqResult) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = false
	switch {
	case s.done:
		return nil, s.err
	case !r.ok:
		s.done, s.err = true, io.EOF
		return nil, io.EOF
	case r.err != nil:
		s.done, s.err = true, r.err
		s.stop()
		return nil, r.err
	}
	return r.value, nil
}

// step advances the iterator once. When the source was closed meanwhile the
// result is dropped and the iterator stopped here, since stop must not run
// while next does.
func (s *seqSource) step() {
	v, err, ok := s.next()
	s.mu.Lock()
	s.running = false
	closed := s.done
	s.mu.Unlock()
	if closed {
		s.stop()
		return
	}
	s.results <- seqResult{value: v, err: err, ok: ok}
}

// Close stops the iterator and wakes a pending Next. It does not wait for a
// step in progress.
func (s *seqSource) Close() error {
	s.mu.Lock()
	wasDone := s.done
	if !wasDone {
		s.done, s.err = true, io.EOF
	}
	stopNow := !wasDone && !s.running
	s.mu.Unlock()

	s.once.Do(func() { close(s.closed) })
	if stopNow {
		s.stop()
	}
	return nil
}

// seqShape matches func(yield func(T) bool) and func(yield func(T, error) bool).
func seqShape(t reflect.Type) (elem reflect.Type, withErr bool, ok bool) {
	if t.Kind() != reflect.Func || t.NumIn() != 1 || t.NumOut() != 0 {
		return nil, false, false
	}
	y := t.In(0)
	if y.Kind() != reflect.Func || y.NumOut() != 1 || y.Out(0).Kind() != reflect.Bool {
		return nil, false, false
	}
	switch y.NumIn() {
	case 1:
		return y.In(0), false, true
	case 2:
		if y.In(1) != errorType {
			return nil, false, false
		}
		return y.In(0), true, true
	}
	return nil, false, false
}

// reflectSeq wraps an iterator func of any element type as iter.Seq2[any, error].
func reflectSeq(fn reflect.Value) (iter.Seq2[any, error], bool) {
	_, withErr, ok := seqShape(fn.Type())
	if !ok {
		return nil, false
	}
	yieldType := fn.Type().In(0)
	return func(yield func(any, error) bool) {
		y := reflect.MakeFunc(yieldType, func(args []reflect.Value) []reflect.Value {
			var err error
			if withErr && !args[1].IsNil() {
				err = args[1].Interface().(error)
			}
			return []reflect.Value{reflect.ValueOf(yield(args[0].Interface(), err))}
		})
		fn.Call([]reflect.Value{y})
	}, true
}
