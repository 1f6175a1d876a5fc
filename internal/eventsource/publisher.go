package eventsource

import (
	"context"
	"errors"
	"io"
	"reflect"
	"sync"
	"sync/atomic"
)

// Publisher is a push-based producer with demand signalling. Subscribe must
// call OnSubscribe before any other Subscriber method.
type Publisher interface {
	Subscribe(Subscriber)
}

// Subscriber receives signals from a Publisher. OnNext is never called more
// times than the total requested demand; OnError and OnComplete are terminal.
type Subscriber interface {
	OnSubscribe(Subscription)
	OnNext(any)
	OnError(error)
	OnComplete()
}

// Subscription links a Subscriber to its Publisher.
type Subscription interface {
	Request(n int64)
	Cancel()
}

// PublisherOf marks a Publisher whose events are of type T. Providers use it
// to discover the event type of a publisher-returning function statically.
type PublisherOf[T any] struct{ Publisher }

// EventType returns the static event type. It is callable on the zero value.
func (PublisherOf[T]) EventType() reflect.Type { return reflect.TypeFor[T]() }

// Typed wraps p with a static event type.
func Typed[T any](p Publisher) PublisherOf[T] { return PublisherOf[T]{Publisher: p} }

// EventTyper is implemented by publishers that know their event type.
type EventTyper interface {
	EventType() reflect.Type
}

var errSubscribed = errors.New("eventsource: publisher subscribed twice")

type signal struct {
	value any
	err   error
}

// FromPublisher adapts p into a pull Source. Items are requested one at a
// time: a new item is requested only when Next is called. Signals carry no
// context, so values bound to the producer's context do not reach the
// consumer.
func FromPublisher(p Publisher) Source {
	return &publisherSource{
		pub:        p,
		subscribed: make(chan struct{}),
		signals:    make(chan signal, 1),
		closed:     make(chan struct{}),
	}
}

type publisherSource struct {
	pub        Publisher
	once       sync.Once
	subscribed chan struct{}
	sub        Subscription
	signals    chan signal
	closed     chan struct{}
	closeOnce  sync.Once

	mu   sync.Mutex
	done bool
	err  error
}

func (s *publisherSource) OnSubscribe(sub Subscription) {
	if s.sub != nil {
		sub.Cancel()
		return
	}
	s.sub = sub
	close(s.subscribed)
}

func (s *publisherSource) OnNext(v any)      { s.deliver(signal{value: v}) }
func (s *publisherSource) OnError(err error) { s.deliver(signal{err: err}) }
func (s *publisherSource) OnComplete()       { s.deliver(signal{err: io.EOF}) }

func (s *publisherSource) deliver(sig signal) {
	select {
	case s.signals <- sig:
	case <-s.closed:
	}
}

func (s *publisherSource) Next(ctx context.Context) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil, s.err
	}
	s.once.Do(func() { go s.pub.Subscribe(s) })
	select {
	case <-s.subscribed:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, io.EOF
	}
	s.sub.Request(1)
	select {
	case sig := <-s.signals:
		if s.isClosed() {
			return nil, io.EOF
		}
		if sig.err != nil {
			s.done = true
			s.err = sig.err
			return nil, sig.err
		}
		return sig.value, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, io.EOF
	}
}

func (s *publisherSource) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *publisherSource) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		select {
		case <-s.subscribed:
			s.sub.Cancel()
		default:
		}
	})
	return nil
}

// ToPublisher exposes src as a Publisher. Each subscriber drives src with
// its own demand; src is closed when the subscription is cancelled or the
// source terminates. A Source can only be consumed by one subscriber. src is
// pulled with a background context, not the subscriber's.
func ToPublisher(src Source) Publisher {
	return &sourcePublisher{src: src}
}

type sourcePublisher struct {
	src  Source
	used atomic.Bool
}

func (p *sourcePublisher) Subscribe(s Subscriber) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &sourceSubscription{cancel: cancel, wake: make(chan struct{}, 1)}
	s.OnSubscribe(sub)
	if !p.used.CompareAndSwap(false, true) {
		cancel()
		s.OnError(errSubscribed)
		return
	}
	go sub.run(ctx, p.src, s)
}

type sourceSubscription struct {
	demand atomic.Int64
	wake   chan struct{}
	cancel context.CancelFunc
}

func (sub *sourceSubscription) Request(n int64) {
	if n <= 0 {
		return
	}
	sub.demand.Add(n)
	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

func (sub *sourceSubscription) Cancel() { sub.cancel() }

func (sub *sourceSubscription) run(ctx context.Context, src Source, s Subscriber) {
	defer src.Close()
	for {
		for sub.demand.Load() == 0 {
			select {
			case <-sub.wake:
			case <-ctx.Done():
				return
			}
		}
		v, err := src.Next(ctx)
		switch {
		case errors.Is(err, io.EOF):
			s.OnComplete()
			return
		case ctx.Err() != nil:
			return
		case err != nil:
			s.OnError(err)
			return
		}
		sub.demand.Add(-1)
		s.OnNext(v)
	}
}
