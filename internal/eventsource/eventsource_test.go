package eventsource

import (
	"context"
	"errors"
	"io"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, src Source) ([]any, error) {
	t.Helper()
	var out []any
	for {
		v, err := src.Next(context.Background())
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
}

func TestFromRecognizedShapes(t *testing.T) {
	ch := make(chan int, 3)
	ch <- 1
	ch <- 2
	ch <- 3
	close(ch)

	var seq iter.Seq[string] = func(yield func(string) bool) {
		for _, s := range []string{"a", "b"} {
			if !yield(s) {
				return
			}
		}
	}

	cases := []struct {
		name string
		in   any
		want []any
	}{
		{"source", Of(1, 2), []any{1, 2}},
		{"channel", (<-chan int)(ch), []any{1, 2, 3}},
		{"seq", seq, []any{"a", "b"}},
		{"publisher", ToPublisher(Of("x", "y")), []any{"x", "y"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src, ok := From(tc.in)
			require.True(t, ok)
			got, err := drain(t, src)
			require.ErrorIs(t, err, io.EOF)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestFromRejectsOtherValues(t *testing.T) {
	for _, v := range []any{nil, 1, "events", []int{1}, func() {}, make(chan<- int)} {
		_, ok := From(v)
		require.False(t, ok, "%T", v)
	}
}

func TestSeq2ErrorTerminates(t *testing.T) {
	boom := errors.New("boom")
	seq := func(yield func(int, error) bool) {
		if !yield(1, nil) {
			return
		}
		if !yield(0, boom) {
			return
		}
		t.Error("iterator resumed after error")
	}
	src, ok := From(seq)
	require.True(t, ok)

	got, err := drain(t, src)
	require.ErrorIs(t, err, boom)
	require.Equal(t, []any{1}, got)

	_, err = src.Next(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestCloseStopsIterator(t *testing.T) {
	produced := 0
	src := FromSeq[int](func(yield func(int) bool) {
		for i := 0; ; i++ {
			produced++
			if !yield(i) {
				return
			}
		}
	})
	v, err := src.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, v)
	require.NoError(t, src.Close())

	_, err = src.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, 1, produced)
}

func TestChannelSourceHonorsContext(t *testing.T) {
	src := FromChan[int](make(chan int))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := src.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

type countingPublisher struct {
	requested chan int64
	cancelled chan struct{}
}

func (p *countingPublisher) Subscribe(s Subscriber) {
	s.OnSubscribe(&countingSubscription{p: p, s: s})
}

type countingSubscription struct {
	p    *countingPublisher
	s    Subscriber
	sent int
}

func (c *countingSubscription) Request(n int64) {
	c.p.requested <- n
	for i := int64(0); i < n; i++ {
		c.sent++
		c.s.OnNext(c.sent)
	}
}

func (c *countingSubscription) Cancel() { close(c.p.cancelled) }

func TestFromPublisherRequestsOneAtATime(t *testing.T) {
	pub := &countingPublisher{requested: make(chan int64, 8), cancelled: make(chan struct{})}
	src := FromPublisher(pub)

	for want := 1; want <= 2; want++ {
		v, err := src.Next(context.Background())
		require.NoError(t, err)
		require.Equal(t, want, v)
		require.Equal(t, int64(1), <-pub.requested)
	}
	require.Len(t, pub.requested, 0)

	require.NoError(t, src.Close())
	select {
	case <-pub.cancelled:
	case <-time.After(time.Second):
		t.Fatal("subscription was not cancelled")
	}
}

type recordingSubscriber struct {
	sub    Subscription
	values chan any
	done   chan error
}

func (r *recordingSubscriber) OnSubscribe(s Subscription) { r.sub = s }
func (r *recordingSubscriber) OnNext(v any)               { r.values <- v }
func (r *recordingSubscriber) OnError(err error)          { r.done <- err }
func (r *recordingSubscriber) OnComplete()                { r.done <- nil }

func TestToPublisherRespectsDemand(t *testing.T) {
	pub := ToPublisher(Of(1, 2, 3))
	rec := &recordingSubscriber{values: make(chan any, 3), done: make(chan error, 1)}
	pub.Subscribe(rec)

	rec.sub.Request(1)
	require.Equal(t, 1, <-rec.values)
	select {
	case v := <-rec.values:
		t.Fatalf("unexpected value %v without demand", v)
	case <-time.After(20 * time.Millisecond):
	}

	rec.sub.Request(5)
	require.Equal(t, 2, <-rec.values)
	require.Equal(t, 3, <-rec.values)
	require.NoError(t, <-rec.done)
}

func TestToPublisherSingleSubscriber(t *testing.T) {
	pub := ToPublisher(Of(1))
	first := &recordingSubscriber{values: make(chan any, 1), done: make(chan error, 1)}
	second := &recordingSubscriber{values: make(chan any, 1), done: make(chan error, 1)}
	pub.Subscribe(first)
	pub.Subscribe(second)
	require.ErrorIs(t, <-second.done, errSubscribed)
	first.sub.Cancel()
}

type silentPublisher struct{ cancelled chan struct{} }

func (p *silentPublisher) Subscribe(s Subscriber) { s.OnSubscribe(p) }
func (p *silentPublisher) Request(int64)          {}
func (p *silentPublisher) Cancel()                { close(p.cancelled) }

// blockedSeq returns an iterator that waits on gate before yielding v, and
// reports when it starts and when it returns.
func blockedSeq(gate <-chan struct{}, v int) (seq iter.Seq[int], started, stopped chan struct{}) {
	started = make(chan struct{})
	stopped = make(chan struct{})
	return func(yield func(int) bool) {
		defer close(stopped)
		close(started)
		<-gate
		yield(v)
	}, started, stopped
}

func nextAsync(ctx context.Context, src Source) <-chan error {
	out := make(chan error, 1)
	go func() {
		_, err := src.Next(ctx)
		out <- err
	}()
	return out
}

func await(t *testing.T, c <-chan error) error {
	t.Helper()
	select {
	case err := <-c:
		return err
	case <-time.After(time.Second):
		t.Fatal("Next did not return")
		return nil
	}
}

func TestCloseWakesPendingNext(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	seq, started, _ := blockedSeq(gate, 1)

	cases := []struct {
		name  string
		src   Source
		ready <-chan struct{}
	}{
		{"channel", FromChan[int](make(chan int)), nil},
		{"seq", FromSeq(seq), started},
		{"publisher", FromPublisher(&silentPublisher{cancelled: make(chan struct{})}), nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pending := nextAsync(context.Background(), tc.src)
			if tc.ready != nil {
				<-tc.ready
			} else {
				time.Sleep(20 * time.Millisecond)
			}
			require.NoError(t, tc.src.Close())
			require.ErrorIs(t, await(t, pending), io.EOF)

			_, err := tc.src.Next(context.Background())
			require.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestCancelWakesPendingNext(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	seq, started, _ := blockedSeq(gate, 1)

	cases := []struct {
		name  string
		src   Source
		ready <-chan struct{}
	}{
		{"channel", FromChan[int](make(chan int)), nil},
		{"seq", FromSeq(seq), started},
		{"publisher", FromPublisher(&silentPublisher{cancelled: make(chan struct{})}), nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			defer tc.src.Close()
			ctx, cancel := context.WithCancel(context.Background())
			pending := nextAsync(ctx, tc.src)
			if tc.ready != nil {
				<-tc.ready
			} else {
				time.Sleep(20 * time.Millisecond)
			}
			cancel()
			require.ErrorIs(t, await(t, pending), context.Canceled)
		})
	}
}

func TestSeqStepSurvivesCancel(t *testing.T) {
	gate := make(chan struct{})
	seq, started, stopped := blockedSeq(gate, 42)
	src := FromSeq(seq)

	ctx, cancel := context.WithCancel(context.Background())
	pending := nextAsync(ctx, src)
	<-started
	cancel()
	require.ErrorIs(t, await(t, pending), context.Canceled)

	close(gate)
	v, err := src.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, v)

	require.NoError(t, src.Close())
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("iterator was not stopped")
	}
}

func TestClosedSeqStopsAfterPendingStep(t *testing.T) {
	gate := make(chan struct{})
	seq, started, stopped := blockedSeq(gate, 1)
	src := FromSeq(seq)

	pending := nextAsync(context.Background(), src)
	<-started
	require.NoError(t, src.Close())
	require.ErrorIs(t, await(t, pending), io.EOF)

	close(gate)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("iterator was not stopped")
	}
}
