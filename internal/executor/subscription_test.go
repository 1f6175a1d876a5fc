package executor_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/reflectgraph/internal/eventsource"
	"github.com/hanpama/reflectgraph/internal/executor"
	"github.com/hanpama/reflectgraph/internal/executor/executortest"
	"github.com/hanpama/reflectgraph/internal/schema"
)

const subscriptionSDL = `
type Query { ping: String }

type Subscription {
  bookAdded(genre: String): Book!
  ticks: Int
  plain: String
}

type Book { title: String author: String }
`

func subscriptionSchema(t *testing.T) *schema.Schema {
	return mustSchema(t, subscriptionSDL, "Book.author")
}

func bookRuntime(src any) *executortest.Runtime {
	return executortest.New(map[string]executortest.Resolver{
		"Subscription.bookAdded": executortest.Value(src),
		"Book.title":             key("title"),
		"Book.author": func(_ context.Context, source any, _ map[string]any) (any, error) {
			title, ok := source.(obj)["title"].(string)
			if !ok {
				return nil, errors.New("untitled")
			}
			return "by " + title, nil
		},
	})
}

func subscribe(t *testing.T, rt executor.Runtime, query string) (*executor.ResponseStream, *executor.ExecutionResult) {
	t.Helper()
	return executor.NewExecutor(rt, subscriptionSchema(t)).Subscribe(context.Background(), mustParse(t, query), "", nil, nil)
}

// trackingSource records how far it was pulled and whether it was closed.
type trackingSource struct {
	values []any
	pulled int
	closed bool
}

func (s *trackingSource) Next(context.Context) (any, error) {
	if s.closed || s.pulled == len(s.values) {
		return nil, io.EOF
	}
	s.pulled++
	return s.values[s.pulled-1], nil
}

func (s *trackingSource) Close() error {
	s.closed = true
	return nil
}

func TestSubscribeOneResultPerEvent(t *testing.T) {
	rt := bookRuntime(eventsource.Of(obj{"title": "A"}, obj{"title": "B"}, obj{"title": "C"}))
	stream, failed := subscribe(t, rt, `subscription { added: bookAdded(genre: "sf") { title author } }`)
	require.Nil(t, failed)
	require.Equal(t, "added", stream.ResponseName())

	var got []*executor.ExecutionResult
	for res := range stream.All(context.Background()) {
		got = append(got, res)
	}
	want := []*executor.ExecutionResult{
		{Data: obj{"added": obj{"title": "A", "author": "by A"}}},
		{Data: obj{"added": obj{"title": "B", "author": "by B"}}},
		{Data: obj{"added": obj{"title": "C", "author": "by C"}}},
	}
	require.Len(t, got, len(want))
	for i := range want {
		requireResult(t, want[i], got[i])
	}

	calls := rt.Calls()
	want0 := executortest.Call{Kind: executortest.Async, ObjectType: "Subscription", Field: "bookAdded", Args: map[string]any{"genre": "sf"}, Batch: 1}
	if diff := cmp.Diff(want0, calls[0]); diff != "" {
		t.Fatalf("root call mismatch (-want +got):\n%s", diff)
	}
	// a sync title and a batched author for every event
	require.Len(t, calls, 1+3*2)
}

func TestSubscribeWithoutAlias(t *testing.T) {
	stream, failed := subscribe(t, bookRuntime(eventsource.Of(obj{"title": "A"})), `subscription { bookAdded { title } }`)
	require.Nil(t, failed)

	res, err := stream.Next(context.Background())
	require.NoError(t, err)
	requireResult(t, &executor.ExecutionResult{Data: obj{"bookAdded": obj{"title": "A"}}}, res)

	_, err = stream.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

func TestSubscribeEventErrorsStayWithTheirEvent(t *testing.T) {
	stream, failed := subscribe(t, bookRuntime(eventsource.Of(obj{}, obj{"title": "B"})), `subscription { bookAdded { author } }`)
	require.Nil(t, failed)

	first, err := stream.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, first.Errors, 1)
	require.Equal(t, executor.Path{"bookAdded", "author"}, first.Errors[0].Path)

	second, err := stream.Next(context.Background())
	require.NoError(t, err)
	requireResult(t, &executor.ExecutionResult{Data: obj{"bookAdded": obj{"author": "by B"}}}, second)
}

func TestSubscribeBreakClosesSource(t *testing.T) {
	src := &trackingSource{values: []any{obj{"title": "A"}, obj{"title": "B"}, obj{"title": "C"}}}
	stream, failed := subscribe(t, bookRuntime(src), `subscription { bookAdded { title } }`)
	require.Nil(t, failed)

	delivered := 0
	for range stream.All(context.Background()) {
		delivered++
		break
	}
	require.Equal(t, 1, delivered)
	require.True(t, src.closed)
	require.Equal(t, 1, src.pulled)

	_, err := stream.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

func TestSubscribeSourceErrorEndsStream(t *testing.T) {
	rt := executortest.New(map[string]executortest.Resolver{
		"Subscription.ticks": executortest.Value(func(yield func(int, error) bool) {
			if yield(1, nil) {
				yield(0, errors.New("upstream gone"))
			}
		}),
	})
	stream, failed := subscribe(t, rt, `subscription { ticks }`)
	require.Nil(t, failed)

	var got []*executor.ExecutionResult
	for res := range stream.All(context.Background()) {
		got = append(got, res)
	}
	require.Len(t, got, 2)
	requireResult(t, &executor.ExecutionResult{Data: obj{"ticks": 1}}, got[0])
	requireResult(t, &executor.ExecutionResult{Errors: []executor.GraphQLError{{Message: "upstream gone", Path: executor.Path{"ticks"}}}}, got[1])
}

func TestSubscribeFailures(t *testing.T) {
	tests := []struct {
		name  string
		rt    *executortest.Runtime
		query string
		want  []executor.GraphQLError
	}{
		{
			name:  "not an event source",
			rt:    executortest.New(map[string]executortest.Resolver{"Subscription.plain": executortest.Value("hello")}),
			query: `subscription { plain }`,
			want:  []executor.GraphQLError{{Message: "Subscription field 'plain' must return an event source, got string", Path: executor.Path{"plain"}}},
		},
		{
			name:  "resolver error",
			rt:    executortest.New(map[string]executortest.Resolver{"Subscription.bookAdded": executortest.Fail(errors.New("denied"))}),
			query: `subscription { bookAdded { title } }`,
			want:  []executor.GraphQLError{{Message: "denied", Path: executor.Path{"bookAdded"}}},
		},
		{
			name:  "query operation",
			rt:    executortest.New(nil),
			query: `{ ping }`,
			want:  []executor.GraphQLError{{Message: "expected subscription operation, got query"}},
		},
		{
			name:  "two root fields",
			rt:    executortest.New(nil),
			query: `subscription { ticks plain }`,
			want:  []executor.GraphQLError{{Message: "subscription must select exactly one top level field"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream, failed := subscribe(t, tt.rt, tt.query)
			require.Nil(t, stream)
			requireResult(t, &executor.ExecutionResult{Errors: tt.want}, failed)
		})
	}
}

type nextResult struct {
	res *executor.ExecutionResult
	err error
}

func nextAsync(ctx context.Context, stream *executor.ResponseStream) <-chan nextResult {
	out := make(chan nextResult, 1)
	go func() {
		res, err := stream.Next(ctx)
		out <- nextResult{res, err}
	}()
	return out
}

func awaitNext(t *testing.T, pending <-chan nextResult) nextResult {
	t.Helper()
	select {
	case r := <-pending:
		return r
	case <-time.After(time.Second):
		t.Fatal("Next did not return")
		return nextResult{}
	}
}

func TestSubscribeCloseWakesPendingChannelNext(t *testing.T) {
	ch := make(chan any)
	stream, failed := subscribe(t, bookRuntime(eventsource.FromChan[any](ch)), `subscription { bookAdded { title } }`)
	require.Nil(t, failed)

	pending := nextAsync(context.Background(), stream)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, stream.Close())

	got := awaitNext(t, pending)
	require.ErrorIs(t, got.err, io.EOF)
	require.Nil(t, got.res)

	select {
	case ch <- obj{"title": "late"}:
		t.Fatal("event accepted after Close")
	case <-time.After(20 * time.Millisecond):
	}
	_, err := stream.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

func TestSubscribeCloseDoesNotWaitForIterator(t *testing.T) {
	started := make(chan struct{})
	gate := make(chan struct{})
	stopped := make(chan struct{})
	seq := func(yield func(any, error) bool) {
		defer close(stopped)
		close(started)
		<-gate
		yield(obj{"title": "late"}, nil)
	}
	stream, failed := subscribe(t, bookRuntime(seq), `subscription { bookAdded { title } }`)
	require.Nil(t, failed)

	pending := nextAsync(context.Background(), stream)
	<-started

	closed := make(chan error, 1)
	go func() { closed <- stream.Close() }()
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close blocked on a pending iterator step")
	}

	got := awaitNext(t, pending)
	require.ErrorIs(t, got.err, io.EOF)
	require.Nil(t, got.res)

	close(gate)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("iterator was not stopped")
	}
}

func TestSubscribeContextCancelEndsStream(t *testing.T) {
	ch := make(chan any)
	stream, failed := subscribe(t, bookRuntime(eventsource.FromChan[any](ch)), `subscription { bookAdded { title } }`)
	require.Nil(t, failed)

	ctx, cancel := context.WithCancel(context.Background())
	pending := nextAsync(ctx, stream)
	time.Sleep(20 * time.Millisecond)
	cancel()

	got := awaitNext(t, pending)
	require.ErrorIs(t, got.err, context.Canceled)
	require.Nil(t, got.res)

	_, err := stream.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
}
