package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type ping struct{ n int }
type pong struct{}

func TestEmitRoutesByType(t *testing.T) {
	b := New()
	var pings []int
	pongs := 0
	On(b, func(_ context.Context, e ping) { pings = append(pings, e.n) })
	On(b, func(_ context.Context, _ pong) { pongs++ })

	Emit(context.Background(), b, ping{1})
	Emit(context.Background(), b, ping{2})
	Emit(context.Background(), b, pong{})

	require.Equal(t, []int{1, 2}, pings)
	require.Equal(t, 1, pongs)
}

func TestUnsubscribeRemovesOnlyItsHandler(t *testing.T) {
	b := New()
	var got []string
	offA := On(b, func(_ context.Context, _ ping) { got = append(got, "a") })
	On(b, func(_ context.Context, _ ping) { got = append(got, "b") })

	offA()
	offA()
	Emit(context.Background(), b, ping{})
	require.Equal(t, []string{"b"}, got)
}

func TestGlobalBus(t *testing.T) {
	Use(nil)
	off := Subscribe(func(context.Context, ping) { t.Fatal("no bus installed") })
	Publish(context.Background(), ping{})
	off()

	b := New()
	Use(b)
	t.Cleanup(func() { Use(nil) })
	seen := 0
	Subscribe(func(context.Context, ping) { seen++ })
	Publish(context.Background(), ping{})
	require.Equal(t, 1, seen)
}
