package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	eventbus "github.com/hanpama/reflectgraph/internal/eventbus"
	events "github.com/hanpama/reflectgraph/internal/events"
	"github.com/hanpama/reflectgraph/internal/eventsource"
	"github.com/hanpama/reflectgraph/internal/executor/executortest"
	"github.com/stretchr/testify/require"
)

func subscriptionRuntime() *executortest.Runtime {
	return executortest.New(map[string]executortest.Resolver{
		"Query.hello": executortest.Value("world"),
		"Subscription.count": func(_ context.Context, _ any, args map[string]any) (any, error) {
			to, _ := args["to"].(int)
			values := make([]any, to)
			for i := range values {
				values[i] = i + 1
			}
			return eventsource.Of(values...), nil
		},
		"Subscription.broken": func(context.Context, any, map[string]any) (any, error) {
			return func(yield func(int, error) bool) {
				if yield(1, nil) {
					yield(0, errors.New("source failed"))
				}
			}, nil
		},
	})
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, h *Handler) *client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	dialer := websocket.Dialer{Subprotocols: []string{subprotocol}}
	conn, _, err := dialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn}
}

func (c *client) send(raw string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

func (c *client) read() message {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg message
	require.NoError(c.t, c.conn.ReadJSON(&msg))
	return msg
}

func (c *client) init() {
	c.t.Helper()
	c.send(`{"type":"connection_init"}`)
	require.Equal(c.t, msgConnectionAck, c.read().Type)
}

// closeCode reads until the server closes and returns the close code.
func (c *client) closeCode() int {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, _, err := c.conn.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		require.True(c.t, errors.As(err, &ce), "unexpected error %v", err)
		return ce.Code
	}
}

func TestSubscriptionStreamsEvents(t *testing.T) {
	c := dial(t, newTestHandler(t, subscriptionRuntime()))
	c.init()
	c.send(`{"id":"1","type":"subscribe","payload":{"query":"subscription { n: count(to: 3) }"}}`)

	for _, want := range []string{`{"data":{"n":1}}`, `{"data":{"n":2}}`, `{"data":{"n":3}}`} {
		msg := c.read()
		require.Equal(t, msgNext, msg.Type)
		require.Equal(t, "1", msg.ID)
		require.JSONEq(t, want, string(msg.Payload))
	}
	require.Equal(t, message{ID: "1", Type: msgComplete}, c.read())
}

func TestSubscriptionSourceErrorEndsStream(t *testing.T) {
	c := dial(t, newTestHandler(t, subscriptionRuntime()))
	c.init()
	c.send(`{"id":"s","type":"subscribe","payload":{"query":"subscription { broken }"}}`)

	require.JSONEq(t, `{"data":{"broken":1}}`, string(c.read().Payload))
	msg := c.read()
	require.Equal(t, msgNext, msg.Type)
	require.JSONEq(t, `{"data":null,"errors":[{"message":"source failed","path":["broken"]}]}`, string(msg.Payload))
	require.Equal(t, msgComplete, c.read().Type)
}

func TestQueryOverWebsocket(t *testing.T) {
	c := dial(t, newTestHandler(t, subscriptionRuntime()))
	c.init()
	c.send(`{"id":"q","type":"subscribe","payload":{"query":"{ hello }"}}`)
	msg := c.read()
	require.Equal(t, msgNext, msg.Type)
	require.JSONEq(t, `{"data":{"hello":"world"}}`, string(msg.Payload))
	require.Equal(t, msgComplete, c.read().Type)
}

func TestSubscribeErrors(t *testing.T) {
	c := dial(t, newTestHandler(t, subscriptionRuntime()))
	c.init()

	c.send(`{"id":"a","type":"subscribe","payload":{"query":"subscription {"}}`)
	msg := c.read()
	require.Equal(t, msgError, msg.Type)
	var errs []map[string]any
	require.NoError(t, json.Unmarshal(msg.Payload, &errs))
	require.Len(t, errs, 1)
	require.Contains(t, errs[0], "locations")

	c.send(`{"id":"b","type":"subscribe","payload":{"query":"subscription { hello }"}}`)
	msg = c.read()
	require.Equal(t, msgError, msg.Type)
	require.Equal(t, "b", msg.ID)
}

func TestPingPong(t *testing.T) {
	c := dial(t, newTestHandler(t, subscriptionRuntime()))
	c.send(`{"type":"ping","payload":{"n":1}}`)
	msg := c.read()
	require.Equal(t, msgPong, msg.Type)
	require.JSONEq(t, `{"n":1}`, string(msg.Payload))
}

func TestCompleteStopsSubscription(t *testing.T) {
	ch := make(chan int)
	rt := subscriptionRuntime()
	rt.Handle("Subscription", "count", func(context.Context, any, map[string]any) (any, error) {
		return (<-chan int)(ch), nil
	})
	bus := eventbus.New()
	eventbus.Use(bus)
	t.Cleanup(func() { eventbus.Use(nil) })
	finished := make(chan events.SubscriptionFinish, 1)
	eventbus.On(bus, func(_ context.Context, e events.SubscriptionFinish) { finished <- e })

	c := dial(t, newTestHandler(t, rt))
	c.init()
	c.send(`{"id":"1","type":"subscribe","payload":{"query":"subscription { count(to: 0) }"}}`)
	ch <- 7
	require.JSONEq(t, `{"data":{"count":7}}`, string(c.read().Payload))

	c.send(`{"id":"1","type":"complete"}`)
	select {
	case e := <-finished:
		require.Equal(t, 1, e.Events)
		require.Equal(t, "count", e.Field)
		require.NoError(t, e.Err)
	case <-time.After(5 * time.Second):
		t.Fatal("subscription did not finish")
	}

	c.send(`{"type":"ping"}`)
	require.Equal(t, msgPong, c.read().Type, "nothing else is sent for a completed subscription")
}

func TestProtocolViolations(t *testing.T) {
	tests := []struct {
		name     string
		messages []string
		code     int
	}{
		{"subscribe before init", []string{`{"id":"1","type":"subscribe","payload":{"query":"{ hello }"}}`}, closeUnauthorized},
		{"second init", []string{`{"type":"connection_init"}`, `{"type":"connection_init"}`}, closeTooManyInitReqs},
		{"invalid json", []string{`nope`}, closeBadRequest},
		{"unknown type", []string{`{"type":"hello"}`}, closeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := dial(t, newTestHandler(t, subscriptionRuntime()))
			for _, m := range tt.messages {
				c.send(m)
			}
			require.Equal(t, tt.code, c.closeCode())
		})
	}
}

func TestDuplicateSubscriptionID(t *testing.T) {
	ch := make(chan int)
	rt := subscriptionRuntime()
	rt.Handle("Subscription", "count", func(context.Context, any, map[string]any) (any, error) {
		return (<-chan int)(ch), nil
	})
	c := dial(t, newTestHandler(t, rt))
	c.init()
	c.send(`{"id":"1","type":"subscribe","payload":{"query":"subscription { count(to: 0) }"}}`)
	c.send(`{"id":"1","type":"subscribe","payload":{"query":"subscription { count(to: 0) }"}}`)
	require.Equal(t, closeDuplicateID, c.closeCode())
}

func TestInitTimeout(t *testing.T) {
	c := dial(t, newTestHandler(t, subscriptionRuntime(), WithInitTimeout(20*time.Millisecond)))
	require.Equal(t, closeInitTimeout, c.closeCode())
}

func TestUnsupportedSubprotocol(t *testing.T) {
	srv := httptest.NewServer(newTestHandler(t, subscriptionRuntime()))
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	_, _, err = conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseProtocolError))
}
