package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	eventbus "github.com/hanpama/reflectgraph/internal/eventbus"
	envelope "github.com/hanpama/reflectgraph/internal/envelope"
	events "github.com/hanpama/reflectgraph/internal/events"
	executor "github.com/hanpama/reflectgraph/internal/executor"
	language "github.com/hanpama/reflectgraph/internal/language"
	"go.uber.org/zap"
)

const subprotocol = "graphql-transport-ws"

const writeWait = 10 * time.Second

// Message types of graphql-transport-ws.
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgPing           = "ping"
	msgPong           = "pong"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
)

// Close codes of graphql-transport-ws.
const (
	closeBadRequest      = 4400
	closeUnauthorized    = 4401
	closeInitTimeout     = 4408
	closeDuplicateID     = 4409
	closeTooManyInitReqs = 4429
)

type message struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(h.opt.CORS.AllowedOrigins) > 0 {
		_, ok := allowedOrigin(origin, h.opt.CORS)
		return ok
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

func (h *Handler) serveWebsocket(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	if conn.Subprotocol() != subprotocol {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseProtocolError, "unsupported subprotocol"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	if h.opt.MaxBodyBytes > 0 {
		conn.SetReadLimit(h.opt.MaxBodyBytes)
	}
	ctx, cancel := context.WithCancel(ctx)
	c := &wsConn{h: h, conn: conn, ctx: ctx, cancel: cancel, subs: map[string]context.CancelFunc{}}
	c.run()
}

// wsConn is one graphql-transport-ws connection. Reads happen on the
// serving goroutine; every operation writes from its own goroutine under wmu.
type wsConn struct {
	h      *Handler
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	wmu sync.Mutex

	mu    sync.Mutex
	acked bool
	subs  map[string]context.CancelFunc
	wg    sync.WaitGroup
}

func (c *wsConn) run() {
	defer func() {
		c.cancel()
		c.wg.Wait()
		c.conn.Close()
	}()
	log := c.h.log
	log.Debug("websocket connected")

	initTimer := time.AfterFunc(c.h.opt.InitTimeout, func() {
		c.mu.Lock()
		acked := c.acked
		c.mu.Unlock()
		if !acked {
			c.closeWith(closeInitTimeout, "Connection initialisation timeout")
		}
	})
	defer initTimer.Stop()

	if c.h.opt.KeepAlive > 0 {
		c.wg.Add(1)
		go c.keepAlive()
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Debug("websocket closed", zap.Error(err))
			return
		}
		var msg message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			c.closeWith(closeBadRequest, "Invalid message received")
			return
		}
		if !c.handle(msg) {
			return
		}
	}
}

// handle processes one client message and reports whether the connection
// stays open.
func (c *wsConn) handle(msg message) bool {
	switch msg.Type {
	case msgConnectionInit:
		c.mu.Lock()
		again := c.acked
		c.acked = true
		c.mu.Unlock()
		if again {
			c.closeWith(closeTooManyInitReqs, "Too many initialisation requests")
			return false
		}
		return c.write(message{Type: msgConnectionAck}) == nil
	case msgPing:
		return c.write(message{Type: msgPong, Payload: msg.Payload}) == nil
	case msgPong:
		return true
	case msgSubscribe:
		return c.subscribe(msg)
	case msgComplete:
		c.mu.Lock()
		if stop, ok := c.subs[msg.ID]; ok {
			stop()
			delete(c.subs, msg.ID)
		}
		c.mu.Unlock()
		return true
	}
	c.closeWith(closeBadRequest, fmt.Sprintf("Unexpected message type %q", msg.Type))
	return false
}

func (c *wsConn) subscribe(msg message) bool {
	if msg.ID == "" {
		c.closeWith(closeBadRequest, "Subscribe message requires an id")
		return false
	}
	var req GraphQLRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil || req.Query == "" {
		c.closeWith(closeBadRequest, "Invalid subscribe payload")
		return false
	}

	c.mu.Lock()
	if !c.acked {
		c.mu.Unlock()
		c.closeWith(closeUnauthorized, "Unauthorized")
		return false
	}
	if _, dup := c.subs[msg.ID]; dup {
		c.mu.Unlock()
		c.closeWith(closeDuplicateID, fmt.Sprintf("Subscriber for %s already exists", msg.ID))
		return false
	}
	ctx, stop := context.WithCancel(c.ctx)
	c.subs[msg.ID] = stop
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.release(msg.ID)
		c.operate(ctx, msg.ID, req)
	}()
	return true
}

func (c *wsConn) release(id string) {
	c.mu.Lock()
	if stop, ok := c.subs[id]; ok {
		stop()
		delete(c.subs, id)
	}
	c.mu.Unlock()
}

// operate runs one operation to completion. Queries and mutations produce a
// single next message; subscriptions one per event. A client complete
// cancels ctx, after which nothing more is sent for id.
func (c *wsConn) operate(ctx context.Context, id string, req GraphQLRequest) {
	p, failed := parse(req)
	if failed != nil {
		c.sendErrors(id, failed)
		return
	}
	if p.opType != string(language.Subscription) {
		res := c.h.execute(ctx, p)
		if ctx.Err() == nil {
			c.send(id, msgNext, res)
			c.send(id, msgComplete, nil)
		}
		return
	}

	stream, failedRes := c.h.exec.Subscribe(ctx, p.doc, req.OperationName, req.Variables, nil)
	if failedRes != nil {
		c.sendErrors(id, envelope.FromResult(failedRes))
		return
	}
	c.stream(ctx, id, req, stream)
}

func (c *wsConn) stream(ctx context.Context, id string, req GraphQLRequest, stream *executor.ResponseStream) {
	defer stream.Close()
	subID := uuid.NewString()
	field := stream.ResponseName()
	log := c.h.log.With(zap.String("subscription", id), zap.String("field", field))
	log.Debug("subscription started")

	start := time.Now()
	eventbus.Publish(ctx, events.SubscriptionStart{ID: subID, OperationName: req.OperationName, Field: field})
	count := 0
	var streamErr error
	defer func() {
		eventbus.Publish(ctx, events.SubscriptionFinish{
			ID: subID, Field: field, Events: count, Err: streamErr, Duration: time.Since(start),
		})
		log.Debug("subscription finished", zap.Int("events", count), zap.Error(streamErr))
	}()

	for {
		evStart := time.Now()
		res, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) && ctx.Err() == nil {
				c.send(id, msgComplete, nil)
			}
			return
		}
		count++
		if res.Data == nil && len(res.Errors) > 0 {
			streamErr = res.Errors[0]
		}
		eventbus.Publish(ctx, events.SubscriptionEvent{
			ID: subID, Field: field, Errors: len(res.Errors), Duration: time.Since(evStart),
		})
		if ctx.Err() != nil {
			return
		}
		if err := c.send(id, msgNext, envelope.FromResult(res)); err != nil {
			streamErr = err
			return
		}
	}
}

func (c *wsConn) sendErrors(id string, r *envelope.Response) {
	errs := r.Errors
	if errs == nil {
		errs = []envelope.Error{}
	}
	c.send(id, msgError, errs)
}

func (c *wsConn) send(id, typ string, payload any) error {
	msg := message{ID: id, Type: typ}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		msg.Payload = b
	}
	err := c.write(msg)
	if err != nil {
		c.h.log.Debug("websocket write failed", zap.String("id", id), zap.Error(err))
	}
	return err
}

func (c *wsConn) write(msg message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

func (c *wsConn) closeWith(code int, reason string) {
	c.h.log.Debug("closing websocket", zap.Int("code", code), zap.String("reason", reason))
	c.wmu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	c.wmu.Unlock()
	c.cancel()
	c.conn.Close()
}

func (c *wsConn) keepAlive() {
	defer c.wg.Done()
	t := time.NewTicker(c.h.opt.KeepAlive)
	defer t.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-t.C:
			if c.write(message{Type: msgPing}) != nil {
				return
			}
		}
	}
}
