package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	eventbus "github.com/hanpama/reflectgraph/internal/eventbus"
	envelope "github.com/hanpama/reflectgraph/internal/envelope"
	events "github.com/hanpama/reflectgraph/internal/events"
	executor "github.com/hanpama/reflectgraph/internal/executor"
	language "github.com/hanpama/reflectgraph/internal/language"
	reqid "github.com/hanpama/reflectgraph/internal/reqid"
	schema "github.com/hanpama/reflectgraph/internal/schema"
	"go.uber.org/zap"
	"google.golang.org/grpc/metadata"
)

// Handler is an http.Handler that serves a GraphQL endpoint. Queries and
// mutations are served over GET and POST; subscriptions over a websocket
// speaking graphql-transport-ws.
type Handler struct {
	exec     *executor.Executor
	opt      Options
	upgrader websocket.Upgrader
	log      *zap.Logger
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// It does not apply to websocket connections. 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body and of websocket
	// messages. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled and
	// websocket upgrades must come from the same origin.
	CORS CORSOptions

	// MetadataHeaders lists HTTP headers to forward into gRPC metadata.
	// Header names are case-insensitive. Default is none.
	MetadataHeaders []string

	// GraphiQL enables the in-browser IDE when true.
	GraphiQL bool

	// InitTimeout bounds the wait for connection_init on a websocket.
	InitTimeout time.Duration

	// KeepAlive is the interval of server pings on a websocket. 0 disables
	// them.
	KeepAlive time.Duration

	Logger *zap.Logger
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option        { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                        { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option           { return func(o *Options) { o.MaxBodyBytes = n } }
func WithGraphiQL(enable bool) Option           { return func(o *Options) { o.GraphiQL = enable } }
func WithInitTimeout(d time.Duration) Option    { return func(o *Options) { o.InitTimeout = d } }
func WithKeepAlive(d time.Duration) Option      { return func(o *Options) { o.KeepAlive = d } }
func WithLogger(l *zap.Logger) Option           { return func(o *Options) { o.Logger = l } }
func WithCORS(origins ...string) Option         { return func(o *Options) { o.CORS.AllowedOrigins = origins } }
func WithMetadataHeaders(hdrs ...string) Option { return func(o *Options) { o.MetadataHeaders = hdrs } }

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// New creates a new GraphQL HTTP handler using the given runtime and schema.
func New(runtime executor.Runtime, schema *schema.Schema, opts ...Option) (*Handler, error) {
	op := Options{
		Timeout:     10 * time.Second,
		GraphiQL:    true,
		InitTimeout: 10 * time.Second,
		KeepAlive:   15 * time.Second,
	}
	for _, f := range opts {
		f(&op)
	}
	if op.Logger == nil {
		op.Logger = zap.NewNop()
	}
	h := &Handler{exec: executor.NewExecutor(runtime, schema), opt: op, log: op.Logger}
	h.upgrader = websocket.Upgrader{
		Subprotocols: []string{subprotocol},
		CheckOrigin:  h.checkOrigin,
	}
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if id := r.Header.Get(reqid.Header); id != "" {
		ctx = reqid.WithID(ctx, id)
	} else {
		ctx, _ = reqid.NewContext(ctx)
	}
	rid, _ := reqid.FromContext(ctx)
	w.Header().Set(reqid.Header, rid)
	ctx = h.outgoingMetadata(ctx, r, rid)

	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	x := h.serve(ctx, w, r)
	eventbus.Publish(ctx, events.HTTPFinish{
		Request:    r,
		Mode:       x.mode,
		Status:     x.status,
		Operations: x.operations,
		Duration:   time.Since(start),
	})
}

// exchange summarizes a served request for HTTPFinish.
type exchange struct {
	mode       events.Mode
	status     int
	operations int
}

func (h *Handler) serve(ctx context.Context, w http.ResponseWriter, r *http.Request) exchange {
	if websocket.IsWebSocketUpgrade(r) {
		h.serveWebsocket(ctx, w, r)
		return exchange{mode: events.ModeWebsocket, status: http.StatusSwitchingProtocols}
	}

	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}
	cors := len(h.opt.CORS.AllowedOrigins) > 0

	switch {
	case r.Method == http.MethodOptions:
		if cors {
			setCORSHeaders(w, r, h.opt.CORS)
		}
		w.WriteHeader(http.StatusNoContent)
		return exchange{mode: events.ModePreflight, status: http.StatusNoContent}
	case r.Method != http.MethodPost && r.Method != http.MethodGet:
		return h.reject(w, &requestError{status: http.StatusMethodNotAllowed, message: "method not allowed"})
	case r.Method == http.MethodGet && h.opt.GraphiQL && acceptsHTML(r.Header.Get("Accept")) && r.URL.Query().Get("query") == "":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(graphiqlPage)
		return exchange{mode: events.ModeGraphiQL, status: http.StatusOK}
	}

	req, batch, berr := parseRequest(r, h.opt.MaxBodyBytes)
	if berr != nil {
		return h.reject(w, berr)
	}
	if cors {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	if batch == nil {
		writeJSON(w, http.StatusOK, h.executeOne(ctx, req), h.opt.Pretty)
		return exchange{mode: events.ModeSingle, status: http.StatusOK, operations: 1}
	}
	out := make([]*envelope.Response, len(batch))
	for i := range batch {
		out[i] = h.executeOne(ctx, batch[i])
	}
	writeJSON(w, http.StatusOK, out, h.opt.Pretty)
	return exchange{mode: events.ModeBatch, status: http.StatusOK, operations: len(batch)}
}

func (h *Handler) reject(w http.ResponseWriter, e *requestError) exchange {
	writeJSON(w, e.status, envelope.Failure(e.message), h.opt.Pretty)
	return exchange{mode: events.ModeRejected, status: e.status}
}

// outgoingMetadata attaches the request id and the configured headers as
// outgoing gRPC metadata.
func (h *Handler) outgoingMetadata(ctx context.Context, r *http.Request, rid string) context.Context {
	md := metadata.MD{}
	if len(h.opt.MetadataHeaders) > 0 {
		allowed := make(map[string]struct{}, len(h.opt.MetadataHeaders))
		for _, hdr := range h.opt.MetadataHeaders {
			allowed[strings.ToLower(hdr)] = struct{}{}
		}
		for k, v := range r.Header {
			if _, ok := allowed[strings.ToLower(k)]; ok {
				md[strings.ToLower(k)] = v
			}
		}
	}
	md[reqid.Header] = []string{rid}
	return metadata.NewOutgoingContext(ctx, md)
}

// parsed is a request whose document parsed and whose operation, if any
// matches, was identified.
type parsed struct {
	req    GraphQLRequest
	doc    *language.QueryDocument
	opType string
}

func parse(req GraphQLRequest) (*parsed, *envelope.Response) {
	doc, err := language.ParseQuery(req.Query)
	if err != nil {
		return nil, envelope.FromError(err)
	}
	out := &parsed{req: req, doc: doc}
	if opDef := language.SelectOperation(doc, req.OperationName); opDef != nil {
		out.opType = string(opDef.Operation)
	}
	return out, nil
}

func (h *Handler) executeOne(ctx context.Context, req GraphQLRequest) *envelope.Response {
	p, failed := parse(req)
	if failed != nil {
		return failed
	}
	if p.opType == string(language.Subscription) {
		return envelope.Failure("subscriptions are served over websocket connections")
	}
	return h.execute(ctx, p)
}

func (h *Handler) execute(ctx context.Context, p *parsed) *envelope.Response {
	start := time.Now()
	eventbus.Publish(ctx, events.GraphQLStart{Query: p.req.Query, OperationName: p.req.OperationName, OperationType: p.opType})
	result := h.exec.ExecuteRequest(ctx, p.doc, p.req.OperationName, p.req.Variables, nil)
	errs := make([]error, len(result.Errors))
	for i := range result.Errors {
		errs[i] = result.Errors[i]
	}
	eventbus.Publish(ctx, events.GraphQLFinish{
		Query:         p.req.Query,
		OperationName: p.req.OperationName,
		OperationType: p.opType,
		Errors:        errs,
		Duration:      time.Since(start),
	})
	return envelope.FromResult(result)
}

// ------------------ Request parsing ------------------

type GraphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

type requestError struct {
	status  int
	message string
}

func badRequest(msg string) *requestError { return &requestError{status: http.StatusBadRequest, message: msg} }

func parseRequest(r *http.Request, maxBody int64) (GraphQLRequest, []GraphQLRequest, *requestError) {
	if r.Method == http.MethodGet {
		q := r.URL.Query().Get("query")
		if q == "" {
			return GraphQLRequest{}, nil, badRequest("missing 'query'")
		}
		vars := map[string]any{}
		if v := r.URL.Query().Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &vars); err != nil {
				return GraphQLRequest{}, nil, badRequest("invalid 'variables' JSON")
			}
		}
		op := r.URL.Query().Get("operationName")
		return GraphQLRequest{Query: q, Variables: vars, OperationName: op}, nil, nil
	}

	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" && !strings.HasPrefix(ct, "application/json;") {
		return GraphQLRequest{}, nil, &requestError{status: http.StatusUnsupportedMediaType, message: "unsupported Content-Type"}
	}
	defer r.Body.Close()
	reader := io.Reader(r.Body)
	if maxBody > 0 {
		reader = io.LimitReader(r.Body, maxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return GraphQLRequest{}, nil, badRequest("failed to read body")
	}
	if maxBody > 0 && int64(len(body)) > maxBody {
		return GraphQLRequest{}, nil, &requestError{status: http.StatusRequestEntityTooLarge, message: "body too large"}
	}

	if len(body) > 0 && body[0] == '[' {
		var arr []GraphQLRequest
		if err := json.Unmarshal(body, &arr); err != nil {
			return GraphQLRequest{}, nil, badRequest("invalid JSON")
		}
		if len(arr) == 0 {
			return GraphQLRequest{}, nil, badRequest("empty batch")
		}
		return GraphQLRequest{}, arr, nil
	}
	var req GraphQLRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return GraphQLRequest{}, nil, badRequest("invalid JSON")
	}
	if req.Query == "" {
		return GraphQLRequest{}, nil, badRequest("missing 'query'")
	}
	if req.Variables == nil {
		req.Variables = map[string]any{}
	}
	return req, nil, nil
}

// ------------------ Response formatting ------------------

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

func allowedOrigin(origin string, opts CORSOptions) (wildcard, ok bool) {
	for _, o := range opts.AllowedOrigins {
		if o == "*" {
			return true, true
		}
		if o == origin {
			ok = true
		}
	}
	return false, ok
}

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	wildcard, ok := allowedOrigin(origin, opts)
	if !ok {
		return
	}
	if wildcard {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

func acceptsHTML(accept string) bool {
	for _, p := range strings.Split(accept, ",") {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(p, "text/html") || p == "*/*" {
			return true
		}
	}
	return false
}
