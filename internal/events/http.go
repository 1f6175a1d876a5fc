package events

import (
	"net/http"
	"time"
)

// Mode says how the GraphQL endpoint served an HTTP request. ModeRejected
// covers requests refused before any operation ran.
type Mode string

const (
	ModeSingle    Mode = "single"
	ModeBatch     Mode = "batch"
	ModeWebsocket Mode = "websocket"
	ModeGraphiQL  Mode = "graphiql"
	ModePreflight Mode = "preflight"
	ModeRejected  Mode = "rejected"
)

// HTTPStart is emitted when the endpoint receives a request. The context
// carries the request id.
type HTTPStart struct {
	Request *http.Request
}

// HTTPFinish is emitted once the response is written. Operations counts the
// documents executed, so it is the batch length for ModeBatch and 0 for
// ModeGraphiQL and ModeRejected. For websockets it is emitted when the
// connection closes.
type HTTPFinish struct {
	Request    *http.Request
	Mode       Mode
	Status     int
	Operations int
	Duration   time.Duration
}
