// Package reqid carries a per-request identifier through contexts. Every
// event published for a request is correlated by this id.
package reqid

import (
	"context"

	"github.com/google/uuid"
)

type key struct{}

// Header is the HTTP header and gRPC metadata key the id travels under.
const Header = "graphql-request-id"

// NewContext returns a copy of parent carrying a fresh id.
func NewContext(parent context.Context) (context.Context, string) {
	id := uuid.NewString()
	return WithID(parent, id), id
}

// WithID returns a copy of parent carrying id. An incoming id that is not a
// valid UUID is replaced.
func WithID(parent context.Context, id string) context.Context {
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}
	return context.WithValue(parent, key{}, id)
}

// FromContext extracts the id from ctx.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(key{}).(string)
	return id, ok
}
