// Package envelope is the wire form of a GraphQL response: data, errors and
// extensions. Decoding ignores members it does not know.
package envelope

import (
	"bytes"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/hanpama/reflectgraph/internal/executor"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Response is a GraphQL response. Data is null when the operation failed
// before producing any result.
type Response struct {
	Data       any            `json:"data"`
	Errors     []Error        `json:"errors,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Error is a GraphQL error. Path holds field names and list indices; it is
// absent for errors raised before field resolution.
type Error struct {
	Message    string         `json:"message"`
	Locations  []Location     `json:"locations,omitempty"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

func (e Error) Error() string { return e.Message }

// HasErrors reports whether r carries at least one error.
func (r *Response) HasErrors() bool { return r != nil && len(r.Errors) > 0 }

// Failure returns a response with no data and a single error.
func Failure(message string) *Response {
	return &Response{Errors: []Error{{Message: message}}}
}

// FromResult converts an execution result. Empty error lists and extension
// maps are dropped so they are omitted from the wire.
func FromResult(res *executor.ExecutionResult) *Response {
	if res == nil {
		return &Response{}
	}
	out := &Response{Data: res.Data}
	if len(res.Extensions) > 0 {
		out.Extensions = res.Extensions
	}
	if len(res.Errors) == 0 {
		return out
	}
	out.Errors = make([]Error, len(res.Errors))
	for i, e := range res.Errors {
		out.Errors[i] = FromGraphQLError(e)
	}
	return out
}

// FromGraphQLError converts an executor error.
func FromGraphQLError(e executor.GraphQLError) Error {
	out := Error{Message: e.Message}
	if len(e.Extensions) > 0 {
		out.Extensions = e.Extensions
	}
	for _, l := range e.Locations {
		out.Locations = append(out.Locations, Location{Line: l.Line, Column: l.Column})
	}
	if len(e.Path) > 0 {
		out.Path = make([]any, len(e.Path))
		for i, p := range e.Path {
			out.Path[i] = pathElement(p)
		}
	}
	return out
}

// FromGQLError converts a parser or validator error, keeping its locations.
func FromGQLError(e *gqlerror.Error) Error {
	out := Error{Message: e.Message}
	if len(e.Extensions) > 0 {
		out.Extensions = e.Extensions
	}
	for _, l := range e.Locations {
		out.Locations = append(out.Locations, Location{Line: l.Line, Column: l.Column})
	}
	for _, p := range e.Path {
		switch p := p.(type) {
		case ast.PathName:
			out.Path = append(out.Path, string(p))
		case ast.PathIndex:
			out.Path = append(out.Path, int(p))
		}
	}
	return out
}

// FromError converts err into a failed response. Parser error lists keep
// every entry.
func FromError(err error) *Response {
	var list gqlerror.List
	if errors.As(err, &list) && len(list) > 0 {
		out := &Response{Errors: make([]Error, len(list))}
		for i, e := range list {
			out.Errors[i] = FromGQLError(e)
		}
		return out
	}
	var ge *gqlerror.Error
	if errors.As(err, &ge) {
		return &Response{Errors: []Error{FromGQLError(ge)}}
	}
	return Failure(err.Error())
}

// pathElement normalizes path entries to string or int.
func pathElement(p any) any {
	switch v := p.(type) {
	case string, int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	b, _ := json.Marshal(p)
	return string(b)
}

// Decode parses a response. Numbers in data stay json.Number so integers
// survive untouched.
func Decode(b []byte) (*Response, error) {
	var r Response
	if err := unmarshal(b, &r); err != nil {
		return nil, errors.Wrap(err, "decoding response")
	}
	for i := range r.Errors {
		for j, p := range r.Errors[i].Path {
			if n, ok := p.(json.Number); ok {
				if v, err := n.Int64(); err == nil {
					r.Errors[i].Path[j] = int(v)
				}
			}
		}
	}
	return &r, nil
}

func unmarshal(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	return dec.Decode(v)
}

// Typed is a response whose data decodes into T.
type Typed[T any] struct {
	Data       *T             `json:"data"`
	Errors     []Error        `json:"errors,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// DecodeTyped parses a response into a Typed[T].
func DecodeTyped[T any](b []byte) (*Typed[T], error) {
	var r Typed[T]
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, errors.Wrap(err, "decoding response")
	}
	return &r, nil
}

// Err joins the response errors, or returns nil.
func (r *Typed[T]) Err() error {
	if r == nil || len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}
