// Package executortest provides a scripted executor.Runtime that records
// every resolution it performs.
package executortest

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/hanpama/reflectgraph/internal/executor"
)

// Resolver produces the value of one field for one source.
type Resolver func(ctx context.Context, source any, args map[string]any) (any, error)

// Value returns a Resolver that always yields v.
func Value(v any) Resolver {
	return func(context.Context, any, map[string]any) (any, error) { return v, nil }
}

// Fail returns a Resolver that always fails with err.
func Fail(err error) Resolver {
	return func(context.Context, any, map[string]any) (any, error) { return nil, err }
}

type CallKind string

const (
	Sync  CallKind = "sync"
	Async CallKind = "async"
)

// Call is one recorded resolution. Batch numbers the BatchResolveAsync calls
// from 1 and is 0 for sync resolutions.
type Call struct {
	Kind       CallKind
	ObjectType string
	Field      string
	Source     any
	Args       map[string]any
	Batch      int
}

// Runtime resolves fields from a table keyed by "Type.field". Fields
// without an entry resolve to nil. Abstract values are typed by their
// "__typename" key and leaves pass through unless overridden.
type Runtime struct {
	mu        sync.Mutex
	resolvers map[string]Resolver
	calls     []Call
	batches   int

	typeOf    func(value any) (string, error)
	serialize func(typeName string, value any) (any, error)
}

var _ executor.Runtime = (*Runtime)(nil)

func New(resolvers map[string]Resolver) *Runtime {
	r := &Runtime{resolvers: make(map[string]Resolver, len(resolvers))}
	for k, v := range resolvers {
		r.resolvers[k] = v
	}
	return r
}

// Handle sets the resolver of objectType.field.
func (r *Runtime) Handle(objectType, field string, fn Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolvers[objectType+"."+field] = fn
}

// ResolveTypeWith replaces the "__typename" lookup.
func (r *Runtime) ResolveTypeWith(fn func(value any) (string, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.typeOf = fn
}

// SerializeWith replaces the pass-through leaf serializer.
func (r *Runtime) SerializeWith(fn func(typeName string, value any) (any, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.serialize = fn
}

// Calls returns the recorded resolutions in order.
func (r *Runtime) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Reset forgets recorded calls and restarts batch numbering.
func (r *Runtime) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
	r.batches = 0
}

func (r *Runtime) lookup(objectType, field string) Resolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolvers[objectType+"."+field]
}

func (r *Runtime) record(c Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

func (r *Runtime) ResolveSync(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	r.record(Call{Kind: Sync, ObjectType: objectType, Field: field, Source: source, Args: args})
	if fn := r.lookup(objectType, field); fn != nil {
		return fn(ctx, source, args)
	}
	return nil, nil
}

func (r *Runtime) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	r.mu.Lock()
	r.batches++
	batch := r.batches
	r.mu.Unlock()

	results := make([]executor.AsyncResolveResult, len(tasks))
	for i, t := range tasks {
		r.record(Call{Kind: Async, ObjectType: t.ObjectType, Field: t.Field, Source: t.Source, Args: t.Args, Batch: batch})
		if fn := r.lookup(t.ObjectType, t.Field); fn != nil {
			results[i].Value, results[i].Error = fn(ctx, t.Source, t.Args)
		}
	}
	return results
}

func (r *Runtime) ResolveType(_ context.Context, abstractType string, value any) (string, error) {
	r.mu.Lock()
	typeOf := r.typeOf
	r.mu.Unlock()
	if typeOf != nil {
		return typeOf(value)
	}
	if m, ok := value.(map[string]any); ok {
		if name, ok := m["__typename"].(string); ok {
			return name, nil
		}
	}
	return "", errors.Newf("cannot resolve type of %T for %s", value, abstractType)
}

func (r *Runtime) ResolveUnionConcreteValue(_ context.Context, _ string, value any) (any, error) {
	return value, nil
}

func (r *Runtime) ResolveInterfaceConcreteValue(_ context.Context, _ string, value any) (any, error) {
	return value, nil
}

func (r *Runtime) SerializeLeafValue(_ context.Context, typeName string, value any) (any, error) {
	r.mu.Lock()
	serialize := r.serialize
	r.mu.Unlock()
	if serialize == nil {
		return value, nil
	}
	return serialize(typeName, value)
}
