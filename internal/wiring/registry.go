// Package wiring holds the value producers of a generated schema and serves
// them to the executor as its Runtime.
package wiring

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hanpama/reflectgraph/internal/executor"
	"golang.org/x/sync/errgroup"
)

// Producer resolves one field for one source value.
type Producer func(ctx context.Context, source any, args map[string]any) (any, error)

// Coordinates identify a field of a named type. Field is empty when the
// coordinates denote the type itself.
type Coordinates struct {
	Type  string
	Field string
}

func (c Coordinates) String() string {
	if c.Field == "" {
		return c.Type
	}
	return c.Type + "." + c.Field
}

// Serializer converts a leaf value into a JSON-safe value.
type Serializer func(value any) (any, error)

// TypeResolver names the concrete object type of value. It reports false
// when it does not recognize the value.
type TypeResolver func(value any) (string, bool)

// Registry maps field coordinates to producers. It is safe for concurrent
// use once the schema is built.
type Registry struct {
	mu          sync.RWMutex
	producers   map[Coordinates]Producer
	serializers map[string]Serializer
	resolvers   []TypeResolver
	limit       int
}

// Option configures a Registry.
type Option func(*Registry)

// WithConcurrency bounds the number of producers running at once within one
// batch. Zero or negative means unbounded.
func WithConcurrency(n int) Option { return func(r *Registry) { r.limit = n } }

// New returns an empty registry with the built-in scalar serializers.
func New(opts ...Option) *Registry {
	r := &Registry{
		producers:   make(map[Coordinates]Producer),
		serializers: make(map[string]Serializer),
	}
	for name, s := range builtinSerializers {
		r.serializers[name] = s
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register sets the producer for coords, replacing any previous one.
func (r *Registry) Register(coords Coordinates, p Producer) {
	r.mu.Lock()
	r.producers[coords] = p
	r.mu.Unlock()
}

// Lookup returns the producer for coords.
func (r *Registry) Lookup(coords Coordinates) (Producer, bool) {
	r.mu.RLock()
	p, ok := r.producers[coords]
	r.mu.RUnlock()
	return p, ok
}

// Wrap replaces the producer at coords with wrap(current). It reports false
// if no producer is registered there.
func (r *Registry) Wrap(coords Coordinates, wrap func(Producer) Producer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.producers[coords]
	if !ok {
		return false
	}
	r.producers[coords] = wrap(p)
	return true
}

// Coordinates returns all registered coordinates in sorted order.
func (r *Registry) Coordinates() []Coordinates {
	r.mu.RLock()
	out := make([]Coordinates, 0, len(r.producers))
	for c := range r.producers {
		out = append(out, c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Field < out[j].Field
	})
	return out
}

// SetSerializer registers the serializer of a scalar or enum type.
func (r *Registry) SetSerializer(typeName string, s Serializer) {
	r.mu.Lock()
	r.serializers[typeName] = s
	r.mu.Unlock()
}

// AddTypeResolver appends a resolver consulted for abstract types. Resolvers
// are tried in registration order.
func (r *Registry) AddTypeResolver(tr TypeResolver) {
	r.mu.Lock()
	r.resolvers = append(r.resolvers, tr)
	r.mu.Unlock()
}

var _ executor.Runtime = (*Registry)(nil)

func (r *Registry) ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error) {
	p, ok := r.Lookup(Coordinates{Type: objectType, Field: field})
	if !ok {
		return nil, fmt.Errorf("no producer for %s.%s", objectType, field)
	}
	return p(ctx, source, args)
}

// BatchResolveAsync runs every task concurrently. A failing task does not
// cancel the others.
func (r *Registry) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	results := make([]executor.AsyncResolveResult, len(tasks))
	var g errgroup.Group
	if r.limit > 0 {
		g.SetLimit(r.limit)
	}
	for i, task := range tasks {
		g.Go(func() error {
			v, err := r.ResolveSync(ctx, task.ObjectType, task.Field, task.Source, task.Args)
			results[i] = executor.AsyncResolveResult{Value: v, Error: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *Registry) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	r.mu.RLock()
	resolvers := r.resolvers
	r.mu.RUnlock()
	for _, tr := range resolvers {
		if name, ok := tr(value); ok {
			return name, nil
		}
	}
	return "", fmt.Errorf("cannot resolve concrete type of %s for %T", abstractType, value)
}

func (r *Registry) ResolveUnionConcreteValue(ctx context.Context, unionTypeName string, value any) (any, error) {
	return value, nil
}

func (r *Registry) ResolveInterfaceConcreteValue(ctx context.Context, interfaceTypeName string, value any) (any, error) {
	return value, nil
}

// SerializeLeafValue applies the serializer registered for the type. Types
// without one pass through unchanged.
func (r *Registry) SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error) {
	r.mu.RLock()
	s, ok := r.serializers[scalarOrEnumTypeName]
	r.mu.RUnlock()
	if !ok {
		return value, nil
	}
	return s(value)
}
