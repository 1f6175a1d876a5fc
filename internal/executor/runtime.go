package executor

import "context"

// Runtime is what the executor calls into to produce values. One Runtime
// serves many concurrent operations, so implementations must be safe for
// concurrent use and must not mutate sources or arguments.
//
// Field coordinates are (objectType, field) by GraphQL name; root fields use
// the root type name and a nil source unless the caller supplied an initial
// value. Arguments arrive already coerced, with defaults applied.
type Runtime interface {
	// ResolveSync produces the value of a field whose definition is not
	// Async. A nil value with a nil error becomes GraphQL null.
	ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error)

	// BatchResolveAsync produces the values of every Async field found at one
	// depth of the response. It is called once per depth, never with an empty
	// slice, and must return exactly one result per task in task order. A
	// failing task does not fail its neighbours.
	BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult

	// ResolveType names the object type of a value returned for an interface
	// or union field. The name must be one of the abstract type's possible
	// types.
	ResolveType(ctx context.Context, abstractType string, value any) (string, error)

	// ResolveUnionConcreteValue and ResolveInterfaceConcreteValue unwrap an
	// abstract value into the source used for its concrete object type.
	ResolveUnionConcreteValue(ctx context.Context, unionTypeName string, value any) (any, error)
	ResolveInterfaceConcreteValue(ctx context.Context, interfaceTypeName string, value any) (any, error)

	// SerializeLeafValue turns a scalar or enum value into a JSON ready value.
	// Enums serialize to their GraphQL name.
	SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error)
}

// AsyncResolveTask is one deferred field resolution.
type AsyncResolveTask struct {
	ObjectType string
	Field      string
	Source     any
	Args       map[string]any
}

// AsyncResolveResult pairs with the task at the same index.
type AsyncResolveResult struct {
	Value any
	Error error
}
