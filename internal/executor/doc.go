// Package executor runs GraphQL operations against a schema.Schema, drawing
// values from a Runtime.
//
// Execution proceeds one response depth at a time. Fields whose definition is
// not Async are resolved inline through Runtime.ResolveSync, and their object
// results are expanded immediately, so a chain of sync fields never adds a
// depth. Async fields are queued instead. Once a depth has been expanded the
// queue is handed to Runtime.BatchResolveAsync in a single call, and the
// completed results seed the next depth. A runtime therefore sees every async
// field of a depth together and can batch by coordinates or backend.
//
// Completion follows the usual GraphQL rules. Leaves go through
// Runtime.SerializeLeafValue, lists complete item by item and interface or
// union values are resolved to an object type with Runtime.ResolveType. A
// null in a non-null position is reported once at the failing path and
// propagates to the top level response field it belongs to. That field is
// then recorded as pruned and queued tasks beneath it are dropped before the
// next batch is sent.
//
// Errors are collected with their response paths and returned next to
// partial data. Failures before execution starts (an unknown operation or
// variables that cannot be coerced) produce a result with nil Data.
//
// Mutations are executed with the same loop; the root fields of a depth
// reach the runtime in document order.
//
// # Subscriptions
//
// Executor.Subscribe resolves the single root field of a subscription to an
// eventsource.Source and wraps it in a ResponseStream. Every event pulled from
// the stream is completed against the root field's selection set with its own
// error list, so one event's errors never leak into the next. A source error
// ends the stream after one result that carries the error.
package executor
