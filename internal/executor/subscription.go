package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"

	"github.com/hanpama/reflectgraph/internal/eventsource"
	language "github.com/hanpama/reflectgraph/internal/language"
	schema "github.com/hanpama/reflectgraph/internal/schema"
)

// Subscribe resolves the root subscription field to an event source and
// returns a stream producing one result per event.
//
// The root field is resolved through the Runtime exactly like a query root
// field (ResolveSync or a single-task BatchResolveAsync, depending on
// Field.Async). Its value must be accepted by eventsource.From. When it is not,
// or when resolution fails, Subscribe returns a nil stream and a result with
// nil Data carrying the errors.
func (e *Executor) Subscribe(
	ctx context.Context,
	document *language.QueryDocument,
	operationName string,
	variableValues map[string]any,
	initialValue any,
) (*ResponseStream, *ExecutionResult) {
	op, failed := e.prepare(document, operationName, variableValues)
	if failed != nil {
		return nil, failed
	}
	if op.definition.Operation != language.Subscription {
		return nil, failure(fmt.Sprintf("expected subscription operation, got %s", op.definition.Operation))
	}
	ex := op.begin(ctx)

	groups := ex.collectFields(op.rootType, op.definition.SelectionSet)
	if len(groups) != 1 {
		return nil, failure("subscription must select exactly one top level field")
	}
	root := groups[0]
	path := Path{root.responseName}
	fieldDef := op.rootType.Field(root.fields[0].Name)
	if fieldDef == nil {
		return nil, &ExecutionResult{Errors: []GraphQLError{{
			Message: fmt.Sprintf("Cannot query field '%s' on type '%s'", root.fields[0].Name, op.rootType.Name),
			Path:    path,
		}}}
	}

	value, err := ex.resolveRoot(fieldDef, root.fields[0], initialValue)
	if err != nil {
		ex.addError(err.Error(), path)
		return nil, &ExecutionResult{Errors: ex.errors}
	}

	src, ok := eventsource.From(value)
	if !ok {
		ex.addError(fmt.Sprintf("Subscription field '%s' must return an event source, got %T", fieldDef.Name, value), path)
		return nil, &ExecutionResult{Errors: ex.errors}
	}
	return &ResponseStream{
		op:           op,
		responseName: root.responseName,
		fields:       root.fields,
		fieldDef:     fieldDef,
		source:       src,
	}, nil
}

// ResponseStream delivers per-event execution results in arrival order.
// Results are computed lazily when Next is called. It is safe to call Close
// concurrently with Next; Next itself must not be called concurrently.
type ResponseStream struct {
	op           *operation
	responseName string
	fields       []*language.Field
	fieldDef     *schema.Field
	source       eventsource.Source

	mu     sync.Mutex
	done   bool
	closed sync.Once
}

// ResponseName is the alias of the root field if present, else its name.
func (s *ResponseStream) ResponseName() string { return s.responseName }

// Next waits for the next event and executes the selection set against it.
// It returns io.EOF once the source completes or the stream is closed. A
// failing source produces one final result carrying the error with nil Data;
// the following call returns io.EOF. Cancellation of ctx closes the stream
// and returns ctx.Err().
func (s *ResponseStream) Next(ctx context.Context) (*ExecutionResult, error) {
	if s.isDone() {
		return nil, io.EOF
	}

	event, err := s.source.Next(ctx)
	if s.isDone() {
		return nil, io.EOF
	}
	if err != nil {
		s.Close()
		switch {
		case errors.Is(err, io.EOF):
			return nil, io.EOF
		case ctx.Err() != nil:
			return nil, ctx.Err()
		}
		return &ExecutionResult{Errors: []GraphQLError{{Message: err.Error(), Path: Path{s.responseName}}}}, nil
	}
	return s.execute(ctx, event), nil
}

func (s *ResponseStream) isDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// All iterates over the remaining results. Breaking out of the loop closes
// the stream.
func (s *ResponseStream) All(ctx context.Context) iter.Seq[*ExecutionResult] {
	return func(yield func(*ExecutionResult) bool) {
		defer s.Close()
		for {
			res, err := s.Next(ctx)
			if err != nil {
				return
			}
			if !yield(res) {
				return
			}
		}
	}
}

// Close releases the event source. Pending and later Next calls return io.EOF.
func (s *ResponseStream) Close() error {
	var err error
	s.closed.Do(func() {
		s.mu.Lock()
		s.done = true
		s.mu.Unlock()
		err = s.source.Close()
	})
	return err
}

// resolveRoot resolves the subscription field itself, through a single task
// batch when the field is async.
func (ex *execution) resolveRoot(def *schema.Field, field *language.Field, source any) (any, error) {
	args, err := ex.coerceArguments(def, field.Arguments)
	if err != nil {
		return nil, err
	}
	if !def.Async {
		return ex.runtime.ResolveSync(ex.ctx, ex.rootType.Name, def.Name, source, args)
	}
	results := ex.runtime.BatchResolveAsync(ex.ctx, []AsyncResolveTask{{
		ObjectType: ex.rootType.Name,
		Field:      def.Name,
		Source:     source,
		Args:       args,
	}})
	if len(results) != 1 {
		return nil, fmt.Errorf("expected 1 result for %s, got %d", def.Name, len(results))
	}
	return results[0].Value, results[0].Error
}

// execute completes the root field's selection set with event as the
// field's value. Every event gets a fresh execution.
func (s *ResponseStream) execute(ctx context.Context, event any) *ExecutionResult {
	ex := s.op.begin(ctx)
	path := Path{s.responseName}
	data := map[string]any{s.responseName: nil}
	if completed := ex.complete(s.fieldDef.Type, s.fields, event, path, path); !isNullish(completed) {
		data[s.responseName] = completed
	}
	ex.drain(data)
	return &ExecutionResult{Data: data, Errors: ex.errors}
}
