package executor

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	language "github.com/hanpama/reflectgraph/internal/language"
	schema "github.com/hanpama/reflectgraph/internal/schema"
)

// Path locates a value in the response. Elements are field response names
// (string) and list indices (int).
type Path []PathElement

type PathElement any

// String renders the path the way error messages print it, e.g.
// "books[1].title".
func (p Path) String() string {
	var b strings.Builder
	for _, elem := range p {
		switch v := elem.(type) {
		case int:
			b.WriteString("[" + strconv.Itoa(v) + "]")
		default:
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			fmt.Fprint(&b, v)
		}
	}
	return b.String()
}

// with returns a copy of p extended by elem.
func (p Path) with(elem PathElement) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, elem)
}

type Executor struct {
	runtime Runtime
	schema  *schema.Schema
}

func NewExecutor(runtime Runtime, sch *schema.Schema) *Executor {
	return &Executor{runtime: runtime, schema: sch}
}

// ExecuteRequest executes a query or mutation. initialValue is the source of
// the root fields.
func (e *Executor) ExecuteRequest(
	ctx context.Context,
	document *language.QueryDocument,
	operationName string,
	variableValues map[string]any,
	initialValue any,
) *ExecutionResult {
	op, failed := e.prepare(document, operationName, variableValues)
	if failed != nil {
		return failed
	}
	ex := op.begin(ctx)
	data := ex.selectionSet(op.rootType, op.definition.SelectionSet, initialValue, Path{}, nil)
	ex.drain(data)
	return &ExecutionResult{Data: data, Errors: ex.errors}
}

// operation is a selected operation with coerced variables. It is shared by
// a request and, for subscriptions, by every event of the stream.
type operation struct {
	runtime    Runtime
	schema     *schema.Schema
	document   *language.QueryDocument
	definition *language.OperationDefinition
	variables  map[string]any
	rootType   *schema.Type
}

// prepare picks the operation, coerces its variables and finds its root
// type. Failures come back as a result without data.
func (e *Executor) prepare(document *language.QueryDocument, operationName string, variableValues map[string]any) (*operation, *ExecutionResult) {
	def := language.SelectOperation(document, operationName)
	if def == nil {
		return nil, failure("operation not found")
	}
	variables, err := coerceVariableValues(e.schema, def, variableValues)
	if err != nil {
		return nil, failure(err.Error())
	}

	var root *schema.Type
	switch def.Operation {
	case language.Query:
		root = e.schema.GetQueryType()
	case language.Mutation:
		root = e.schema.GetMutationType()
	case language.Subscription:
		root = e.schema.GetSubscriptionType()
	default:
		return nil, failure(fmt.Sprintf("unsupported operation type: %s", def.Operation))
	}
	if root == nil {
		return nil, failure(fmt.Sprintf("root type not found for %s operation", def.Operation))
	}
	return &operation{
		runtime:    e.runtime,
		schema:     e.schema,
		document:   document,
		definition: def,
		variables:  variables,
		rootType:   root,
	}, nil
}

func failure(message string) *ExecutionResult {
	return &ExecutionResult{Errors: []GraphQLError{{Message: message}}}
}

// execution is the mutable state of one result: one per request and one per
// subscription event.
type execution struct {
	*operation
	ctx     context.Context
	errors  []GraphQLError
	failed  map[string]bool
	pending []pendingField
}

// pendingField is an async field waiting for the next batch. anchor is the
// position that becomes null if the field yields an invalid null.
type pendingField struct {
	task   AsyncResolveTask
	path   Path
	anchor Path
	typ    *schema.TypeRef
	fields []*language.Field
}

// deferred marks a response slot whose value arrives with a later batch.
type deferred struct{}

func (op *operation) begin(ctx context.Context) *execution {
	return &execution{
		operation: op,
		ctx:       ctx,
		errors:    []GraphQLError{},
		failed:    make(map[string]bool),
	}
}

func (ex *execution) addError(message string, path Path) {
	ex.errors = append(ex.errors, GraphQLError{Message: message, Path: path})
	ex.failed[path.String()] = true
}

// selectionSet resolves the fields of one object. A nil map tells the caller
// that a non-null field came back null. At the root (empty path) such
// fields are written as null instead so data stays an object.
func (ex *execution) selectionSet(objectType *schema.Type, set language.SelectionSet, source any, path, anchor Path) map[string]any {
	out := make(map[string]any)
	for _, group := range ex.collectFields(objectType, set) {
		fieldPath := path.with(group.responseName)
		fieldAnchor := anchor
		if len(path) == 0 {
			fieldAnchor = fieldPath
		}

		if group.fields[0].Name == "__typename" {
			out[group.responseName] = objectType.Name
			continue
		}
		def := objectType.Field(group.fields[0].Name)
		if def == nil {
			ex.addError(fmt.Sprintf("Cannot query field '%s' on type '%s'", group.fields[0].Name, objectType.Name), fieldPath)
			continue
		}

		value := ex.field(objectType, def, source, group.fields, fieldPath, fieldAnchor)
		if _, ok := value.(deferred); ok {
			out[group.responseName] = nil
			continue
		}
		if isNullish(value) {
			if def.Type.IsNonNull() && len(path) > 0 {
				return nil
			}
			value = nil
		}
		out[group.responseName] = value
	}
	return out
}

// field resolves and completes one field, or queues it when it is async.
func (ex *execution) field(objectType *schema.Type, def *schema.Field, source any, fields []*language.Field, path, anchor Path) any {
	args, err := ex.coerceArguments(def, fields[0].Arguments)
	if err != nil {
		ex.addError(err.Error(), path)
		return ex.complete(def.Type, fields, nil, path, anchor)
	}
	if def.Async {
		ex.pending = append(ex.pending, pendingField{
			task:   AsyncResolveTask{ObjectType: objectType.Name, Field: def.Name, Source: source, Args: args},
			path:   path,
			anchor: anchor,
			typ:    def.Type,
			fields: fields,
		})
		return deferred{}
	}
	value, err := ex.runtime.ResolveSync(ex.ctx, objectType.Name, def.Name, source, args)
	if err != nil {
		ex.addError(err.Error(), path)
		value = nil
	}
	return ex.complete(def.Type, fields, value, path, anchor)
}

// drain sends queued fields to the runtime one depth at a time until no
// work is left. Fields whose parent is no longer present in data, because a
// null propagated over it, are dropped.
func (ex *execution) drain(data map[string]any) {
	for len(ex.pending) > 0 {
		batch := make([]pendingField, 0, len(ex.pending))
		for _, p := range ex.pending {
			if live(data, p.path) {
				batch = append(batch, p)
			}
		}
		ex.pending = nil
		if len(batch) == 0 {
			return
		}

		tasks := make([]AsyncResolveTask, len(batch))
		for i, p := range batch {
			tasks[i] = p.task
		}
		results := ex.runtime.BatchResolveAsync(ex.ctx, tasks)
		for i, p := range batch {
			var res AsyncResolveResult
			if i < len(results) {
				res = results[i]
			} else {
				res.Error = fmt.Errorf("no result for %s.%s", p.task.ObjectType, p.task.Field)
			}
			ex.settle(data, p, res)
		}
	}
}

// settle completes one batched result and writes it into data.
func (ex *execution) settle(data map[string]any, p pendingField, res AsyncResolveResult) {
	if !live(data, p.path) {
		return
	}
	var completed any
	if res.Error != nil {
		ex.addError(res.Error.Error(), p.path)
	} else {
		completed = ex.complete(p.typ, p.fields, res.Value, p.path, p.anchor)
	}
	if isNullish(completed) {
		if p.typ.IsNonNull() {
			setAt(data, p.anchor, nil)
			return
		}
		completed = nil
	}
	setAt(data, p.path, completed)
}

// complete turns a resolved value into its response form. anchor is the
// nearest enclosing position that may hold null.
func (ex *execution) complete(typ *schema.TypeRef, fields []*language.Field, value any, path, anchor Path) any {
	if typ.IsNonNull() {
		if isNullish(value) {
			if !ex.failed[path.String()] {
				ex.addError(fmt.Sprintf("Cannot return null for non-nullable field %s", path), path)
			}
			return nil
		}
		return ex.completeValue(typ.OfType, fields, value, path, anchor)
	}
	if isNullish(value) {
		return nil
	}
	return ex.completeValue(typ, fields, value, path, path)
}

func (ex *execution) completeValue(typ *schema.TypeRef, fields []*language.Field, value any, path, anchor Path) any {
	if typ.Kind == schema.TypeRefKindList {
		return ex.completeList(typ.OfType, fields, value, path, anchor)
	}
	name := typ.GetNamedType()
	def := ex.schema.Types[name]
	if def == nil {
		ex.addError(fmt.Sprintf("Unknown type: %s", name), path)
		return nil
	}
	switch def.Kind {
	case schema.TypeKindScalar, schema.TypeKindEnum:
		out, err := ex.runtime.SerializeLeafValue(ex.ctx, name, value)
		if err != nil {
			ex.addError(err.Error(), path)
			return nil
		}
		return out
	case schema.TypeKindObject:
		return ex.selectionSet(def, mergeSelectionSets(fields), value, path, anchor)
	case schema.TypeKindInterface, schema.TypeKindUnion:
		object, concrete, err := ex.resolveAbstract(def, value)
		if err != nil {
			ex.addError(err.Error(), path)
			return nil
		}
		return ex.selectionSet(object, mergeSelectionSets(fields), concrete, path, anchor)
	}
	ex.addError(fmt.Sprintf("Cannot complete value of unexpected type: %s", def.Kind), path)
	return nil
}

func (ex *execution) completeList(item *schema.TypeRef, fields []*language.Field, value any, path, anchor Path) any {
	items, ok := listItems(value)
	if !ok {
		ex.addError(fmt.Sprintf("Expected list value, got %T", value), path)
		return nil
	}
	out := make([]any, len(items))
	for i, v := range items {
		completed := ex.complete(item, fields, v, path.with(i), anchor)
		if isNullish(completed) {
			if item.IsNonNull() {
				return nil
			}
			completed = nil
		}
		out[i] = completed
	}
	return out
}

// resolveAbstract finds the object type of an interface or union value and
// the source to complete it with.
func (ex *execution) resolveAbstract(abstract *schema.Type, value any) (*schema.Type, any, error) {
	name, err := ex.runtime.ResolveType(ex.ctx, abstract.Name, value)
	if err != nil {
		return nil, nil, err
	}
	object := ex.schema.Types[name]
	if object == nil || object.Kind != schema.TypeKindObject {
		return nil, nil, fmt.Errorf("Abstract type %s must resolve to an Object type at runtime. Got: %s", abstract.Name, name)
	}
	if !possibleType(abstract, object) {
		return nil, nil, fmt.Errorf("Runtime Object type %s is not a possible type for %s", name, abstract.Name)
	}
	var concrete any
	if abstract.Kind == schema.TypeKindUnion {
		concrete, err = ex.runtime.ResolveUnionConcreteValue(ex.ctx, abstract.Name, value)
	} else {
		concrete, err = ex.runtime.ResolveInterfaceConcreteValue(ex.ctx, abstract.Name, value)
	}
	if err != nil {
		return nil, nil, err
	}
	return object, concrete, nil
}

// listItems accepts []any and any other slice or array kind.
func listItems(value any) ([]any, bool) {
	if items, ok := value.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

// container returns the map or slice that holds the value at path.
func container(data map[string]any, path Path) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	var cur any = data
	for _, elem := range path[:len(path)-1] {
		switch e := elem.(type) {
		case string:
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			cur = m[e]
		case int:
			s, ok := cur.([]any)
			if !ok || e >= len(s) {
				return nil, false
			}
			cur = s[e]
		}
	}
	return cur, cur != nil
}

// live reports whether a value can still be written at path.
func live(data map[string]any, path Path) bool {
	c, ok := container(data, path)
	if !ok {
		return false
	}
	switch e := path[len(path)-1].(type) {
	case string:
		_, ok = c.(map[string]any)
	case int:
		s, isSlice := c.([]any)
		ok = isSlice && e < len(s)
	}
	return ok
}

// setAt writes value at path. Missing parents are not created.
func setAt(data map[string]any, path Path, value any) {
	c, ok := container(data, path)
	if !ok {
		return
	}
	switch e := path[len(path)-1].(type) {
	case string:
		if m, ok := c.(map[string]any); ok {
			m[e] = value
		}
	case int:
		if s, ok := c.([]any); ok && e < len(s) {
			s[e] = value
		}
	}
}

func mergeSelectionSets(fields []*language.Field) language.SelectionSet {
	var merged language.SelectionSet
	for _, f := range fields {
		merged = append(merged, f.SelectionSet...)
	}
	return merged
}

// isNullish is true for nil and for typed nil pointers, maps, slices and the
// like.
func isNullish(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
