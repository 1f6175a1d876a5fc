package executor

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"

	"github.com/cockroachdb/errors"

	language "github.com/hanpama/reflectgraph/internal/language"
	schema "github.com/hanpama/reflectgraph/internal/schema"
)

// coerceVariableValues checks the provided variables against the operation's
// definitions and applies their defaults. Variables that are neither
// provided nor defaulted are left out of the result.
func coerceVariableValues(sch *schema.Schema, def *language.OperationDefinition, provided map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(def.VariableDefinitions))
	for _, v := range def.VariableDefinitions {
		typ := schema.TypeRefFromAST(v.Type)
		value, ok := provided[v.Variable]
		if !ok {
			switch {
			case v.DefaultValue != nil:
				value = valueFromAST(v.DefaultValue, nil)
			case typ.IsNonNull():
				return nil, errors.Newf("variable $%s of required type %s was not provided", v.Variable, typ)
			default:
				continue
			}
		}
		coerced, err := coerceInput(sch, value, typ)
		if err != nil {
			return nil, errors.Wrapf(err, "variable $%s of type %s cannot be coerced", v.Variable, typ)
		}
		out[v.Variable] = coerced
	}
	return out, nil
}

// coerceArguments builds the argument map of a field from its AST arguments.
// An argument bound to a variable that was never provided counts as absent.
func (ex *execution) coerceArguments(def *schema.Field, args language.ArgumentList) (map[string]any, error) {
	out := make(map[string]any, len(def.Arguments))
	for _, in := range def.Arguments {
		var value any
		present := false
		if arg := args.ForName(in.Name); arg != nil {
			if arg.Value.Kind == language.Variable {
				value, present = ex.variables[arg.Value.Raw]
			} else {
				value, present = valueFromAST(arg.Value, ex.variables), true
			}
		}
		if !present {
			if in.DefaultValue == nil {
				if in.Type.IsNonNull() {
					return nil, errors.Newf("argument '%s' of required type %s was not provided", in.Name, in.Type)
				}
				continue
			}
			value = in.DefaultValue
		}
		coerced, err := coerceInput(ex.schema, value, in.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "argument '%s' cannot be coerced", in.Name)
		}
		out[in.Name] = coerced
	}
	return out, nil
}

// valueFromAST converts a literal to its Go form, substituting variables.
// Object fields bound to absent variables are dropped.
func valueFromAST(v *language.Value, variables map[string]any) any {
	if v == nil {
		return nil
	}
	switch v.Kind {
	case language.Variable:
		return variables[v.Raw]
	case language.IntValue:
		if n, err := strconv.Atoi(v.Raw); err == nil {
			return n
		}
		f, _ := strconv.ParseFloat(v.Raw, 64)
		return f
	case language.FloatValue:
		f, _ := strconv.ParseFloat(v.Raw, 64)
		return f
	case language.BooleanValue:
		return v.Raw == "true"
	case language.NullValue:
		return nil
	case language.ListValue:
		items := make([]any, len(v.Children))
		for i, c := range v.Children {
			items[i] = valueFromAST(c.Value, variables)
		}
		return items
	case language.ObjectValue:
		fields := make(map[string]any, len(v.Children))
		for _, c := range v.Children {
			if c.Value.Kind == language.Variable {
				if _, ok := variables[c.Value.Raw]; !ok {
					continue
				}
			}
			fields[c.Name] = valueFromAST(c.Value, variables)
		}
		return fields
	}
	// strings, block strings and enum names
	return v.Raw
}

// coerceInput validates value against an input type and converts it to the
// canonical Go form: int for Int, float64 for Float, string for String, ID
// and enums, bool for Boolean, []any for lists and map[string]any for input
// objects. Custom scalars pass through unchanged.
func coerceInput(sch *schema.Schema, value any, typ *schema.TypeRef) (any, error) {
	if typ.IsNonNull() {
		if value == nil {
			return nil, errors.New("cannot provide null for non-null type")
		}
		return coerceInput(sch, value, typ.OfType)
	}
	if value == nil {
		return nil, nil
	}
	if typ.Kind == schema.TypeRefKindList {
		return coerceList(sch, value, typ.OfType)
	}

	name := typ.Named
	switch name {
	case "Int":
		return coerceInt(value)
	case "Float":
		return coerceFloat(value)
	case "String":
		if s, ok := value.(string); ok {
			return s, nil
		}
		return nil, cannotCoerce(value, name)
	case "Boolean":
		if b, ok := value.(bool); ok {
			return b, nil
		}
		return nil, cannotCoerce(value, name)
	case "ID":
		return coerceID(value)
	}

	def := sch.Types[name]
	if def == nil {
		return value, nil
	}
	switch def.Kind {
	case schema.TypeKindEnum:
		s, ok := value.(string)
		if ok {
			for _, ev := range def.EnumValues {
				if ev.Name == s {
					return s, nil
				}
			}
		}
		return nil, errors.Newf("value %v is not a member of enum %s", value, name)
	case schema.TypeKindInputObject:
		return coerceInputObject(sch, value, def)
	}
	return value, nil
}

// coerceList accepts any slice; a single value becomes a one item list.
func coerceList(sch *schema.Schema, value any, item *schema.TypeRef) (any, error) {
	items, ok := listItems(value)
	if !ok {
		items = []any{value}
	}
	out := make([]any, len(items))
	for i, v := range items {
		c, err := coerceInput(sch, v, item)
		if err != nil {
			return nil, errors.Wrapf(err, "at index %d", i)
		}
		out[i] = c
	}
	return out, nil
}

func coerceInputObject(sch *schema.Schema, value any, def *schema.Type) (any, error) {
	fields, ok := value.(map[string]any)
	if !ok {
		return nil, errors.Newf("cannot coerce %v (%T) to input object %s", value, value, def.Name)
	}
	for key := range fields {
		if !hasInputField(def, key) {
			return nil, errors.Newf("unknown field '%s' for input object %s", key, def.Name)
		}
	}
	out := make(map[string]any, len(def.InputFields))
	for _, f := range def.InputFields {
		v, present := fields[f.Name]
		if !present {
			switch {
			case f.DefaultValue != nil:
				v = f.DefaultValue
			case f.Type.IsNonNull():
				return nil, errors.Newf("required field '%s' of input object %s was not provided", f.Name, def.Name)
			default:
				continue
			}
		}
		c, err := coerceInput(sch, v, f.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "field '%s'", f.Name)
		}
		out[f.Name] = c
	}
	if def.OneOf {
		set := 0
		for _, v := range out {
			if v != nil {
				set++
			}
		}
		if set != 1 {
			return nil, errors.Newf("exactly one field of %s must be set, got %d", def.Name, set)
		}
	}
	return out, nil
}

func hasInputField(def *schema.Type, name string) bool {
	for _, f := range def.InputFields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// coerceInt accepts integers and integral floats within the 32-bit range.
func coerceInt(value any) (any, error) {
	var f float64
	switch v := value.(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return nil, cannotCoerce(value, "Int")
		}
		f = float64(n)
	case float32:
		f = float64(v)
	case float64:
		f = v
	default:
		rv := reflect.ValueOf(value)
		switch {
		case rv.CanInt():
			f = float64(rv.Int())
		case rv.CanUint():
			f = float64(rv.Uint())
		default:
			return nil, cannotCoerce(value, "Int")
		}
	}
	if f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return nil, cannotCoerce(value, "Int")
	}
	return int(f), nil
}

func coerceFloat(value any) (any, error) {
	switch v := value.(type) {
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f, nil
		}
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	default:
		rv := reflect.ValueOf(value)
		switch {
		case rv.CanInt():
			return float64(rv.Int()), nil
		case rv.CanUint():
			return float64(rv.Uint()), nil
		}
	}
	return nil, cannotCoerce(value, "Float")
}

// coerceID accepts strings and integers.
func coerceID(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return v.String(), nil
		}
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return strconv.FormatInt(int64(v), 10), nil
		}
	default:
		rv := reflect.ValueOf(value)
		switch {
		case rv.CanInt():
			return strconv.FormatInt(rv.Int(), 10), nil
		case rv.CanUint():
			return strconv.FormatUint(rv.Uint(), 10), nil
		}
	}
	return nil, cannotCoerce(value, "ID")
}

func cannotCoerce(value any, typeName string) error {
	return errors.Newf("cannot coerce %v (%T) to %s", value, value, typeName)
}
