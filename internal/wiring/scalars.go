package wiring

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
)

var builtinSerializers = map[string]Serializer{
	"String":  serializeString,
	"ID":      serializeID,
	"Int":     serializeInt,
	"Float":   serializeFloat,
	"Boolean": serializeBoolean,
}

func serializeString(v any) (any, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	case fmt.Stringer:
		return s.String(), nil
	}
	rv := reflect.Indirect(reflect.ValueOf(v))
	if rv.Kind() == reflect.String {
		return rv.String(), nil
	}
	return nil, fmt.Errorf("String cannot represent %T", v)
}

func serializeID(v any) (any, error) {
	rv := reflect.Indirect(reflect.ValueOf(v))
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	}
	s, err := serializeString(v)
	if err != nil {
		return nil, fmt.Errorf("ID cannot represent %T", v)
	}
	return s, nil
}

// serializeInt accepts any integer kind within the 32-bit range.
func serializeInt(v any) (any, error) {
	rv := reflect.Indirect(reflect.ValueOf(v))
	var n int64
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n = rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt32 {
			return nil, fmt.Errorf("Int cannot represent %d", u)
		}
		n = int64(u)
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) {
			return nil, fmt.Errorf("Int cannot represent non-integer value %v", f)
		}
		n = int64(f)
	default:
		return nil, fmt.Errorf("Int cannot represent %T", v)
	}
	if n > math.MaxInt32 || n < math.MinInt32 {
		return nil, fmt.Errorf("Int cannot represent %d", n)
	}
	return int(n), nil
}

func serializeFloat(v any) (any, error) {
	rv := reflect.Indirect(reflect.ValueOf(v))
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	}
	return nil, fmt.Errorf("Float cannot represent %T", v)
}

func serializeBoolean(v any) (any, error) {
	rv := reflect.Indirect(reflect.ValueOf(v))
	if rv.Kind() == reflect.Bool {
		return rv.Bool(), nil
	}
	return nil, fmt.Errorf("Boolean cannot represent %T", v)
}

// EnumSerializer maps host values to enum value names. Values are compared
// with ==, so they must be comparable.
func EnumSerializer(typeName string, names map[any]string) Serializer {
	return func(v any) (any, error) {
		if s, ok := v.(string); ok {
			for _, n := range names {
				if n == s {
					return s, nil
				}
			}
		}
		if rv := reflect.ValueOf(v); rv.IsValid() && rv.Comparable() {
			if name, ok := names[v]; ok {
				return name, nil
			}
		}
		return nil, fmt.Errorf("%s cannot represent %v", typeName, v)
	}
}
