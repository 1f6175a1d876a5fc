package goreflect

import (
	"context"
	"fmt"
	"reflect"
)

type paramKind int

const (
	paramContext paramKind = iota
	paramArgs
)

func invoker(name string, kinds []paramKind, argsType reflect.Type) func(ctx context.Context, source any, args map[string]any) (any, error) {
	return func(ctx context.Context, source any, args map[string]any) (any, error) {
		recv, err := receiver(source)
		if err != nil {
			return nil, err
		}
		method := recv.MethodByName(name)
		if !method.IsValid() {
			return nil, fmt.Errorf("%s has no method %s", recv.Type(), name)
		}

		in := make([]reflect.Value, len(kinds))
		for i, k := range kinds {
			switch k {
			case paramContext:
				if ctx == nil {
					ctx = context.Background()
				}
				in[i] = reflect.ValueOf(&ctx).Elem()
			case paramArgs:
				v := reflect.New(argsType).Elem()
				for field, value := range args {
					f := v.FieldByName(field)
					if !f.IsValid() || !f.CanSet() {
						return nil, fmt.Errorf("unknown argument %s", field)
					}
					if err := assign(f, value); err != nil {
						return nil, fmt.Errorf("argument %s: %w", field, err)
					}
				}
				in[i] = v
			}
		}

		out := method.Call(in)
		if len(out) == 2 && !out[1].IsNil() {
			return nil, out[1].Interface().(error)
		}
		return out[0].Interface(), nil
	}
}

// receiver returns an addressable value so pointer methods are callable.
func receiver(source any) (reflect.Value, error) {
	v := reflect.ValueOf(source)
	if !v.IsValid() {
		return reflect.Value{}, fmt.Errorf("method called on nil source")
	}
	if v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}, fmt.Errorf("method called on nil %s", v.Type())
		}
		return v, nil
	}
	ptr := reflect.New(v.Type())
	ptr.Elem().Set(v)
	return ptr, nil
}

// assign stores a decoded argument value into dst. Input objects arrive as
// maps keyed by Go field name and lists as []any.
func assign(dst reflect.Value, value any) error {
	if value == nil {
		dst.SetZero()
		return nil
	}
	if dst.Kind() == reflect.Pointer {
		elem := reflect.New(dst.Type().Elem())
		if err := assign(elem.Elem(), value); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}

	v := reflect.ValueOf(value)
	if v.Type().AssignableTo(dst.Type()) {
		dst.Set(v)
		return nil
	}

	switch dst.Kind() {
	case reflect.Struct:
		m, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("cannot use %T as %s", value, dst.Type())
		}
		for name, fv := range m {
			f := dst.FieldByName(name)
			if !f.IsValid() || !f.CanSet() {
				return fmt.Errorf("%s has no field %s", dst.Type(), name)
			}
			if err := assign(f, fv); err != nil {
				return fmt.Errorf("%s.%s: %w", dst.Type(), name, err)
			}
		}
		return nil
	case reflect.Slice:
		items, ok := value.([]any)
		if !ok {
			return fmt.Errorf("cannot use %T as %s", value, dst.Type())
		}
		s := reflect.MakeSlice(dst.Type(), len(items), len(items))
		for i, item := range items {
			if err := assign(s.Index(i), item); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		dst.Set(s)
		return nil
	}

	if sameFamily(v.Kind(), dst.Kind()) && v.Type().ConvertibleTo(dst.Type()) {
		dst.Set(v.Convert(dst.Type()))
		return nil
	}
	return fmt.Errorf("cannot use %T as %s", value, dst.Type())
}

// sameFamily keeps conversions between like kinds, so an int never becomes a
// one-rune string.
func sameFamily(a, b reflect.Kind) bool {
	return kindFamily(a) != 0 && kindFamily(a) == kindFamily(b)
}

func kindFamily(k reflect.Kind) int {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return 1
	case reflect.String:
		return 2
	case reflect.Bool:
		return 3
	}
	return 0
}
