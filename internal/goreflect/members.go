package goreflect

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hanpama/reflectgraph/internal/typedesc"
)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

func hostType(c *typedesc.Class) reflect.Type {
	if c == nil {
		return nil
	}
	t, _ := c.Host.(reflect.Type)
	return t
}

// Supertypes returns the embedded structs and interfaces of a struct class
// followed by the declared interfaces it implements.
func (p *Provider) Supertypes(c *typedesc.Class) []*typedesc.Class {
	t := hostType(c)
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}
	var out []*typedesc.Class
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.Anonymous {
			continue
		}
		if s := p.classFor(indirect(f.Type)); s != nil {
			out = append(out, s)
		}
	}

	p.mu.Lock()
	ifaces := append([]reflect.Type(nil), p.ifaces...)
	p.mu.Unlock()
	for _, it := range ifaces {
		if t.Implements(it) || reflect.PointerTo(t).Implements(it) {
			if s := p.classFor(it); s != nil {
				out = append(out, s)
			}
		}
	}
	return out
}

// Properties returns the visible fields of a struct class, including those
// promoted from embedded structs. Promoted fields are owned by the struct
// that declares them.
func (p *Provider) Properties(c *typedesc.Class) []*typedesc.Property {
	t := hostType(c)
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}
	var out []*typedesc.Property
	for _, f := range reflect.VisibleFields(t) {
		if f.Anonymous {
			continue
		}
		owner := c
		if len(f.Index) > 1 {
			owner = p.classFor(indirect(t.FieldByIndex(f.Index[:len(f.Index)-1]).Type))
		}
		ann, vis := fieldAnnotations(f)
		out = append(out, &typedesc.Property{
			Name:        f.Name,
			Type:        p.typeRef(f.Type),
			Visibility:  vis,
			Annotations: ann,
			Owner:       owner,
			Get:         fieldGetter(f.Index),
		})
	}
	return out
}

func fieldGetter(index []int) func(ctx context.Context, source any) (any, error) {
	return func(ctx context.Context, source any) (any, error) {
		v := reflect.ValueOf(source)
		for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
			if v.IsNil() {
				return nil, nil
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return nil, fmt.Errorf("expected a struct, got %T", source)
		}
		fv, err := v.FieldByIndexErr(index)
		if err != nil {
			// a nil embedded pointer resolves to null
			return nil, nil
		}
		if !fv.CanInterface() {
			return nil, fmt.Errorf("field of %T is not accessible", source)
		}
		return fv.Interface(), nil
	}
}

// Functions returns the exported methods of a struct class (pointer receiver
// method set) or of an interface class.
func (p *Provider) Functions(c *typedesc.Class) []*typedesc.Function {
	t := hostType(c)
	if t == nil {
		return nil
	}
	var out []*typedesc.Function
	switch t.Kind() {
	case reflect.Struct:
		mt := reflect.PointerTo(t)
		for i := range mt.NumMethod() {
			m := mt.Method(i)
			owner := c
			if o := p.promotedFrom(t, m.Name); o != nil {
				owner = o
			}
			out = append(out, p.function(owner, m.Name, m.Type, 1))
		}
	case reflect.Interface:
		for i := range t.NumMethod() {
			m := t.Method(i)
			if !m.IsExported() {
				continue
			}
			out = append(out, p.function(c, m.Name, m.Type, 0))
		}
	}
	return out
}

// promotedFrom returns the class of the shallowest embedded type providing
// method name. A method that shadows a promoted one is attributed to the
// embedded type as well; reflect cannot tell them apart.
func (p *Provider) promotedFrom(t reflect.Type, name string) *typedesc.Class {
	depth := -1
	var owner reflect.Type
	for _, f := range reflect.VisibleFields(t) {
		if !f.Anonymous || (depth >= 0 && len(f.Index) >= depth) {
			continue
		}
		et := indirect(f.Type)
		has := false
		if et.Kind() == reflect.Interface {
			_, has = et.MethodByName(name)
		} else {
			_, has = reflect.PointerTo(et).MethodByName(name)
		}
		if has {
			depth, owner = len(f.Index), et
		}
	}
	if owner == nil {
		return nil
	}
	if c := p.classFor(owner); c != nil {
		return c
	}
	return &typedesc.Class{Name: owner.Name(), Kind: typedesc.KindObject, Host: owner}
}

// function describes a method of type ft whose first offset inputs are the
// receiver. Signatures that cannot be exposed yield a Function without
// Invoke.
func (p *Provider) function(owner *typedesc.Class, name string, ft reflect.Type, offset int) *typedesc.Function {
	fn := &typedesc.Function{
		Name:        name,
		Visibility:  typedesc.Public,
		Annotations: typedesc.Annotations{Name: lowerFirst(name)},
		Owner:       owner,
	}
	if ft.IsVariadic() {
		return fn
	}

	var argsType reflect.Type
	kinds := make([]paramKind, 0, ft.NumIn()-offset)
	for i := offset; i < ft.NumIn(); i++ {
		in := ft.In(i)
		switch {
		case in == contextType:
			fn.Params = append(fn.Params, &typedesc.Parameter{Name: "ctx", Injected: true})
			kinds = append(kinds, paramContext)
		case in.Kind() == reflect.Struct && argsType == nil:
			argsType = in
			for _, f := range reflect.VisibleFields(in) {
				if f.Anonymous || !f.IsExported() {
					continue
				}
				ann, _ := fieldAnnotations(f)
				if ann.Ignore {
					continue
				}
				fn.Params = append(fn.Params, &typedesc.Parameter{
					Name:        f.Name,
					Type:        p.typeRef(f.Type),
					Annotations: ann,
				})
			}
			kinds = append(kinds, paramArgs)
		default:
			return fn
		}
	}

	switch {
	case ft.NumOut() == 1 && ft.Out(0) != errorType:
	case ft.NumOut() == 2 && ft.Out(1) == errorType:
	default:
		return fn
	}
	fn.Return = p.typeRef(ft.Out(0))
	if fn.Return == nil {
		return fn
	}
	fn.Invoke = invoker(name, kinds, argsType)
	return fn
}

// fieldAnnotations reads the graphql, description and deprecated tags.
func fieldAnnotations(f reflect.StructField) (typedesc.Annotations, typedesc.Visibility) {
	ann := typedesc.Annotations{Name: lowerFirst(f.Name)}
	vis := typedesc.Public
	if !f.IsExported() {
		vis = typedesc.Private
	}

	tag, opts, _ := strings.Cut(f.Tag.Get("graphql"), ",")
	switch tag {
	case "-":
		ann.Ignore = true
	case "":
	default:
		ann.Name = tag
	}
	for _, opt := range strings.Split(opts, ",") {
		if opt == "internal" && vis == typedesc.Public {
			vis = typedesc.Internal
		}
	}
	ann.Description = f.Tag.Get("description")
	if reason, ok := f.Tag.Lookup("deprecated"); ok {
		ann.Deprecated = true
		ann.DeprecationReason = reason
	}
	return ann, vis
}

// EnumValues returns the members declared with Enum.
func (p *Provider) EnumValues(c *typedesc.Class) []*typedesc.EnumValue {
	t := hostType(c)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enums[t]
}

// PossibleTypes returns the implementations declared with Implement.
func (p *Provider) PossibleTypes(c *typedesc.Class) []*typedesc.Class {
	t := hostType(c)
	p.mu.Lock()
	impls := append([]reflect.Type(nil), p.impls[t]...)
	p.mu.Unlock()

	out := make([]*typedesc.Class, 0, len(impls))
	for _, it := range impls {
		if c := p.classFor(it); c != nil {
			out = append(out, c)
		}
	}
	return out
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	// leading initialisms lower-case as a whole: ID -> id, URLPath -> urlPath
	upper := 0
	for _, c := range s {
		if !unicode.IsUpper(c) {
			break
		}
		upper++
	}
	if upper > 1 {
		if upper == utf8.RuneCountInString(s) {
			return strings.ToLower(s)
		}
		prefix := []rune(s)[:upper-1]
		return strings.ToLower(string(prefix)) + s[len(string(prefix)):]
	}
	return string(unicode.ToLower(r)) + s[size:]
}
