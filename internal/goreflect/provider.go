// Package goreflect describes Go types through the reflect package.
//
// Structs become objects, their exported fields properties and their exported
// methods functions. A named interface with exported methods is an interface;
// one carrying only unexported marker methods is a union. Implementations of
// both are declared with Implement. Channels, iter.Seq, iter.Seq2 with error
// and eventsource publishers are event sources.
//
// Methods may take a context.Context and a single struct whose fields are the
// arguments, and return a value optionally followed by an error:
//
//	func (q *Queries) Books(ctx context.Context, args struct{ Genre *string }) ([]*Book, error)
//
// Field and argument names default to the Go name with a lower-cased first
// letter. The graphql struct tag overrides the name ("-" hides the member);
// description and deprecated tags annotate it.
package goreflect

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/hanpama/reflectgraph/internal/eventsource"
	"github.com/hanpama/reflectgraph/internal/generator"
	"github.com/hanpama/reflectgraph/internal/typedesc"
)

// DisallowedOwners are the classes whose members are never exposed when they
// are promoted through embedding.
var DisallowedOwners = []string{"Mutex", "RWMutex", "Once", "WaitGroup"}

// Provider implements typedesc.Provider and typedesc.Classifier for Go types.
// It is safe for concurrent use.
type Provider struct {
	mu      sync.Mutex
	classes map[reflect.Type]*typedesc.Class
	enums   map[reflect.Type][]*typedesc.EnumValue
	scalars map[reflect.Type]string
	impls   map[reflect.Type][]reflect.Type
	ifaces  []reflect.Type
}

// New returns an empty provider.
func New() *Provider {
	return &Provider{
		classes: make(map[reflect.Type]*typedesc.Class),
		enums:   make(map[reflect.Type][]*typedesc.EnumValue),
		scalars: make(map[reflect.Type]string),
		impls:   make(map[reflect.Type][]reflect.Type),
	}
}

var (
	streamClass    = &typedesc.Class{Name: "Stream", Kind: typedesc.KindStream}
	publisherClass = &typedesc.Class{Name: "Publisher", Kind: typedesc.KindPublisher}

	builtinClasses = map[string]*typedesc.Class{
		"String":  {Name: "String", Kind: typedesc.KindScalar},
		"Int":     {Name: "Int", Kind: typedesc.KindScalar},
		"Float":   {Name: "Float", Kind: typedesc.KindScalar},
		"Boolean": {Name: "Boolean", Kind: typedesc.KindScalar},
		"ID":      {Name: "ID", Kind: typedesc.KindScalar},
	}

	bytesType = reflect.TypeFor[[]byte]()
)

// Implement declares the implementations of an interface or union. iface is
// a nil pointer to the interface type, as in (*Node)(nil); impls are zero
// values or pointers of the implementing structs.
func (p *Provider) Implement(iface any, impls ...any) {
	it := reflect.TypeOf(iface)
	if it == nil || it.Kind() != reflect.Pointer || it.Elem().Kind() != reflect.Interface {
		panic(fmt.Sprintf("goreflect: Implement expects a pointer to an interface, got %T", iface))
	}
	it = it.Elem()

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.impls[it]; !ok {
		p.ifaces = append(p.ifaces, it)
	}
	for _, impl := range impls {
		t := indirect(reflect.TypeOf(impl))
		if !t.Implements(it) && !reflect.PointerTo(t).Implements(it) {
			panic(fmt.Sprintf("goreflect: %s does not implement %s", t, it))
		}
		p.impls[it] = append(p.impls[it], t)
	}
}

// Enum declares values as the members of their common type. Member names are
// taken from fmt.Stringer.
func (p *Provider) Enum(values ...fmt.Stringer) {
	if len(values) == 0 {
		return
	}
	t := reflect.TypeOf(values[0])
	var members []*typedesc.EnumValue
	for _, v := range values {
		if reflect.TypeOf(v) != t {
			panic(fmt.Sprintf("goreflect: enum %s mixes %T", t, v))
		}
		members = append(members, &typedesc.EnumValue{Name: v.String(), Value: v})
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.enums[t] = members
}

// Scalar maps the type of sample to the named scalar. Custom scalar nodes are
// supplied to the generator by the WillGenerateType hook.
func (p *Provider) Scalar(sample any, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scalars[indirect(reflect.TypeOf(sample))] = name
}

// ClassOf returns the class of a value's type.
func (p *Provider) ClassOf(value any) (*typedesc.Class, bool) {
	t := reflect.TypeOf(value)
	if t == nil {
		return nil, false
	}
	c := p.classFor(indirect(t))
	return c, c != nil && c.Name != ""
}

// Class returns the class of the type of sample, which may be a pointer.
func (p *Provider) Class(sample any) *typedesc.Class {
	t := reflect.TypeOf(sample)
	if t == nil {
		return nil
	}
	return p.classFor(indirect(t))
}

// TopLevel returns root objects for the given instances. Their methods become
// root operation fields.
func (p *Provider) TopLevel(instances ...any) []generator.TopLevelObject {
	out := make([]generator.TopLevelObject, 0, len(instances))
	for _, inst := range instances {
		out = append(out, generator.TopLevelObject{Class: p.Class(inst), Instance: inst})
	}
	return out
}

// typeRef describes a use of t. It returns nil for types with no GraphQL
// counterpart, such as maps and plain funcs.
func (p *Provider) typeRef(t reflect.Type) *typedesc.TypeRef {
	if t.Kind() == reflect.Pointer {
		// pointer to an interface or pointer is never useful as a field type
		if k := t.Elem().Kind(); k == reflect.Pointer || k == reflect.Interface {
			return nil
		}
		ref := p.typeRef(t.Elem())
		if ref == nil {
			return nil
		}
		return ref.OrNull()
	}

	if c := p.lookupNamed(t); c != nil {
		return typedesc.Ref(c)
	}

	if et, ok := eventType(t); ok {
		elem := p.typeRef(et)
		if elem == nil {
			return nil
		}
		class := streamClass
		if t.Kind() != reflect.Chan && t.Kind() != reflect.Func {
			class = publisherClass
		}
		return typedesc.Ref(class, elem)
	}

	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		if t == bytesType {
			return typedesc.Ref(builtinClasses["String"])
		}
		elem := p.typeRef(t.Elem())
		if elem == nil {
			return nil
		}
		return typedesc.ListOf(elem)
	case reflect.Struct, reflect.Interface:
		c := p.classFor(t)
		if c == nil {
			return nil
		}
		return typedesc.Ref(c)
	}
	if name := builtinName(t.Kind()); name != "" {
		return typedesc.Ref(builtinClasses[name])
	}
	return nil
}

// lookupNamed returns registered enum and scalar classes.
func (p *Provider) lookupNamed(t reflect.Type) *typedesc.Class {
	p.mu.Lock()
	_, isEnum := p.enums[t]
	scalar, isScalar := p.scalars[t]
	p.mu.Unlock()

	switch {
	case isEnum:
		return p.cached(t, func() *typedesc.Class {
			return &typedesc.Class{Name: typeName(t), Kind: typedesc.KindEnum, Host: t}
		})
	case isScalar:
		if c, ok := builtinClasses[scalar]; ok {
			return c
		}
		return p.cached(t, func() *typedesc.Class {
			return &typedesc.Class{Name: scalar, Kind: typedesc.KindScalar, Host: t}
		})
	}
	return nil
}

// classFor returns the class of a struct or interface type.
func (p *Provider) classFor(t reflect.Type) *typedesc.Class {
	if c := p.lookupNamed(t); c != nil {
		return c
	}
	switch t.Kind() {
	case reflect.Struct:
		return p.cached(t, func() *typedesc.Class {
			return &typedesc.Class{Name: typeName(t), Kind: typedesc.KindObject, Host: t}
		})
	case reflect.Interface:
		if t.NumMethod() == 0 {
			return nil
		}
		kind := typedesc.KindUnion
		for i := range t.NumMethod() {
			if t.Method(i).IsExported() {
				kind = typedesc.KindInterface
				break
			}
		}
		return p.cached(t, func() *typedesc.Class {
			return &typedesc.Class{Name: typeName(t), Kind: kind, Host: t}
		})
	}
	return nil
}

func (p *Provider) cached(t reflect.Type, build func() *typedesc.Class) *typedesc.Class {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.classes[t]; ok {
		return c
	}
	c := build()
	p.classes[t] = c
	return c
}

// typeName is the Go name with type arguments folded in, so Page[Book]
// becomes PageBook. Unnamed types have no name.
func typeName(t reflect.Type) string {
	name := t.Name()
	open := strings.IndexByte(name, '[')
	if open < 0 {
		return name
	}
	var b strings.Builder
	b.WriteString(name[:open])
	for _, arg := range strings.Split(strings.TrimSuffix(name[open+1:], "]"), ",") {
		arg = strings.TrimLeft(arg, "*[]")
		if dot := strings.LastIndexByte(arg, '.'); dot >= 0 {
			arg = arg[dot+1:]
		}
		if arg != "" {
			b.WriteString(strings.ToUpper(arg[:1]) + arg[1:])
		}
	}
	return b.String()
}

func builtinName(k reflect.Kind) string {
	switch k {
	case reflect.String:
		return "String"
	case reflect.Bool:
		return "Boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return "Int"
	case reflect.Float32, reflect.Float64:
		return "Float"
	}
	return ""
}

// eventType reports the event type of a channel, iterator or typed
// publisher.
func eventType(t reflect.Type) (reflect.Type, bool) {
	if t.Kind() != reflect.Interface && t.Implements(eventTyperType) {
		return reflect.Zero(t).Interface().(eventsource.EventTyper).EventType(), true
	}
	if !eventsource.IsSource(t) {
		return nil, false
	}
	return eventsource.ElemType(t)
}

var eventTyperType = reflect.TypeFor[eventsource.EventTyper]()

func indirect(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
