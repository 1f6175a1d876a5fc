package generator

import (
	"context"

	"github.com/hanpama/reflectgraph/internal/typedesc"
)

// memProvider is a hand-assembled Provider for tests.
type memProvider struct {
	supers   map[string][]*typedesc.Class
	props    map[string][]*typedesc.Property
	funcs    map[string][]*typedesc.Function
	enums    map[string][]*typedesc.EnumValue
	possible map[string][]*typedesc.Class
	classify func(v any) (*typedesc.Class, bool)
}

func newMemProvider() *memProvider {
	return &memProvider{
		supers:   map[string][]*typedesc.Class{},
		props:    map[string][]*typedesc.Property{},
		funcs:    map[string][]*typedesc.Function{},
		enums:    map[string][]*typedesc.EnumValue{},
		possible: map[string][]*typedesc.Class{},
	}
}

func (m *memProvider) Supertypes(c *typedesc.Class) []*typedesc.Class     { return m.supers[c.Name] }
func (m *memProvider) Properties(c *typedesc.Class) []*typedesc.Property  { return m.props[c.Name] }
func (m *memProvider) Functions(c *typedesc.Class) []*typedesc.Function   { return m.funcs[c.Name] }
func (m *memProvider) EnumValues(c *typedesc.Class) []*typedesc.EnumValue { return m.enums[c.Name] }
func (m *memProvider) PossibleTypes(c *typedesc.Class) []*typedesc.Class  { return m.possible[c.Name] }

func (m *memProvider) ClassOf(v any) (*typedesc.Class, bool) {
	if m.classify == nil {
		return nil, false
	}
	return m.classify(v)
}

var (
	stringClass  = &typedesc.Class{Name: "String", Kind: typedesc.KindScalar}
	intClass     = &typedesc.Class{Name: "Int", Kind: typedesc.KindScalar}
	booleanClass = &typedesc.Class{Name: "Boolean", Kind: typedesc.KindScalar}
	streamClass  = &typedesc.Class{Name: "Stream", Kind: typedesc.KindStream}
)

func object(name string) *typedesc.Class { return &typedesc.Class{Name: name, Kind: typedesc.KindObject} }

func iface(name string) *typedesc.Class { return &typedesc.Class{Name: name, Kind: typedesc.KindInterface} }

func (m *memProvider) prop(owner *typedesc.Class, name string, typ *typedesc.TypeRef) *typedesc.Property {
	p := &typedesc.Property{
		Name:  name,
		Type:  typ,
		Owner: owner,
		Get: func(ctx context.Context, source any) (any, error) {
			return source.(map[string]any)[name], nil
		},
	}
	m.props[owner.Name] = append(m.props[owner.Name], p)
	return p
}

func (m *memProvider) fn(owner *typedesc.Class, name string, ret *typedesc.TypeRef, params ...*typedesc.Parameter) *typedesc.Function {
	return m.fnWith(owner, name, ret, func(ctx context.Context, source any, args map[string]any) (any, error) {
		return name, nil
	}, params...)
}

func (m *memProvider) fnWith(owner *typedesc.Class, name string, ret *typedesc.TypeRef, invoke func(context.Context, any, map[string]any) (any, error), params ...*typedesc.Parameter) *typedesc.Function {
	f := &typedesc.Function{Name: name, Return: ret, Params: params, Owner: owner, Invoke: invoke}
	m.funcs[owner.Name] = append(m.funcs[owner.Name], f)
	return f
}

func param(name string, typ *typedesc.TypeRef) *typedesc.Parameter {
	return &typedesc.Parameter{Name: name, Type: typ}
}
