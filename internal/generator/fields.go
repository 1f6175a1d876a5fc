package generator

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/hanpama/reflectgraph/internal/schema"
	"github.com/hanpama/reflectgraph/internal/typedesc"
	"github.com/hanpama/reflectgraph/internal/wiring"
)

// addOutputFields adds one synchronous field per accepted property and one
// batched field per accepted function.
func (g *Generator) addOutputFields(class *typedesc.Class, node *schema.Type, kind Concept) error {
	for _, p := range g.provider.Properties(class) {
		if !g.acceptProperty(class, p, kind) {
			continue
		}
		gen, _, err := g.resolve(p.Type, false)
		if err != nil {
			return errors.Wrapf(err, "generating field %s.%s", class.Name, p.Name)
		}
		field := schema.NewField(g.hooks.propertyName(p, class), p.Annotations.Description, gen.Ref)
		if p.Annotations.Deprecated {
			field.Deprecate(p.Annotations.DeprecationReason)
		}
		node.AddField(field)
		get := p.Get
		g.registry.Register(wiring.Coordinates{Type: node.Name, Field: field.Name}, func(ctx context.Context, source any, args map[string]any) (any, error) {
			return get(ctx, source)
		})
	}
	for _, fn := range g.provider.Functions(class) {
		if !g.acceptFunction(class, fn, kind) {
			continue
		}
		field, producer, err := g.functionField(fn, nil)
		if err != nil {
			return errors.Wrapf(err, "generating field %s.%s", class.Name, fn.Name)
		}
		if node.Field(field.Name) != nil {
			g.reject(class, fn.Name, kind, "field name already taken")
			continue
		}
		node.AddField(field)
		g.registry.Register(wiring.Coordinates{Type: node.Name, Field: field.Name}, producer)
	}
	return nil
}

// functionField builds the field of fn and its producer. When instance is
// non-nil it is used as the source of root fields.
func (g *Generator) functionField(fn *typedesc.Function, instance any) (*schema.Field, wiring.Producer, error) {
	gen, _, err := g.resolve(fn.Return, false)
	if err != nil {
		return nil, nil, err
	}
	name := fn.Name
	if fn.Annotations.Name != "" {
		name = fn.Annotations.Name
	}
	field := schema.NewField(name, fn.Annotations.Description, gen.Ref).SetAsync(true)
	if fn.Annotations.Deprecated {
		field.Deprecate(fn.Annotations.DeprecationReason)
	}

	type param struct {
		wire, declared string
		decode         decodeFunc
	}
	var params []param
	for _, p := range fn.Params {
		if p.Injected {
			continue
		}
		arg, decode, err := g.resolve(p.Type, true)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "generating argument %s", p.Name)
		}
		wire := g.hooks.parameterName(p)
		field.AddArgument(schema.NewInputValue(wire, p.Annotations.Description, arg.Ref))
		params = append(params, param{wire: wire, declared: p.Name, decode: decode})
	}

	invoke := fn.Invoke
	producer := func(ctx context.Context, source any, args map[string]any) (any, error) {
		decoded := make(map[string]any, len(params))
		for _, p := range params {
			v, ok := args[p.wire]
			if !ok {
				continue
			}
			if p.decode != nil {
				var err error
				if v, err = p.decode(v); err != nil {
					return nil, fmt.Errorf("argument '%s': %w", p.wire, err)
				}
			}
			decoded[p.declared] = v
		}
		if source == nil {
			source = instance
		}
		return invoke(ctx, source, decoded)
	}
	return field, producer, nil
}
