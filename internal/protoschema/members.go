package protoschema

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/hanpama/reflectgraph/internal/generator"
	"github.com/hanpama/reflectgraph/internal/typedesc"
	"go.uber.org/zap"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Supertypes implements typedesc.Provider. Messages have no inheritance.
func (p *Provider) Supertypes(*typedesc.Class) []*typedesc.Class { return nil }

// PossibleTypes implements typedesc.Provider.
func (p *Provider) PossibleTypes(*typedesc.Class) []*typedesc.Class { return nil }

// Properties returns one property per message field.
func (p *Provider) Properties(c *typedesc.Class) []*typedesc.Property {
	host, ok := c.Host.(message)
	if !ok {
		return nil
	}
	fields := host.desc.Fields()
	out := make([]*typedesc.Property, 0, fields.Len())
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		ref := p.typeRef(fd, host.input)
		if ref == nil {
			p.log.Debug("skipping field without a GraphQL form", zap.String("field", string(fd.FullName())))
			continue
		}
		out = append(out, &typedesc.Property{
			Name: string(fd.Name()),
			Type: ref,
			Annotations: typedesc.Annotations{
				Name:        fd.JSONName(),
				Description: comments(fd),
				Deprecated:  deprecated(fd),
			},
			Owner: c,
			Get:   getter(fd),
		})
	}
	return out
}

func getter(fd protoreflect.FieldDescriptor) func(context.Context, any) (any, error) {
	return func(_ context.Context, source any) (any, error) {
		m, ok := asMessage(source)
		if !ok {
			return nil, errors.Newf("%s: unexpected source %T", fd.FullName(), source)
		}
		if m == nil {
			return nil, nil
		}
		return fieldValue(fd, m)
	}
}

// Functions returns the methods of a service class that suit its role.
func (p *Provider) Functions(c *typedesc.Class) []*typedesc.Function {
	host, ok := c.Host.(*service)
	if !ok {
		return nil
	}
	methods := host.desc.Methods()
	out := make([]*typedesc.Function, 0, methods.Len())
	for i := 0; i < methods.Len(); i++ {
		md := methods.Get(i)
		streaming := md.IsStreamingServer()
		switch {
		case md.IsStreamingClient():
			p.log.Debug("skipping client-streaming method", zap.String("method", string(md.FullName())))
			continue
		case streaming != (host.role == generator.ConceptSubscription):
			continue
		case !host.all && !host.methods[md.Name()]:
			continue
		}
		out = append(out, p.function(c, md))
	}
	return out
}

func (p *Provider) function(owner *typedesc.Class, md protoreflect.MethodDescriptor) *typedesc.Function {
	fields := md.Input().Fields()
	params := make([]*typedesc.Parameter, 0, fields.Len())
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		ref := p.typeRef(fd, true)
		if ref == nil {
			continue
		}
		params = append(params, &typedesc.Parameter{
			Name: string(fd.Name()),
			Type: ref,
			Annotations: typedesc.Annotations{
				Name:        fd.JSONName(),
				Description: comments(fd),
				Deprecated:  deprecated(fd),
			},
		})
	}

	var ret *typedesc.TypeRef
	switch {
	case md.IsStreamingServer():
		ret = typedesc.Ref(streamClass, typedesc.Ref(p.messageClass(md.Output(), false)))
	case md.Output().FullName() == emptyName:
		ret = typedesc.Ref(scalarClasses["Boolean"])
	default:
		ret = typedesc.Ref(p.messageClass(md.Output(), false))
	}

	return &typedesc.Function{
		Name:   string(md.Name()),
		Params: params,
		Return: ret,
		Annotations: typedesc.Annotations{
			Name:        lowerFirst(string(md.Name())),
			Description: comments(md),
			Deprecated:  deprecated(md),
		},
		Owner:  owner,
		Invoke: p.invoke(md),
	}
}

func (p *Provider) invoke(md protoreflect.MethodDescriptor) func(context.Context, any, map[string]any) (any, error) {
	return func(ctx context.Context, _ any, args map[string]any) (any, error) {
		if p.invoker == nil {
			return nil, errors.Newf("%s: no invoker configured", md.FullName())
		}
		req := dynamicpb.NewMessage(md.Input())
		if err := fill(req, args); err != nil {
			return nil, errors.Wrapf(err, "building %s request", md.FullName())
		}
		if md.IsStreamingServer() {
			return p.invoker.Stream(ctx, md, req)
		}
		resp, err := p.invoker.Call(ctx, md, req)
		if err != nil {
			return nil, err
		}
		if md.Output().FullName() == emptyName {
			return true, nil
		}
		return resp, nil
	}
}

// EnumValues lists enum values without the UPPER_SNAKE enum name prefix.
// An UNSPECIFIED zero value is ignored.
func (p *Provider) EnumValues(c *typedesc.Class) []*typedesc.EnumValue {
	ed, ok := c.Host.(protoreflect.EnumDescriptor)
	if !ok {
		return nil
	}
	prefix := screaming(string(ed.Name())) + "_"
	values := ed.Values()
	out := make([]*typedesc.EnumValue, 0, values.Len())
	for i := 0; i < values.Len(); i++ {
		v := values.Get(i)
		name := string(v.Name())
		if trimmed := strings.TrimPrefix(name, prefix); trimmed != "" && trimmed[0] > '9' {
			name = trimmed
		}
		out = append(out, &typedesc.EnumValue{
			Name:  name,
			Value: v.Number(),
			Annotations: typedesc.Annotations{
				Ignore:      isUnspecified(v),
				Description: comments(v),
				Deprecated:  deprecated(v),
			},
		})
	}
	return out
}

func isUnspecified(v protoreflect.EnumValueDescriptor) bool {
	return v.Number() == 0 && strings.HasSuffix(string(v.Name()), "UNSPECIFIED")
}

// hiddenZero reports whether the zero value of ed is ignored, in which case
// singular fields of ed are nullable and read as null when unset.
func hiddenZero(ed protoreflect.EnumDescriptor) bool {
	v := ed.Values().ByNumber(0)
	return v != nil && isUnspecified(v)
}
