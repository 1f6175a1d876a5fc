// Package introspection serves __schema and __type from a built schema. The
// meta fields resolve against the schema as it was before they were added,
// so the new root fields never show up in introspection results.
package introspection

import (
	"context"
	"fmt"
	"sort"

	schema "github.com/hanpama/reflectgraph/internal/schema"
	"github.com/hanpama/reflectgraph/internal/wiring"
)

// Install returns a copy of sch extended with the introspection types and
// root fields, and registers their producers in reg.
func Install(sch *schema.Schema, reg *wiring.Registry) *schema.Schema {
	extended := extend(sch)
	root := sch.QueryType

	reg.Register(wiring.Coordinates{Type: root, Field: "__schema"}, func(context.Context, any, map[string]any) (any, error) {
		return sch, nil
	})
	reg.Register(wiring.Coordinates{Type: root, Field: "__type"}, func(_ context.Context, _ any, args map[string]any) (any, error) {
		name, _ := args["name"].(string)
		if t, ok := sch.Types[name]; ok {
			return t, nil
		}
		return nil, nil
	})

	register(reg, "__Schema", func(s *schema.Schema, field string, _ map[string]any) (any, error) {
		switch field {
		case "description":
			return optional(s.Description), nil
		case "types":
			return sortedTypes(s), nil
		case "queryType":
			return s.GetQueryType(), nil
		case "mutationType":
			return s.GetMutationType(), nil
		case "subscriptionType":
			return s.GetSubscriptionType(), nil
		case "directives":
			return sortedDirectives(s), nil
		}
		return nil, unknown("__Schema", field)
	})
	register(reg, "__Type", func(src any, field string, args map[string]any) (any, error) {
		return typeField(sch, src, field, args)
	})
	register(reg, "__Field", func(f *schema.Field, field string, args map[string]any) (any, error) {
		switch field {
		case "name":
			return f.Name, nil
		case "description":
			return optional(f.Description), nil
		case "args":
			return visibleInputs(f.Arguments, args), nil
		case "type":
			return f.Type, nil
		case "isDeprecated":
			return f.IsDeprecated, nil
		case "deprecationReason":
			return reason(f.IsDeprecated, f.DeprecationReason), nil
		}
		return nil, unknown("__Field", field)
	})
	register(reg, "__InputValue", func(v *schema.InputValue, field string, _ map[string]any) (any, error) {
		switch field {
		case "name":
			return v.Name, nil
		case "description":
			return optional(v.Description), nil
		case "type":
			return v.Type, nil
		case "defaultValue":
			if v.DefaultValue == nil {
				return nil, nil
			}
			return schema.RenderValue(v.DefaultValue), nil
		case "isDeprecated":
			return v.IsDeprecated, nil
		case "deprecationReason":
			return reason(v.IsDeprecated, v.DeprecationReason), nil
		}
		return nil, unknown("__InputValue", field)
	})
	register(reg, "__EnumValue", func(v *schema.EnumValue, field string, _ map[string]any) (any, error) {
		switch field {
		case "name":
			return v.Name, nil
		case "description":
			return optional(v.Description), nil
		case "isDeprecated":
			return v.IsDeprecated, nil
		case "deprecationReason":
			return reason(v.IsDeprecated, v.DeprecationReason), nil
		}
		return nil, unknown("__EnumValue", field)
	})
	register(reg, "__Directive", func(d *schema.Directive, field string, args map[string]any) (any, error) {
		switch field {
		case "name":
			return d.Name, nil
		case "description":
			return optional(d.Description), nil
		case "isRepeatable":
			return d.IsRepeatable, nil
		case "locations":
			locs := append([]string(nil), d.Locations...)
			sort.Strings(locs)
			return locs, nil
		case "args":
			return visibleInputs(d.Arguments, args), nil
		}
		return nil, unknown("__Directive", field)
	})
	return extended
}

// register installs one producer per field of the meta type, all dispatching
// to resolve.
func register[T any](reg *wiring.Registry, typeName string, resolve func(src T, field string, args map[string]any) (any, error)) {
	meta := metaType(typeName)
	if meta == nil {
		return
	}
	for _, f := range meta.Fields {
		field := f.Name
		reg.Register(wiring.Coordinates{Type: typeName, Field: field}, func(_ context.Context, source any, args map[string]any) (any, error) {
			src, ok := source.(T)
			if !ok {
				return nil, fmt.Errorf("%s.%s: unexpected source %T", typeName, field, source)
			}
			return resolve(src, field, args)
		})
	}
}

var metaTypes = schema.MetaTypes()

func metaType(name string) *schema.Type {
	for _, t := range metaTypes {
		if t.Name == name {
			return t
		}
	}
	return nil
}

func extend(sch *schema.Schema) *schema.Schema {
	out := &schema.Schema{
		QueryType:        sch.QueryType,
		MutationType:     sch.MutationType,
		SubscriptionType: sch.SubscriptionType,
		Types:            make(map[string]*schema.Type, len(sch.Types)+len(metaTypes)),
		Directives:       sch.Directives,
		Description:      sch.Description,
	}
	for name, t := range sch.Types {
		out.Types[name] = t
	}
	for _, t := range metaTypes {
		out.Types[t.Name] = t
	}
	if q := sch.GetQueryType(); q != nil {
		copied := *q
		copied.Fields = append(append([]*schema.Field(nil), q.Fields...),
			schema.NewField("__schema", "Access the current type schema of this server.",
				schema.NonNullType(schema.NamedType("__Schema"))),
			schema.NewField("__type", "Request the type information of a single type.",
				schema.NamedType("__Type")).
				AddArgument(schema.NewInputValue("name", "", schema.NonNullType(schema.NamedType("String")))),
		)
		out.Types[q.Name] = &copied
	}
	return out
}

// typeField resolves __Type fields. Sources are named types or wrapping
// references; a named reference behaves as the type it names.
func typeField(sch *schema.Schema, src any, field string, args map[string]any) (any, error) {
	switch src := src.(type) {
	case *schema.TypeRef:
		switch src.Kind {
		case schema.TypeRefKindList, schema.TypeRefKindNonNull:
			switch field {
			case "kind":
				return string(src.Kind), nil
			case "ofType":
				return src.OfType, nil
			}
			return nil, nil
		}
		def := sch.Types[src.Named]
		if def == nil {
			return nil, fmt.Errorf("unknown type %s", src.Named)
		}
		return typeField(sch, def, field, args)
	case *schema.Type:
		return namedTypeField(sch, src, field, args)
	}
	return nil, fmt.Errorf("__Type.%s: unexpected source %T", field, src)
}

func namedTypeField(sch *schema.Schema, t *schema.Type, field string, args map[string]any) (any, error) {
	includeDeprecated, _ := args["includeDeprecated"].(bool)
	switch field {
	case "kind":
		return string(t.Kind), nil
	case "name":
		return t.Name, nil
	case "description":
		return optional(t.Description), nil
	case "specifiedByURL":
		return t.SpecifiedByURL, nil
	case "isOneOf":
		return t.OneOf, nil
	case "ofType":
		return nil, nil
	case "fields":
		if t.Kind != schema.TypeKindObject && t.Kind != schema.TypeKindInterface {
			return nil, nil
		}
		out := []*schema.Field{}
		for _, f := range t.Fields {
			if includeDeprecated || !f.IsDeprecated {
				out = append(out, f)
			}
		}
		return out, nil
	case "interfaces":
		if t.Kind != schema.TypeKindObject && t.Kind != schema.TypeKindInterface {
			return nil, nil
		}
		return lookup(sch, t.Interfaces), nil
	case "possibleTypes":
		if t.Kind != schema.TypeKindInterface && t.Kind != schema.TypeKindUnion {
			return nil, nil
		}
		return lookup(sch, t.PossibleTypes), nil
	case "enumValues":
		if t.Kind != schema.TypeKindEnum {
			return nil, nil
		}
		out := []*schema.EnumValue{}
		for _, v := range t.EnumValues {
			if includeDeprecated || !v.IsDeprecated {
				out = append(out, v)
			}
		}
		return out, nil
	case "inputFields":
		if t.Kind != schema.TypeKindInputObject {
			return nil, nil
		}
		return visibleInputs(t.InputFields, args), nil
	}
	return nil, unknown("__Type", field)
}

func sortedTypes(s *schema.Schema) []*schema.Type {
	out := make([]*schema.Type, 0, len(s.Types))
	for _, t := range s.Types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func sortedDirectives(s *schema.Schema) []*schema.Directive {
	out := make([]*schema.Directive, 0, len(s.Directives))
	for _, d := range s.Directives {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func lookup(sch *schema.Schema, names []string) []*schema.Type {
	out := []*schema.Type{}
	for _, name := range names {
		if t := sch.Types[name]; t != nil {
			out = append(out, t)
		}
	}
	return out
}

func visibleInputs(values []*schema.InputValue, args map[string]any) []*schema.InputValue {
	includeDeprecated, _ := args["includeDeprecated"].(bool)
	out := []*schema.InputValue{}
	for _, v := range values {
		if includeDeprecated || !v.IsDeprecated {
			out = append(out, v)
		}
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func reason(deprecated bool, r string) *string {
	if !deprecated {
		return nil
	}
	return &r
}

func unknown(typeName, field string) error {
	return fmt.Errorf("%s has no field %s", typeName, field)
}
