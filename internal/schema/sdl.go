package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

// BuildFromSDL parses and validates SDL and returns the corresponding Schema.
// Fields of the root operation types are marked async; every other field is
// treated as a physical projection of its parent value.
func BuildFromSDL(sdl string) (*Schema, error) {
	doc, err := gqlparser.LoadSchema(&ast.Source{Name: "schema.graphql", Input: sdl})
	if err != nil {
		return nil, err
	}
	if doc.Query == nil {
		return nil, fmt.Errorf("schema: no query type defined")
	}

	s := NewSchema(doc.Description)
	roots := map[string]bool{}
	if doc.Query != nil {
		s.SetQueryType(doc.Query.Name)
		roots[doc.Query.Name] = true
	}
	if doc.Mutation != nil {
		s.SetMutationType(doc.Mutation.Name)
		roots[doc.Mutation.Name] = true
	}
	if doc.Subscription != nil {
		s.SetSubscriptionType(doc.Subscription.Name)
		roots[doc.Subscription.Name] = true
	}

	for name, def := range doc.Types {
		if def.BuiltIn || strings.HasPrefix(name, "__") {
			continue
		}
		s.AddType(typeFromDefinition(def, roots[name]))
	}
	for _, dir := range doc.Directives {
		if dir.Position != nil && dir.Position.Src != nil && dir.Position.Src.BuiltIn {
			continue
		}
		d := NewDirective(dir.Name, dir.Description).SetRepeatable(dir.IsRepeatable)
		for _, loc := range dir.Locations {
			d.AddLocation(string(loc))
		}
		for _, arg := range dir.Arguments {
			d.AddArgument(inputValueFromAST(arg.Name, arg.Description, arg.Type, arg.DefaultValue, arg.Directives))
		}
		s.AddDirective(d)
	}
	return s, nil
}

// MetaTypes returns fresh copies of the introspection types (__Schema,
// __Type and the rest), sorted by name.
func MetaTypes() []*Type {
	doc, err := gqlparser.LoadSchema(&ast.Source{Name: "meta.graphql", Input: "type Query { meta: Boolean }"})
	if err != nil {
		panic(fmt.Sprintf("schema: loading prelude: %v", err))
	}
	var out []*Type
	for name, def := range doc.Types {
		if strings.HasPrefix(name, "__") {
			out = append(out, typeFromDefinition(def, false))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func typeFromDefinition(def *ast.Definition, root bool) *Type {
	var t *Type
	switch def.Kind {
	case ast.Object:
		t = NewType(def.Name, TypeKindObject, def.Description)
	case ast.Interface:
		t = NewType(def.Name, TypeKindInterface, def.Description)
	case ast.Union:
		t = NewType(def.Name, TypeKindUnion, def.Description)
	case ast.Enum:
		t = NewType(def.Name, TypeKindEnum, def.Description)
	case ast.InputObject:
		t = NewType(def.Name, TypeKindInputObject, def.Description)
		t.SetOneOf(def.Directives.ForName("oneOf") != nil)
	default:
		t = NewType(def.Name, TypeKindScalar, def.Description)
		if sb := def.Directives.ForName("specifiedBy"); sb != nil {
			if url := sb.Arguments.ForName("url"); url != nil {
				t.SetSpecifiedByURL(url.Value.Raw)
			}
		}
	}
	for _, iface := range def.Interfaces {
		t.AddInterface(iface)
	}
	for _, member := range def.Types {
		t.AddPossibleType(member)
	}
	for _, v := range def.EnumValues {
		ev := NewEnumValue(v.Name, v.Description)
		if reason, ok := deprecation(v.Directives); ok {
			ev.Deprecate(reason)
		}
		t.AddEnumValue(ev)
	}
	for _, fd := range def.Fields {
		if strings.HasPrefix(fd.Name, "__") {
			continue
		}
		if def.Kind == ast.InputObject {
			t.AddInputField(inputValueFromAST(fd.Name, fd.Description, fd.Type, fd.DefaultValue, fd.Directives))
			continue
		}
		f := NewField(fd.Name, fd.Description, TypeRefFromAST(fd.Type)).SetAsync(root)
		if reason, ok := deprecation(fd.Directives); ok {
			f.Deprecate(reason)
		}
		for _, arg := range fd.Arguments {
			f.AddArgument(inputValueFromAST(arg.Name, arg.Description, arg.Type, arg.DefaultValue, arg.Directives))
		}
		t.AddField(f)
	}
	return t
}

func inputValueFromAST(name, description string, typ *ast.Type, def *ast.Value, dirs ast.DirectiveList) *InputValue {
	in := NewInputValue(name, description, TypeRefFromAST(typ))
	if def != nil {
		if v, err := def.Value(nil); err == nil {
			in.SetDefault(v)
		}
	}
	if reason, ok := deprecation(dirs); ok {
		in.Deprecate(reason)
	}
	return in
}

func deprecation(dirs ast.DirectiveList) (string, bool) {
	d := dirs.ForName("deprecated")
	if d == nil {
		return "", false
	}
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return arg.Value.Raw, true
	}
	return "", true
}

// TypeRefFromAST converts a parsed type reference.
func TypeRefFromAST(t *ast.Type) *TypeRef {
	if t == nil {
		return nil
	}
	var ref *TypeRef
	if t.Elem != nil {
		ref = ListType(TypeRefFromAST(t.Elem))
	} else {
		ref = NamedType(t.NamedType)
	}
	if t.NonNull {
		return NonNullType(ref)
	}
	return ref
}
