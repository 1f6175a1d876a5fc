package schema

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Render prints s as SDL. Types and directives are sorted by name, members
// keep their declaration order. Shared built-in scalars and directives are
// left out, and a schema block is written only when some root type has an
// unconventional name. The output ends with exactly one newline.
func Render(s *Schema) string {
	if s == nil {
		return ""
	}
	w := &sdlWriter{}
	w.schemaBlock(s)
	for _, name := range slices.Sorted(maps.Keys(s.Types)) {
		t := s.Types[name]
		if t == BuiltinScalar(name) {
			continue
		}
		w.namedType(t)
	}
	for _, name := range slices.Sorted(maps.Keys(s.Directives)) {
		if d := s.Directives[name]; !isBuiltinDirective(d) {
			w.directive(d)
		}
	}
	return strings.TrimRight(w.String(), "\n") + "\n"
}

// sdlWriter appends SDL definitions, each followed by a blank line.
type sdlWriter struct {
	strings.Builder
}

func (w *sdlWriter) schemaBlock(s *Schema) {
	roots := []struct{ op, name, conventional string }{
		{"query", s.QueryType, "Query"},
		{"mutation", s.MutationType, "Mutation"},
		{"subscription", s.SubscriptionType, "Subscription"},
	}
	if !slices.ContainsFunc(roots, func(r struct{ op, name, conventional string }) bool {
		return r.name != "" && r.name != r.conventional
	}) {
		return
	}
	w.WriteString("schema {\n")
	for _, r := range roots {
		if r.name != "" {
			fmt.Fprintf(w, "  %s: %s\n", r.op, r.name)
		}
	}
	w.WriteString("}\n\n")
}

func (w *sdlWriter) namedType(t *Type) {
	w.description("", t.Description)
	switch t.Kind {
	case TypeKindScalar:
		w.WriteString("scalar " + t.Name)
		if t.SpecifiedByURL != nil {
			w.WriteString(" @specifiedBy(url: " + strconv.Quote(*t.SpecifiedByURL) + ")")
		}
		w.WriteString("\n")
	case TypeKindUnion:
		w.WriteString("union " + t.Name + " = " + strings.Join(t.PossibleTypes, " | ") + "\n")
	case TypeKindEnum:
		w.WriteString("enum " + t.Name + " {\n")
		for _, v := range t.EnumValues {
			w.description("  ", v.Description)
			w.WriteString("  " + v.Name)
			w.deprecated(v.IsDeprecated, v.DeprecationReason)
			w.WriteString("\n")
		}
		w.WriteString("}\n")
	case TypeKindInputObject:
		w.WriteString("input " + t.Name)
		if t.OneOf {
			w.WriteString(" @oneOf")
		}
		w.WriteString(" {\n")
		for _, f := range t.InputFields {
			w.description("  ", f.Description)
			w.WriteString("  ")
			w.inputValue(f)
			w.deprecated(f.IsDeprecated, f.DeprecationReason)
			w.WriteString("\n")
		}
		w.WriteString("}\n")
	case TypeKindObject, TypeKindInterface:
		keyword := "type"
		if t.Kind == TypeKindInterface {
			keyword = "interface"
		}
		w.WriteString(keyword + " " + t.Name)
		if len(t.Interfaces) > 0 {
			w.WriteString(" implements " + strings.Join(t.Interfaces, " & "))
		}
		w.WriteString(" {\n")
		for _, f := range t.Fields {
			w.description("  ", f.Description)
			w.WriteString("  " + f.Name)
			w.arguments(f.Arguments)
			w.WriteString(": " + f.Type.String())
			w.deprecated(f.IsDeprecated, f.DeprecationReason)
			w.WriteString("\n")
		}
		w.WriteString("}\n")
	}
	w.WriteString("\n")
}

func (w *sdlWriter) directive(d *Directive) {
	w.description("", d.Description)
	w.WriteString("directive @" + d.Name)
	w.arguments(d.Arguments)
	if d.IsRepeatable {
		w.WriteString(" repeatable")
	}
	w.WriteString(" on " + strings.Join(d.Locations, " | ") + "\n\n")
}

// description writes a block string on its own lines.
func (w *sdlWriter) description(indent, text string) {
	if text == "" {
		return
	}
	quote := indent + `"""` + "\n"
	w.WriteString(quote)
	w.WriteString(indent + strings.ReplaceAll(text, `"`, `\"`) + "\n")
	w.WriteString(quote)
}

func (w *sdlWriter) deprecated(is bool, reason string) {
	if !is {
		return
	}
	w.WriteString(" @deprecated")
	if reason != "" {
		w.WriteString("(reason: " + strconv.Quote(reason) + ")")
	}
}

func (w *sdlWriter) arguments(args []*InputValue) {
	if len(args) == 0 {
		return
	}
	w.WriteString("(")
	for i, a := range args {
		if i > 0 {
			w.WriteString(", ")
		}
		w.inputValue(a)
	}
	w.WriteString(")")
}

func (w *sdlWriter) inputValue(v *InputValue) {
	w.WriteString(v.Name + ": " + v.Type.String())
	if v.DefaultValue != nil {
		w.WriteString(" = " + RenderValue(v.DefaultValue))
	}
}

// String renders the reference in SDL notation, e.g. "[User!]!".
func (t *TypeRef) String() string {
	if t == nil {
		return ""
	}
	switch t.Kind {
	case TypeRefKindNamed:
		return t.Named
	case TypeRefKindList:
		return "[" + t.OfType.String() + "]"
	case TypeRefKindNonNull:
		return t.OfType.String() + "!"
	}
	return ""
}

// RenderValue renders v as a GraphQL literal. Strings are quoted, object
// keys are sorted and anything unrecognized is printed bare, which is how
// enum values end up in default values.
func RenderValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case []any:
		items := make([]string, len(v))
		for i, item := range v {
			items[i] = RenderValue(item)
		}
		return "[" + strings.Join(items, ", ") + "]"
	case map[string]any:
		fields := make([]string, 0, len(v))
		for _, k := range slices.Sorted(maps.Keys(v)) {
			fields = append(fields, k+": "+RenderValue(v[k]))
		}
		return "{" + strings.Join(fields, ", ") + "}"
	}
	return fmt.Sprint(v)
}
