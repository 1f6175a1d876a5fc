package executor

import (
	"slices"

	language "github.com/hanpama/reflectgraph/internal/language"
	schema "github.com/hanpama/reflectgraph/internal/schema"
)

// fieldGroup is every field node sharing one response name, in document
// order.
type fieldGroup struct {
	responseName string
	fields       []*language.Field
}

// collectFields flattens fragments and applies @skip and @include. Groups
// appear in the order their response names are first seen.
func (ex *execution) collectFields(objectType *schema.Type, set language.SelectionSet) []fieldGroup {
	c := collector{ex: ex, objectType: objectType, index: map[string]int{}, visited: map[string]bool{}}
	c.collect(set)
	return c.groups
}

type collector struct {
	ex         *execution
	objectType *schema.Type
	groups     []fieldGroup
	index      map[string]int
	visited    map[string]bool
}

func (c *collector) collect(set language.SelectionSet) {
	for _, sel := range set {
		switch sel := sel.(type) {
		case *language.Field:
			if !c.ex.included(sel.Directives) {
				continue
			}
			name := sel.Alias
			if name == "" {
				name = sel.Name
			}
			if i, ok := c.index[name]; ok {
				c.groups[i].fields = append(c.groups[i].fields, sel)
				continue
			}
			c.index[name] = len(c.groups)
			c.groups = append(c.groups, fieldGroup{responseName: name, fields: []*language.Field{sel}})
		case *language.InlineFragment:
			if c.ex.included(sel.Directives) && c.applies(sel.TypeCondition) {
				c.collect(sel.SelectionSet)
			}
		case *language.FragmentSpread:
			if !c.ex.included(sel.Directives) || c.visited[sel.Name] {
				continue
			}
			c.visited[sel.Name] = true
			def := c.ex.document.Fragments.ForName(sel.Name)
			if def == nil || !c.applies(def.TypeCondition) || !c.ex.included(def.Directives) {
				continue
			}
			c.collect(def.SelectionSet)
		}
	}
}

// applies reports whether a fragment on condition matches the object type.
func (c *collector) applies(condition string) bool {
	if condition == "" || condition == c.objectType.Name {
		return true
	}
	t := c.ex.schema.Types[condition]
	return t != nil && possibleType(t, c.objectType)
}

// possibleType reports whether object is a member of the abstract type.
func possibleType(abstract, object *schema.Type) bool {
	switch abstract.Kind {
	case schema.TypeKindInterface:
		return object.HasInterface(abstract.Name) || slices.Contains(abstract.PossibleTypes, object.Name)
	case schema.TypeKindUnion:
		return slices.Contains(abstract.PossibleTypes, object.Name)
	}
	return false
}

// included evaluates @skip(if:) and @include(if:). A condition that is not a
// boolean leaves the node in.
func (ex *execution) included(directives language.DirectiveList) bool {
	if d := directives.ForName("skip"); d != nil {
		if v, ok := ex.directiveCondition(d); ok && v {
			return false
		}
	}
	if d := directives.ForName("include"); d != nil {
		if v, ok := ex.directiveCondition(d); ok && !v {
			return false
		}
	}
	return true
}

func (ex *execution) directiveCondition(d *language.Directive) (bool, bool) {
	arg := d.Arguments.ForName("if")
	if arg == nil {
		return false, false
	}
	v, ok := valueFromAST(arg.Value, ex.variables).(bool)
	return v, ok
}
