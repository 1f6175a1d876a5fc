package generator

import (
	"strconv"

	"github.com/hanpama/reflectgraph/internal/schema"
	"github.com/hanpama/reflectgraph/internal/typedesc"
	"github.com/hanpama/reflectgraph/internal/wiring"
)

// Concept is the role a generated type plays.
type Concept int

const (
	ConceptQuery Concept = iota
	ConceptMutation
	ConceptSubscription
	ConceptObject
	ConceptInput
	ConceptInterface
	ConceptUnion
	ConceptEnum
)

func (c Concept) String() string {
	switch c {
	case ConceptQuery:
		return "query"
	case ConceptMutation:
		return "mutation"
	case ConceptSubscription:
		return "subscription"
	case ConceptObject:
		return "object"
	case ConceptInput:
		return "input"
	case ConceptInterface:
		return "interface"
	case ConceptUnion:
		return "union"
	case ConceptEnum:
		return "enum"
	default:
		return "Concept(" + strconv.Itoa(int(c)) + ")"
	}
}

// Generated is the output of one type resolution: the wrapped reference and,
// for named non-builtin types, the node it refers to.
type Generated struct {
	Ref  *schema.TypeRef
	Type *schema.Type
}

// Hooks customize generation. Every field is optional; a nil hook keeps the
// default behavior. Hooks may close over caller state.
type Hooks struct {
	// WillGenerateType may return a node to use instead of the default
	// generation of t.
	WillGenerateType func(t *typedesc.TypeRef, input bool) *schema.Type

	// WillAddTypeToSchema may replace a generated node before it is added to
	// the schema. t is nil for root operation types.
	WillAddTypeToSchema func(t *typedesc.TypeRef, node *schema.Type) *schema.Type

	// WillResolveMonad unwraps wrapper types. It is applied once per type
	// reference; a hook that recurses must guard against cycles itself.
	WillResolveMonad func(t *typedesc.TypeRef) *typedesc.TypeRef

	IsValidSuperclass func(c *typedesc.Class, kind Concept) bool
	IsValidProperty   func(c *typedesc.Class, p *typedesc.Property, kind Concept) bool
	IsValidFunction   func(c *typedesc.Class, f *typedesc.Function, kind Concept) bool

	// IsValidSubscriptionReturnType gates subscription functions. The default
	// accepts functions returning a stream or publisher class.
	IsValidSubscriptionReturnType func(c *typedesc.Class, f *typedesc.Function) bool

	// OnRewireType runs for every generated object, interface and input type
	// once its fields and producers are in place, before DidGenerateType.
	OnRewireType func(node *schema.Type, coords wiring.Coordinates, registry *wiring.Registry) *schema.Type

	// DidGenerateType runs after nullability wrapping, before the emptiness
	// check and before the type is attached to its parent.
	DidGenerateType func(t *typedesc.TypeRef, generated Generated) Generated

	DidGenerateQueryField        func(c *typedesc.Class, f *typedesc.Function, field *schema.Field) *schema.Field
	DidGenerateMutationField     func(c *typedesc.Class, f *typedesc.Function, field *schema.Field) *schema.Field
	DidGenerateSubscriptionField func(c *typedesc.Class, f *typedesc.Function, field *schema.Field) *schema.Field

	DidGenerateQueryObject        func(node *schema.Type) *schema.Type
	DidGenerateMutationObject     func(node *schema.Type) *schema.Type
	DidGenerateSubscriptionObject func(node *schema.Type) *schema.Type

	GetParameterName func(p *typedesc.Parameter) string
	GetPropertyName  func(p *typedesc.Property, c *typedesc.Class) string
}

func (h *Hooks) willGenerateType(t *typedesc.TypeRef, input bool) *schema.Type {
	if h.WillGenerateType == nil {
		return nil
	}
	return h.WillGenerateType(t, input)
}

func (h *Hooks) willAddTypeToSchema(t *typedesc.TypeRef, node *schema.Type) *schema.Type {
	if h.WillAddTypeToSchema == nil {
		return node
	}
	if out := h.WillAddTypeToSchema(t, node); out != nil {
		return out
	}
	return node
}

func (h *Hooks) willResolveMonad(t *typedesc.TypeRef) *typedesc.TypeRef {
	if h.WillResolveMonad == nil {
		return t
	}
	if out := h.WillResolveMonad(t); out != nil {
		return out
	}
	return t
}

func (h *Hooks) isValidSuperclass(c *typedesc.Class, kind Concept) bool {
	return h.IsValidSuperclass == nil || h.IsValidSuperclass(c, kind)
}

func (h *Hooks) isValidProperty(c *typedesc.Class, p *typedesc.Property, kind Concept) bool {
	return h.IsValidProperty == nil || h.IsValidProperty(c, p, kind)
}

func (h *Hooks) isValidFunction(c *typedesc.Class, f *typedesc.Function, kind Concept) bool {
	return h.IsValidFunction == nil || h.IsValidFunction(c, f, kind)
}

func (h *Hooks) isValidSubscriptionReturnType(c *typedesc.Class, f *typedesc.Function) bool {
	if h.IsValidSubscriptionReturnType != nil {
		return h.IsValidSubscriptionReturnType(c, f)
	}
	return f.Return != nil && f.Return.Class != nil && f.Return.Class.Kind.IsEventSource()
}

func (h *Hooks) onRewireType(node *schema.Type, coords wiring.Coordinates, registry *wiring.Registry) *schema.Type {
	if h.OnRewireType == nil {
		return node
	}
	if out := h.OnRewireType(node, coords, registry); out != nil {
		return out
	}
	return node
}

func (h *Hooks) didGenerateType(t *typedesc.TypeRef, g Generated) Generated {
	if h.DidGenerateType == nil {
		return g
	}
	return h.DidGenerateType(t, g)
}

func (h *Hooks) didGenerateField(kind Concept, c *typedesc.Class, f *typedesc.Function, field *schema.Field) *schema.Field {
	var hook func(*typedesc.Class, *typedesc.Function, *schema.Field) *schema.Field
	switch kind {
	case ConceptQuery:
		hook = h.DidGenerateQueryField
	case ConceptMutation:
		hook = h.DidGenerateMutationField
	case ConceptSubscription:
		hook = h.DidGenerateSubscriptionField
	}
	if hook == nil {
		return field
	}
	return hook(c, f, field)
}

func (h *Hooks) didGenerateObject(kind Concept, node *schema.Type) *schema.Type {
	var hook func(*schema.Type) *schema.Type
	switch kind {
	case ConceptQuery:
		hook = h.DidGenerateQueryObject
	case ConceptMutation:
		hook = h.DidGenerateMutationObject
	case ConceptSubscription:
		hook = h.DidGenerateSubscriptionObject
	}
	if hook == nil {
		return node
	}
	if out := hook(node); out != nil {
		return out
	}
	return node
}

func (h *Hooks) parameterName(p *typedesc.Parameter) string {
	if h.GetParameterName != nil {
		if name := h.GetParameterName(p); name != "" {
			return name
		}
	}
	if p.Annotations.Name != "" {
		return p.Annotations.Name
	}
	return p.Name
}

func (h *Hooks) propertyName(p *typedesc.Property, c *typedesc.Class) string {
	if h.GetPropertyName != nil {
		if name := h.GetPropertyName(p, c); name != "" {
			return name
		}
	}
	if p.Annotations.Name != "" {
		return p.Annotations.Name
	}
	return p.Name
}
