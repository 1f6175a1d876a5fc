// Package typedesc describes application types independently of how they were
// discovered. A Provider enumerates the members of a Class; the schema
// generator consumes only these descriptors.
package typedesc

import "context"

// Kind classifies a Class by the role its values play.
type Kind int

const (
	KindObject Kind = iota
	KindInterface
	KindUnion
	KindEnum
	KindScalar
	// KindStream is a cooperative pull stream (iterator, channel).
	KindStream
	// KindPublisher is an observer-style push producer.
	KindPublisher
	// KindWrapper is a monad-like container such as a future or an optional.
	KindWrapper
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindInterface:
		return "interface"
	case KindUnion:
		return "union"
	case KindEnum:
		return "enum"
	case KindScalar:
		return "scalar"
	case KindStream:
		return "stream"
	case KindPublisher:
		return "publisher"
	case KindWrapper:
		return "wrapper"
	}
	return "unknown"
}

// IsEventSource reports whether values of this kind produce events over time.
func (k Kind) IsEventSource() bool { return k == KindStream || k == KindPublisher }

// Class is a named application type. An empty Name marks a type that cannot
// be identified, such as an anonymous struct.
type Class struct {
	Name        string
	Kind        Kind
	Description string
	Annotations Annotations
	// Host is the provider's own handle for the type.
	Host any
}

// TypeRef is a declared type at a use site. Exactly one of Class and Elem is
// set; Elem marks a list of Elem.
type TypeRef struct {
	Class    *Class
	Elem     *TypeRef
	Args     []*TypeRef
	Nullable bool
}

// Ref returns a non-null reference to c.
func Ref(c *Class, args ...*TypeRef) *TypeRef { return &TypeRef{Class: c, Args: args} }

// ListOf returns a non-null list of elem.
func ListOf(elem *TypeRef) *TypeRef { return &TypeRef{Elem: elem} }

// OrNull returns a nullable copy of t.
func (t *TypeRef) OrNull() *TypeRef {
	c := *t
	c.Nullable = true
	return &c
}

// IsList reports whether t is a list.
func (t *TypeRef) IsList() bool { return t != nil && t.Elem != nil }

// String formats t for diagnostics.
func (t *TypeRef) String() string {
	if t == nil {
		return "<nil>"
	}
	var s string
	switch {
	case t.Elem != nil:
		s = "[" + t.Elem.String() + "]"
	case t.Class != nil && t.Class.Name != "":
		s = t.Class.Name
	default:
		s = "<unnamed>"
	}
	if len(t.Args) > 0 {
		s += "<"
		for i, a := range t.Args {
			if i > 0 {
				s += ", "
			}
			s += a.String()
		}
		s += ">"
	}
	if t.Nullable {
		s += "?"
	}
	return s
}

type Visibility int

const (
	Public Visibility = iota
	Internal
	Private
)

// Annotations are the declarative markers attached to a class or member.
type Annotations struct {
	Ignore            bool
	Name              string
	Description       string
	Deprecated        bool
	DeprecationReason string
	Directives        []string
}

// Property is a stored or computed value of a Class.
type Property struct {
	Name        string
	Type        *TypeRef
	Visibility  Visibility
	Annotations Annotations
	Owner       *Class
	Get         func(ctx context.Context, source any) (any, error)
}

// Function is a callable member of a Class. Invoke receives arguments keyed
// by Parameter.Name; values of input classes are map[string]any keyed by
// Property.Name.
type Function struct {
	Name        string
	Params      []*Parameter
	Return      *TypeRef
	Visibility  Visibility
	Annotations Annotations
	Owner       *Class
	Invoke      func(ctx context.Context, source any, args map[string]any) (any, error)
}

// Parameter is a Function parameter. Injected parameters are supplied by the
// runtime (for example a context) and are not exposed as arguments.
type Parameter struct {
	Name        string
	Type        *TypeRef
	Annotations Annotations
	Injected    bool
}

// EnumValue is one member of an enum Class. Value is the host value it
// stands for.
type EnumValue struct {
	Name        string
	Value       any
	Annotations Annotations
}

// Provider enumerates declared members of classes.
type Provider interface {
	// Supertypes returns the immediate supertypes of c.
	Supertypes(c *Class) []*Class
	Properties(c *Class) []*Property
	Functions(c *Class) []*Function
	EnumValues(c *Class) []*EnumValue
	// PossibleTypes returns the concrete classes of an interface or union.
	PossibleTypes(c *Class) []*Class
}

// Classifier is implemented by providers that can identify the class of a
// runtime value. It backs abstract type resolution.
type Classifier interface {
	ClassOf(value any) (*Class, bool)
}
