// Package schema holds the executable GraphQL type system: named types,
// wrapped type references and directives, plus SDL rendering and parsing.
package schema

// Schema is a set of named types with designated root operation types.
// Root names refer to entries in Types; an empty name means the operation is
// not supported.
type Schema struct {
	Description      string
	QueryType        string
	MutationType     string
	SubscriptionType string
	Types            map[string]*Type
	Directives       map[string]*Directive
}

func (s *Schema) GetQueryType() *Type        { return s.root(s.QueryType) }
func (s *Schema) GetMutationType() *Type     { return s.root(s.MutationType) }
func (s *Schema) GetSubscriptionType() *Type { return s.root(s.SubscriptionType) }

func (s *Schema) root(name string) *Type {
	if name == "" {
		return nil
	}
	return s.Types[name]
}

type TypeKind string

const (
	TypeKindScalar      TypeKind = "SCALAR"
	TypeKindObject      TypeKind = "OBJECT"
	TypeKindInterface   TypeKind = "INTERFACE"
	TypeKindUnion       TypeKind = "UNION"
	TypeKindEnum        TypeKind = "ENUM"
	TypeKindInputObject TypeKind = "INPUT_OBJECT"
)

// Type is a named type. Which member lists are meaningful depends on Kind:
// Fields and Interfaces for objects and interfaces, PossibleTypes for
// interfaces and unions, EnumValues for enums and InputFields for input
// objects.
type Type struct {
	Name        string
	Kind        TypeKind
	Description string

	Fields        []*Field
	Interfaces    []string
	PossibleTypes []string
	EnumValues    []*EnumValue
	InputFields   []*InputValue

	SpecifiedByURL *string
	OneOf          bool
}

// Field is an output field. Async fields are resolved in depth-wise batches
// by the executor; the others are resolved inline.
type Field struct {
	Name              string
	Description       string
	Type              *TypeRef
	Arguments         []*InputValue
	Async             bool
	IsDeprecated      bool
	DeprecationReason string
}

// InputValue is an argument or an input object field.
type InputValue struct {
	Name              string
	Description       string
	Type              *TypeRef
	DefaultValue      any
	IsDeprecated      bool
	DeprecationReason string
}

type EnumValue struct {
	Name              string
	Description       string
	IsDeprecated      bool
	DeprecationReason string
}

type Directive struct {
	Name         string
	Description  string
	Arguments    []*InputValue
	Locations    []string
	IsRepeatable bool
}

type TypeRefKind string

const (
	TypeRefKindNamed   TypeRefKind = "NAMED"
	TypeRefKindList    TypeRefKind = "LIST"
	TypeRefKindNonNull TypeRefKind = "NON_NULL"
)

// TypeRef is a possibly wrapped reference to a named type. Named is set only
// on NAMED references; OfType only on LIST and NON_NULL ones.
type TypeRef struct {
	Kind   TypeRefKind
	Named  string
	OfType *TypeRef
}

func NamedType(name string) *TypeRef   { return &TypeRef{Kind: TypeRefKindNamed, Named: name} }
func ListType(of *TypeRef) *TypeRef    { return &TypeRef{Kind: TypeRefKindList, OfType: of} }
func NonNullType(of *TypeRef) *TypeRef { return &TypeRef{Kind: TypeRefKindNonNull, OfType: of} }

// IsNonNull reports whether the outermost wrapper is NON_NULL.
func (t *TypeRef) IsNonNull() bool { return t != nil && t.Kind == TypeRefKindNonNull }

// IsList reports whether t is a list, possibly behind a NON_NULL wrapper.
func (t *TypeRef) IsList() bool {
	if t.IsNonNull() {
		t = t.OfType
	}
	return t != nil && t.Kind == TypeRefKindList
}

// Unwrap strips one wrapper. A named reference is returned as is.
func (t *TypeRef) Unwrap() *TypeRef {
	if t.Kind == TypeRefKindNamed {
		return t
	}
	return t.OfType
}

// GetNamedType returns the name at the core of the wrappers.
func (t *TypeRef) GetNamedType() string {
	for t != nil && t.Kind != TypeRefKindNamed {
		t = t.OfType
	}
	if t == nil {
		return ""
	}
	return t.Named
}

// Function forms of the TypeRef methods. IsNonNull and IsList accept nil.

func IsNonNull(t *TypeRef) bool      { return t.IsNonNull() }
func IsList(t *TypeRef) bool         { return t != nil && t.IsList() }
func Unwrap(t *TypeRef) *TypeRef     { return t.Unwrap() }
func GetNamedType(t *TypeRef) string { return t.GetNamedType() }
