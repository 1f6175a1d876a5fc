package generator

import (
	"fmt"

	"github.com/hanpama/reflectgraph/internal/typedesc"
)

// TypeNotNamedError is returned for a class without a name.
type TypeNotNamedError struct {
	Ref *typedesc.TypeRef
}

func (e *TypeNotNamedError) Error() string {
	return fmt.Sprintf("type %s has no name", e.Ref)
}

// TypeNotSupportedError is returned for a class that cannot be represented.
type TypeNotSupportedError struct {
	Class  *typedesc.Class
	Reason string
}

func (e *TypeNotSupportedError) Error() string {
	return fmt.Sprintf("type %s (%s) is not supported: %s", e.Class.Name, e.Class.Kind, e.Reason)
}

// EmptyQueryTypeError is returned when no query field survives filtering.
type EmptyQueryTypeError struct {
	Classes []*typedesc.Class
}

func (e *EmptyQueryTypeError) Error() string {
	return "query type has no fields" + classList(e.Classes)
}

// EmptyMutationTypeError is returned when mutation classes were supplied but
// none of their functions survived filtering.
type EmptyMutationTypeError struct {
	Classes []*typedesc.Class
}

func (e *EmptyMutationTypeError) Error() string {
	return "mutation type has no fields" + classList(e.Classes)
}

// EmptySubscriptionTypeError is returned when subscription classes were
// supplied but none of their functions survived filtering.
type EmptySubscriptionTypeError struct {
	Classes []*typedesc.Class
}

func (e *EmptySubscriptionTypeError) Error() string {
	return "subscription type has no fields" + classList(e.Classes)
}

// EmptyObjectTypeError is returned when an object type ends up without fields.
type EmptyObjectTypeError struct {
	Class *typedesc.Class
}

func (e *EmptyObjectTypeError) Error() string {
	return fmt.Sprintf("object type %s has no fields", e.Class.Name)
}

// EmptyInputObjectTypeError is returned when an input object type ends up
// without fields.
type EmptyInputObjectTypeError struct {
	Class *typedesc.Class
}

func (e *EmptyInputObjectTypeError) Error() string {
	return fmt.Sprintf("input object type %s has no fields", e.Class.Name)
}

// EmptyInterfaceTypeError is returned when an interface type ends up without
// fields.
type EmptyInterfaceTypeError struct {
	Class *typedesc.Class
}

func (e *EmptyInterfaceTypeError) Error() string {
	return fmt.Sprintf("interface type %s has no fields", e.Class.Name)
}

// InvalidSubscriptionTypeError is returned when a subscription function does
// not return an event source.
type InvalidSubscriptionTypeError struct {
	Class    *typedesc.Class
	Function *typedesc.Function
}

func (e *InvalidSubscriptionTypeError) Error() string {
	return fmt.Sprintf("subscription %s.%s must return an event source, got %s", e.Class.Name, e.Function.Name, e.Function.Return)
}

func classList(classes []*typedesc.Class) string {
	if len(classes) == 0 {
		return ""
	}
	s := " (from"
	for _, c := range classes {
		s += " " + c.Name
	}
	return s + ")"
}
