package schema

// builtinScalars are shared by every schema built with NewSchema.
var builtinScalars = []*Type{
	NewType("String", TypeKindScalar, "The `String` scalar type represents textual data, represented as UTF-8 character sequences."),
	NewType("Int", TypeKindScalar, "The `Int` scalar type represents non-fractional signed whole numeric values."),
	NewType("Float", TypeKindScalar, "The `Float` scalar type represents signed double-precision fractional values."),
	NewType("Boolean", TypeKindScalar, "The `Boolean` scalar type represents `true` or `false`."),
	NewType("ID", TypeKindScalar, "The `ID` scalar type represents a unique identifier, often used to refetch an object or as a key for caching."),
}

var (
	includeDirective = conditionDirective("include", "Directs the executor to include this field or fragment only when the `if` argument is true.", "Included when true.")
	skipDirective    = conditionDirective("skip", "Directs the executor to skip this field or fragment when the `if` argument is true.", "Skipped when true.")
)

// conditionDirective builds @include and @skip, which differ only in text.
func conditionDirective(name, description, ifDescription string) *Directive {
	d := NewDirective(name, description).
		AddArgument(NewInputValue("if", ifDescription, NonNullType(NamedType("Boolean"))))
	for _, loc := range []string{"FIELD", "FRAGMENT_SPREAD", "INLINE_FRAGMENT"} {
		d.AddLocation(loc)
	}
	return d
}

func isBuiltinDirective(d *Directive) bool {
	return d == includeDirective || d == skipDirective
}
