package schema

// NewSchema returns an empty schema with the built-in scalars and the
// include/skip directives registered.
func NewSchema(description string) *Schema {
	s := &Schema{
		Types:       make(map[string]*Type),
		Directives:  make(map[string]*Directive),
		Description: description,
	}
	for _, t := range builtinScalars {
		s.Types[t.Name] = t
	}
	s.Directives[includeDirective.Name] = includeDirective
	s.Directives[skipDirective.Name] = skipDirective
	return s
}

func (s *Schema) SetQueryType(name string) *Schema        { s.QueryType = name; return s }
func (s *Schema) SetMutationType(name string) *Schema     { s.MutationType = name; return s }
func (s *Schema) SetSubscriptionType(name string) *Schema { s.SubscriptionType = name; return s }

// AddType registers t under its name, replacing any previous type of that name.
func (s *Schema) AddType(t *Type) *Schema {
	if s.Types == nil {
		s.Types = make(map[string]*Type)
	}
	s.Types[t.Name] = t
	return s
}

func (s *Schema) AddDirective(d *Directive) *Schema {
	if s.Directives == nil {
		s.Directives = make(map[string]*Directive)
	}
	s.Directives[d.Name] = d
	return s
}

// IsBuiltinScalar reports whether name is one of the specified scalars.
func IsBuiltinScalar(name string) bool {
	for _, t := range builtinScalars {
		if t.Name == name {
			return true
		}
	}
	return false
}

// BuiltinScalar returns the shared definition of a specified scalar, or nil.
func BuiltinScalar(name string) *Type {
	for _, t := range builtinScalars {
		if t.Name == name {
			return t
		}
	}
	return nil
}

func NewType(name string, kind TypeKind, description string) *Type {
	return &Type{Name: name, Kind: kind, Description: description}
}

func (t *Type) AddField(f *Field) *Type            { t.Fields = append(t.Fields, f); return t }
func (t *Type) AddInterface(name string) *Type     { t.Interfaces = append(t.Interfaces, name); return t }
func (t *Type) AddPossibleType(name string) *Type  { t.PossibleTypes = append(t.PossibleTypes, name); return t }
func (t *Type) AddEnumValue(v *EnumValue) *Type    { t.EnumValues = append(t.EnumValues, v); return t }
func (t *Type) AddInputField(v *InputValue) *Type  { t.InputFields = append(t.InputFields, v); return t }
func (t *Type) SetOneOf(oneOf bool) *Type          { t.OneOf = oneOf; return t }
func (t *Type) SetSpecifiedByURL(url string) *Type { t.SpecifiedByURL = &url; return t }

// Field returns the output field with the given name, or nil.
func (t *Type) Field(name string) *Field {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// HasInterface reports whether t declares the named interface.
func (t *Type) HasInterface(name string) bool {
	for _, n := range t.Interfaces {
		if n == name {
			return true
		}
	}
	return false
}

// FieldCount is the number of fields for object and interface types and the
// number of input fields for input objects.
func (t *Type) FieldCount() int {
	if t.Kind == TypeKindInputObject {
		return len(t.InputFields)
	}
	return len(t.Fields)
}

func NewField(name, description string, typ *TypeRef) *Field {
	return &Field{Name: name, Description: description, Type: typ}
}

func (f *Field) SetAsync(async bool) *Field       { f.Async = async; return f }
func (f *Field) AddArgument(a *InputValue) *Field { f.Arguments = append(f.Arguments, a); return f }
func (f *Field) Deprecate(reason string) *Field {
	f.IsDeprecated = true
	f.DeprecationReason = reason
	return f
}

// NewFieldMap is shorthand for a field list literal.
func NewFieldMap(fields ...*Field) []*Field { return fields }

func NewInputValue(name, description string, typ *TypeRef) *InputValue {
	return &InputValue{Name: name, Description: description, Type: typ}
}

func (v *InputValue) SetDefault(value any) *InputValue { v.DefaultValue = value; return v }
func (v *InputValue) Deprecate(reason string) *InputValue {
	v.IsDeprecated = true
	v.DeprecationReason = reason
	return v
}

func NewEnumValue(name, description string) *EnumValue {
	return &EnumValue{Name: name, Description: description}
}

func (v *EnumValue) Deprecate(reason string) *EnumValue {
	v.IsDeprecated = true
	v.DeprecationReason = reason
	return v
}

func NewDirective(name, description string) *Directive {
	return &Directive{Name: name, Description: description}
}

func (d *Directive) SetRepeatable(r bool) *Directive      { d.IsRepeatable = r; return d }
func (d *Directive) AddArgument(a *InputValue) *Directive { d.Arguments = append(d.Arguments, a); return d }
func (d *Directive) AddLocation(loc string) *Directive    { d.Locations = append(d.Locations, loc); return d }
