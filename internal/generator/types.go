package generator

import (
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/hanpama/reflectgraph/internal/schema"
	"github.com/hanpama/reflectgraph/internal/typedesc"
	"github.com/hanpama/reflectgraph/internal/wiring"
)

const maxUnwrapDepth = 16

// unwrap applies WillResolveMonad, then strips event sources and wrappers
// carrying a single type argument.
func (g *Generator) unwrap(ref *typedesc.TypeRef) *typedesc.TypeRef {
	ref = g.hooks.willResolveMonad(ref)
	for i := 0; i < maxUnwrapDepth && ref != nil && ref.Class != nil && len(ref.Args) == 1; i++ {
		switch ref.Class.Kind {
		case typedesc.KindStream, typedesc.KindPublisher, typedesc.KindWrapper:
			ref = ref.Args[0]
		default:
			return ref
		}
	}
	return ref
}

// resolve converts ref into a schema reference, generating named types as
// needed. DidGenerateType and the emptiness check run here, once per use. For
// input positions it also returns the decoder turning coerced argument values
// into provider arguments.
func (g *Generator) resolve(ref *typedesc.TypeRef, input bool) (Generated, decodeFunc, error) {
	ref = g.unwrap(ref)
	if ref == nil {
		return Generated{}, nil, errors.New("missing type")
	}

	var (
		gen    Generated
		decode decodeFunc
	)
	if ref.Elem != nil {
		elem, elemDecode, err := g.resolve(ref.Elem, input)
		if err != nil {
			return Generated{}, nil, err
		}
		gen.Ref = schema.ListType(elem.Ref)
		decode = decodeList(elemDecode)
	} else {
		if ref.Class == nil || ref.Class.Name == "" {
			return Generated{}, nil, errors.WithStack(&TypeNotNamedError{Ref: ref})
		}
		node, err := g.namedType(ref, input)
		if err != nil {
			return Generated{}, nil, err
		}
		gen.Ref = schema.NamedType(node.Name)
		if !schema.IsBuiltinScalar(node.Name) {
			gen.Type = node
		}
		if input {
			decode = g.decoderFor(node.Name)
		}
	}
	if !ref.Nullable {
		gen.Ref = schema.NonNullType(gen.Ref)
	}

	gen = g.hooks.didGenerateType(ref, gen)
	if err := g.checkNotEmpty(ref, gen.Type, input); err != nil {
		return Generated{}, nil, err
	}
	return gen, decode, nil
}

// checkNotEmpty rejects composite nodes without fields. Nodes still being
// built are skipped; they are checked when their own generation completes.
func (g *Generator) checkNotEmpty(ref *typedesc.TypeRef, node *schema.Type, input bool) error {
	if node == nil || ref.Class == nil {
		return nil
	}
	if g.inProgress[typeKey{ref.Class.Name, input}] {
		return nil
	}
	switch node.Kind {
	case schema.TypeKindObject:
		if len(node.Fields) == 0 {
			return errors.WithStack(&EmptyObjectTypeError{Class: ref.Class})
		}
	case schema.TypeKindInterface:
		if len(node.Fields) == 0 {
			return errors.WithStack(&EmptyInterfaceTypeError{Class: ref.Class})
		}
	case schema.TypeKindInputObject:
		if len(node.InputFields) == 0 {
			return errors.WithStack(&EmptyInputObjectTypeError{Class: ref.Class})
		}
	}
	return nil
}

// namedType returns the node for a class, generating it on first use.
func (g *Generator) namedType(ref *typedesc.TypeRef, input bool) (*schema.Type, error) {
	class := ref.Class
	// enums and scalars are shared by input and output positions
	if class.Kind == typedesc.KindEnum || class.Kind == typedesc.KindScalar {
		input = false
	}
	key := typeKey{class.Name, input}
	if node, ok := g.types[key]; ok {
		return node, nil
	}

	if node := g.hooks.willGenerateType(ref, input); node != nil {
		return g.attach(ref, key, node), nil
	}

	switch class.Kind {
	case typedesc.KindScalar:
		if !schema.IsBuiltinScalar(class.Name) {
			return nil, errors.WithStack(&TypeNotSupportedError{Class: class, Reason: "custom scalars must be supplied by WillGenerateType"})
		}
		node := schema.BuiltinScalar(class.Name)
		g.types[key] = node
		return node, nil
	case typedesc.KindEnum:
		return g.enumType(ref, key)
	case typedesc.KindObject:
		if input {
			return g.inputType(ref, key)
		}
		return g.objectType(ref, key)
	case typedesc.KindInterface:
		if input {
			return nil, errors.WithStack(&TypeNotSupportedError{Class: class, Reason: "interfaces cannot be used as input"})
		}
		return g.interfaceType(ref, key)
	case typedesc.KindUnion:
		if input {
			return nil, errors.WithStack(&TypeNotSupportedError{Class: class, Reason: "unions cannot be used as input"})
		}
		return g.unionType(ref, key)
	}
	return nil, errors.WithStack(&TypeNotSupportedError{Class: class, Reason: "expected exactly one type argument"})
}

// attach finalizes a node: WillAddTypeToSchema, then registration in the
// schema.
func (g *Generator) attach(ref *typedesc.TypeRef, key typeKey, node *schema.Type) *schema.Type {
	node = g.hooks.willAddTypeToSchema(ref, node)
	g.types[key] = node
	if !schema.IsBuiltinScalar(node.Name) {
		g.schema.AddType(node)
	}
	return node
}

func (g *Generator) className(class *typedesc.Class) string {
	if class.Annotations.Name != "" {
		return class.Annotations.Name
	}
	return class.Name
}

func inputName(name string) string {
	if strings.HasSuffix(name, "Input") {
		return name
	}
	return name + "Input"
}

func description(class *typedesc.Class) string {
	if class.Annotations.Description != "" {
		return class.Annotations.Description
	}
	return class.Description
}

// open registers a node under construction so recursive references resolve
// to it.
func (g *Generator) open(key typeKey, node *schema.Type) {
	g.types[key] = node
	g.inProgress[key] = true
}

func (g *Generator) finish(ref *typedesc.TypeRef, key typeKey, node *schema.Type) *schema.Type {
	delete(g.inProgress, key)
	node = g.hooks.onRewireType(node, wiring.Coordinates{Type: node.Name}, g.registry)
	return g.attach(ref, key, node)
}

func (g *Generator) objectType(ref *typedesc.TypeRef, key typeKey) (*schema.Type, error) {
	class := ref.Class
	name := g.className(class)
	node := schema.NewType(name, schema.TypeKindObject, description(class))
	g.open(key, node)
	g.classes[class.Name] = name

	for _, super := range g.superclasses(class, ConceptObject) {
		iface, err := g.supertype(class, super)
		if err != nil {
			return nil, err
		}
		node.AddInterface(iface.Name)
		if !slices.Contains(iface.PossibleTypes, name) {
			iface.AddPossibleType(name)
		}
	}
	if err := g.addOutputFields(class, node, ConceptObject); err != nil {
		return nil, err
	}
	return g.finish(ref, key, node), nil
}

// supertype resolves an interface implemented by class. It goes through
// resolve so DidGenerateType and the emptiness check see the interface.
func (g *Generator) supertype(class, super *typedesc.Class) (*schema.Type, error) {
	gen, _, err := g.resolve(typedesc.Ref(super), false)
	if err != nil {
		return nil, errors.Wrapf(err, "generating interface %s of %s", super.Name, class.Name)
	}
	if gen.Type != nil {
		return gen.Type, nil
	}
	return g.types[typeKey{super.Name, false}], nil
}

func (g *Generator) interfaceType(ref *typedesc.TypeRef, key typeKey) (*schema.Type, error) {
	class := ref.Class
	name := g.className(class)
	node := schema.NewType(name, schema.TypeKindInterface, description(class))
	g.open(key, node)

	for _, super := range g.superclasses(class, ConceptInterface) {
		iface, err := g.supertype(class, super)
		if err != nil {
			return nil, err
		}
		node.AddInterface(iface.Name)
	}
	if err := g.addOutputFields(class, node, ConceptInterface); err != nil {
		return nil, err
	}
	for _, impl := range g.provider.PossibleTypes(class) {
		gen, _, err := g.resolve(typedesc.Ref(impl), false)
		if err != nil {
			return nil, errors.Wrapf(err, "generating implementation %s of %s", impl.Name, class.Name)
		}
		implName := schema.GetNamedType(gen.Ref)
		if !slices.Contains(node.PossibleTypes, implName) {
			node.AddPossibleType(implName)
		}
	}
	return g.finish(ref, key, node), nil
}

func (g *Generator) unionType(ref *typedesc.TypeRef, key typeKey) (*schema.Type, error) {
	class := ref.Class
	node := schema.NewType(g.className(class), schema.TypeKindUnion, description(class))
	g.open(key, node)
	for _, member := range g.provider.PossibleTypes(class) {
		if member.Kind != typedesc.KindObject {
			return nil, errors.WithStack(&TypeNotSupportedError{Class: member, Reason: "union members must be objects"})
		}
		gen, _, err := g.resolve(typedesc.Ref(member), false)
		if err != nil {
			return nil, errors.Wrapf(err, "generating member %s of union %s", member.Name, class.Name)
		}
		node.AddPossibleType(schema.GetNamedType(gen.Ref))
	}
	if len(node.PossibleTypes) == 0 {
		return nil, errors.WithStack(&TypeNotSupportedError{Class: class, Reason: "union has no members"})
	}
	delete(g.inProgress, key)
	return g.attach(ref, key, node), nil
}

func (g *Generator) enumType(ref *typedesc.TypeRef, key typeKey) (*schema.Type, error) {
	class := ref.Class
	name := g.className(class)
	node := schema.NewType(name, schema.TypeKindEnum, description(class))
	shape := &enumShape{values: make(map[string]any)}
	names := make(map[any]string)
	for _, v := range g.provider.EnumValues(class) {
		if v.Annotations.Ignore {
			continue
		}
		valueName := v.Name
		if v.Annotations.Name != "" {
			valueName = v.Annotations.Name
		}
		ev := schema.NewEnumValue(valueName, v.Annotations.Description)
		if v.Annotations.Deprecated {
			ev.Deprecate(v.Annotations.DeprecationReason)
		}
		node.AddEnumValue(ev)
		shape.values[valueName] = v.Value
		names[v.Value] = valueName
	}
	if len(node.EnumValues) == 0 {
		return nil, errors.WithStack(&TypeNotSupportedError{Class: class, Reason: "enum has no values"})
	}
	g.enums[name] = shape
	g.registry.SetSerializer(name, wiring.EnumSerializer(name, names))
	return g.attach(ref, key, node), nil
}

func (g *Generator) inputType(ref *typedesc.TypeRef, key typeKey) (*schema.Type, error) {
	class := ref.Class
	name := inputName(g.className(class))
	node := schema.NewType(name, schema.TypeKindInputObject, description(class))
	g.open(key, node)
	shape := &inputShape{fields: make(map[string]inputField)}
	g.inputs[name] = shape

	for _, p := range g.provider.Properties(class) {
		if !g.acceptProperty(class, p, ConceptInput) {
			continue
		}
		gen, decode, err := g.resolve(p.Type, true)
		if err != nil {
			return nil, errors.Wrapf(err, "generating input field %s.%s", class.Name, p.Name)
		}
		fieldName := g.hooks.propertyName(p, class)
		iv := schema.NewInputValue(fieldName, p.Annotations.Description, gen.Ref)
		if p.Annotations.Deprecated {
			iv.Deprecate(p.Annotations.DeprecationReason)
		}
		node.AddInputField(iv)
		shape.fields[fieldName] = inputField{property: p.Name, decode: decode}
	}
	return g.finish(ref, key, node), nil
}
