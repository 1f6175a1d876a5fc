// Package protoschema describes protobuf descriptors as typedesc classes so
// that gRPC services can be served as a GraphQL schema.
//
// Messages become objects, with a separate input class wherever a message
// is used as an argument. Enums drop their UPPER_SNAKE prefix and hide an
// UNSPECIFIED zero value. Unary methods become query or mutation functions
// whose arguments are the fields of the request message; server-streaming
// methods become subscription functions. Client-streaming methods and map
// fields have no GraphQL form and are skipped.
//
// Scalars follow the protobuf JSON mapping: 64-bit integers are strings,
// unsigned 32-bit integers are floats, bytes are base64 strings and
// google.protobuf.Timestamp is an RFC 3339 string. Wrapper messages such as
// google.protobuf.StringValue become their nullable scalar.
package protoschema

import (
	"context"
	"os"
	"strings"
	"sync"
	"unicode"

	"github.com/cockroachdb/errors"
	"github.com/hanpama/reflectgraph/internal/eventsource"
	"github.com/hanpama/reflectgraph/internal/generator"
	"github.com/hanpama/reflectgraph/internal/typedesc"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

// Invoker performs backend calls. *grpctp.Transport implements it.
type Invoker interface {
	Call(ctx context.Context, method protoreflect.MethodDescriptor, request protoreflect.Message) (protoreflect.Message, error)
	Stream(ctx context.Context, method protoreflect.MethodDescriptor, request protoreflect.Message) (eventsource.Source, error)
}

// Provider implements typedesc.Provider and typedesc.Classifier for the
// descriptors in a file registry. It is safe for concurrent use.
type Provider struct {
	files   *protoregistry.Files
	invoker Invoker
	log     *zap.Logger

	mu      sync.Mutex
	classes map[classKey]*typedesc.Class
}

type classKey struct {
	name  protoreflect.FullName
	input bool
}

// message is the host of object and input classes.
type message struct {
	desc  protoreflect.MessageDescriptor
	input bool
}

// service is the host of top-level classes. Unless all is set only the
// listed methods are exposed.
type service struct {
	desc    protoreflect.ServiceDescriptor
	role    generator.Concept
	all     bool
	methods map[protoreflect.Name]bool
}

type Option func(*Provider)

func WithLogger(l *zap.Logger) Option { return func(p *Provider) { p.log = l } }

func New(files *protoregistry.Files, invoker Invoker, opts ...Option) *Provider {
	p := &Provider{
		files:   files,
		invoker: invoker,
		log:     zap.NewNop(),
		classes: make(map[classKey]*typedesc.Class),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Files registers fds, which must be given dependencies first.
func Files(fds ...protoreflect.FileDescriptor) (*protoregistry.Files, error) {
	files := new(protoregistry.Files)
	for _, fd := range fds {
		if err := files.RegisterFile(fd); err != nil {
			return nil, errors.Wrapf(err, "registering %s", fd.Path())
		}
	}
	return files, nil
}

// LoadDescriptorSet reads a serialized FileDescriptorSet, as written by
// protoc --descriptor_set_out --include_imports.
func LoadDescriptorSet(path string) (*protoregistry.Files, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading descriptor set")
	}
	var set descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(b, &set); err != nil {
		return nil, errors.Wrapf(err, "decoding descriptor set %s", path)
	}
	files, err := protodesc.NewFiles(&set)
	if err != nil {
		return nil, errors.Wrapf(err, "linking descriptor set %s", path)
	}
	return files, nil
}

// TopLevel returns root objects for role, which must be query, mutation or
// subscription. Each name is either a service, which contributes every
// method suited to role, or service/Method for a single method. Query and
// mutation roots take unary methods; subscription roots take
// server-streaming ones.
func (p *Provider) TopLevel(role generator.Concept, names ...string) ([]generator.TopLevelObject, error) {
	switch role {
	case generator.ConceptQuery, generator.ConceptMutation, generator.ConceptSubscription:
	default:
		return nil, errors.Newf("protoschema: %v is not a root role", role)
	}
	var order []*service
	byName := map[protoreflect.FullName]*service{}
	for _, name := range names {
		svcName, method, _ := strings.Cut(name, "/")
		d, err := p.files.FindDescriptorByName(protoreflect.FullName(svcName))
		if err != nil {
			return nil, errors.Wrapf(err, "finding service %s", svcName)
		}
		sd, ok := d.(protoreflect.ServiceDescriptor)
		if !ok {
			return nil, errors.Newf("protoschema: %s is not a service", svcName)
		}
		svc := byName[sd.FullName()]
		if svc == nil {
			svc = &service{desc: sd, role: role}
			byName[sd.FullName()] = svc
			order = append(order, svc)
		}
		if method == "" {
			svc.all = true
			continue
		}
		if sd.Methods().ByName(protoreflect.Name(method)) == nil {
			return nil, errors.Newf("protoschema: %s has no method %s", svcName, method)
		}
		if svc.methods == nil {
			svc.methods = map[protoreflect.Name]bool{}
		}
		svc.methods[protoreflect.Name(method)] = true
	}
	out := make([]generator.TopLevelObject, 0, len(order))
	for _, svc := range order {
		out = append(out, generator.TopLevelObject{Class: &typedesc.Class{
			Name:        string(svc.desc.Name()),
			Kind:        typedesc.KindObject,
			Description: comments(svc.desc),
			Host:        svc,
		}})
	}
	return out, nil
}

// ClassOf implements typedesc.Classifier for message values.
func (p *Provider) ClassOf(value any) (*typedesc.Class, bool) {
	m, ok := asMessage(value)
	if !ok || m == nil {
		return nil, false
	}
	return p.messageClass(m.Descriptor(), false), true
}

// Class returns the object class of the named message or enum.
func (p *Provider) Class(name string) (*typedesc.Class, error) {
	d, err := p.files.FindDescriptorByName(protoreflect.FullName(name))
	if err != nil {
		return nil, errors.Wrapf(err, "finding %s", name)
	}
	switch d := d.(type) {
	case protoreflect.MessageDescriptor:
		return p.messageClass(d, false), nil
	case protoreflect.EnumDescriptor:
		return p.enumClass(d), nil
	}
	return nil, errors.Newf("protoschema: %s is neither a message nor an enum", name)
}

func (p *Provider) cached(key classKey, build func() *typedesc.Class) *typedesc.Class {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.classes[key]; ok {
		return c
	}
	c := build()
	p.classes[key] = c
	return c
}

func (p *Provider) messageClass(md protoreflect.MessageDescriptor, input bool) *typedesc.Class {
	return p.cached(classKey{name: md.FullName(), input: input}, func() *typedesc.Class {
		return &typedesc.Class{
			Name:        typeName(md),
			Kind:        typedesc.KindObject,
			Description: comments(md),
			Annotations: typedesc.Annotations{Deprecated: deprecated(md)},
			Host:        message{desc: md, input: input},
		}
	})
}

func (p *Provider) enumClass(ed protoreflect.EnumDescriptor) *typedesc.Class {
	return p.cached(classKey{name: ed.FullName()}, func() *typedesc.Class {
		return &typedesc.Class{
			Name:        typeName(ed),
			Kind:        typedesc.KindEnum,
			Description: comments(ed),
			Host:        ed,
		}
	})
}

var (
	streamClass = &typedesc.Class{Name: "Stream", Kind: typedesc.KindStream}

	scalarClasses = map[string]*typedesc.Class{
		"String":  {Name: "String", Kind: typedesc.KindScalar},
		"Int":     {Name: "Int", Kind: typedesc.KindScalar},
		"Float":   {Name: "Float", Kind: typedesc.KindScalar},
		"Boolean": {Name: "Boolean", Kind: typedesc.KindScalar},
	}
)

const (
	timestampName = "google.protobuf.Timestamp"
	emptyName     = "google.protobuf.Empty"
)

// wrapperScalar returns the scalar a well-known message stands for.
func wrapperScalar(md protoreflect.MessageDescriptor) (string, bool) {
	if md.FullName() == timestampName {
		return "String", true
	}
	if md.ParentFile() == nil || md.ParentFile().Package() != "google.protobuf" || !strings.HasSuffix(string(md.Name()), "Value") {
		return "", false
	}
	v := md.Fields().ByName("value")
	if v == nil || md.Fields().Len() != 1 {
		return "", false
	}
	return scalarName(v.Kind())
}

func scalarName(k protoreflect.Kind) (string, bool) {
	switch k {
	case protoreflect.BoolKind:
		return "Boolean", true
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		return "Int", true
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind, protoreflect.FloatKind, protoreflect.DoubleKind:
		return "Float", true
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind,
		protoreflect.Uint64Kind, protoreflect.Fixed64Kind,
		protoreflect.StringKind, protoreflect.BytesKind:
		return "String", true
	}
	return "", false
}

// typeRef returns the reference of a field, or nil for fields without a
// GraphQL form. Every input field is nullable since absent fields read as
// their zero value.
func (p *Provider) typeRef(fd protoreflect.FieldDescriptor, input bool) *typedesc.TypeRef {
	if fd.IsMap() {
		return nil
	}
	var elem *typedesc.TypeRef
	nullable := fd.HasPresence()
	switch fd.Kind() {
	case protoreflect.MessageKind, protoreflect.GroupKind:
		if name, ok := wrapperScalar(fd.Message()); ok {
			elem = typedesc.Ref(scalarClasses[name])
		} else {
			elem = typedesc.Ref(p.messageClass(fd.Message(), input))
		}
	case protoreflect.EnumKind:
		elem = typedesc.Ref(p.enumClass(fd.Enum()))
		nullable = nullable || hiddenZero(fd.Enum())
	default:
		name, ok := scalarName(fd.Kind())
		if !ok {
			return nil
		}
		elem = typedesc.Ref(scalarClasses[name])
	}
	ref := elem
	if fd.IsList() {
		ref, nullable = typedesc.ListOf(elem), false
	}
	if nullable || input {
		ref = ref.OrNull()
	}
	return ref
}

// typeName is the message or enum name with its enclosing messages
// prepended: shop.Book.Edition becomes BookEdition.
func typeName(d protoreflect.Descriptor) string {
	name := string(d.Name())
	for parent := d.Parent(); parent != nil; parent = parent.Parent() {
		md, ok := parent.(protoreflect.MessageDescriptor)
		if !ok {
			break
		}
		name = string(md.Name()) + name
	}
	return name
}

func comments(d protoreflect.Descriptor) string {
	if d.ParentFile() == nil {
		return ""
	}
	loc := d.ParentFile().SourceLocations().ByDescriptor(d)
	return strings.TrimSpace(loc.LeadingComments)
}

func deprecated(d protoreflect.Descriptor) bool {
	type deprecatable interface{ GetDeprecated() bool }
	opts, ok := d.Options().(deprecatable)
	return ok && opts.GetDeprecated()
}

// screaming converts a CamelCase name to UPPER_SNAKE.
func screaming(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) && i > 0 {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}
