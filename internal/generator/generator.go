// Package generator builds a schema and its field wiring from type
// descriptors.
package generator

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/hanpama/reflectgraph/internal/schema"
	"github.com/hanpama/reflectgraph/internal/typedesc"
	"github.com/hanpama/reflectgraph/internal/wiring"
	"go.uber.org/zap"
)

// Generator holds the state of a single build. It is not safe for concurrent
// use.
type Generator struct {
	cfg      Config
	hooks    *Hooks
	provider typedesc.Provider
	log      *zap.Logger

	schema   *schema.Schema
	registry *wiring.Registry

	types      map[typeKey]*schema.Type
	inProgress map[typeKey]bool
	classes    map[string]string // output class name -> wire name
	inputs     map[string]*inputShape
	enums      map[string]*enumShape
}

type typeKey struct {
	class string
	input bool
}

// inputShape maps wire names of an input object back to property names.
type inputShape struct {
	fields map[string]inputField
}

type inputField struct {
	property string
	decode   decodeFunc
}

// enumShape maps enum value names to host values.
type enumShape struct {
	values map[string]any
}

// New returns a generator for cfg.
func New(cfg Config) *Generator {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Registry == nil {
		cfg.Registry = wiring.New()
	}
	g := &Generator{
		cfg:        cfg,
		hooks:      &cfg.Hooks,
		provider:   cfg.Provider,
		log:        cfg.Logger,
		schema:     schema.NewSchema(""),
		registry:   cfg.Registry,
		types:      make(map[typeKey]*schema.Type),
		inProgress: make(map[typeKey]bool),
		classes:    make(map[string]string),
		inputs:     make(map[string]*inputShape),
		enums:      make(map[string]*enumShape),
	}
	if c, ok := cfg.Provider.(typedesc.Classifier); ok {
		g.registry.AddTypeResolver(func(v any) (string, bool) {
			class, ok := c.ClassOf(v)
			if !ok {
				return "", false
			}
			name, ok := g.classes[class.Name]
			return name, ok
		})
	}
	return g
}

// Generate builds a schema from the given root objects. Queries are
// required; an empty mutation or subscription list omits that root type.
func Generate(cfg Config, queries, mutations, subscriptions []TopLevelObject) (*schema.Schema, *wiring.Registry, error) {
	g := New(cfg)
	if err := g.GenerateRoots(queries, mutations, subscriptions); err != nil {
		return nil, nil, err
	}
	return g.schema, g.registry, nil
}

// GenerateRoots adds the root operation types to the schema.
func (g *Generator) GenerateRoots(queries, mutations, subscriptions []TopLevelObject) error {
	query, err := g.topLevel(ConceptQuery, queries)
	if err != nil {
		return err
	}
	g.schema.SetQueryType(query.Name)

	if len(mutations) > 0 {
		mutation, err := g.topLevel(ConceptMutation, mutations)
		if err != nil {
			return err
		}
		g.schema.SetMutationType(mutation.Name)
	}

	// An empty list means the application does not support subscriptions.
	if len(subscriptions) > 0 {
		subscription, err := g.topLevel(ConceptSubscription, subscriptions)
		if err != nil {
			return err
		}
		g.schema.SetSubscriptionType(subscription.Name)
	}
	return nil
}

// GenerateType generates the named type for class in the role kind and adds
// it to the schema. kind must be ConceptObject, ConceptInput,
// ConceptInterface, ConceptUnion or ConceptEnum.
func (g *Generator) GenerateType(class *typedesc.Class, kind Concept) (*schema.Type, error) {
	ref := typedesc.Ref(class)
	input := kind == ConceptInput
	gen, _, err := g.resolve(ref, input)
	if err != nil {
		return nil, err
	}
	if gen.Type == nil {
		return g.schema.Types[schema.GetNamedType(gen.Ref)], nil
	}
	return gen.Type, nil
}

// Schema returns the schema built so far.
func (g *Generator) Schema() *schema.Schema { return g.schema }

// Registry returns the registry receiving the producers.
func (g *Generator) Registry() *wiring.Registry { return g.registry }

func (g *Generator) topLevel(kind Concept, objects []TopLevelObject) (*schema.Type, error) {
	name := g.cfg.TopLevelNames.name(kind)
	node := schema.NewType(name, schema.TypeKindObject, "")

	var classes []*typedesc.Class
	for _, obj := range objects {
		class := obj.Class
		if class == nil || class.Name == "" {
			return nil, errors.WithStack(&TypeNotNamedError{Ref: &typedesc.TypeRef{Class: class}})
		}
		classes = append(classes, class)
		for _, fn := range g.provider.Functions(class) {
			if !g.acceptFunction(class, fn, kind) {
				continue
			}
			if kind == ConceptSubscription && !g.hooks.isValidSubscriptionReturnType(class, fn) {
				return nil, errors.WithStack(&InvalidSubscriptionTypeError{Class: class, Function: fn})
			}
			field, producer, err := g.functionField(fn, obj.Instance)
			if err != nil {
				return nil, errors.Wrapf(err, "generating %s field %s.%s", kind, class.Name, fn.Name)
			}
			field = g.hooks.didGenerateField(kind, class, fn, field)
			if field == nil {
				continue
			}
			if node.Field(field.Name) != nil {
				g.reject(class, fn.Name, kind, "field name already taken")
				continue
			}
			node.AddField(field)
			g.registry.Register(wiring.Coordinates{Type: name, Field: field.Name}, producer)
		}
	}

	node = g.hooks.onRewireType(node, wiring.Coordinates{Type: name}, g.registry)
	node = g.hooks.didGenerateObject(kind, node)
	if node.FieldCount() == 0 {
		switch kind {
		case ConceptQuery:
			return nil, errors.WithStack(&EmptyQueryTypeError{Classes: classes})
		case ConceptMutation:
			return nil, errors.WithStack(&EmptyMutationTypeError{Classes: classes})
		default:
			return nil, errors.WithStack(&EmptySubscriptionTypeError{Classes: classes})
		}
	}
	node = g.hooks.willAddTypeToSchema(nil, node)
	g.schema.AddType(node)
	return node, nil
}

// acceptFunction applies the structural filters and the hook predicate.
func (g *Generator) acceptFunction(class *typedesc.Class, fn *typedesc.Function, kind Concept) bool {
	if reason := g.structural(fn.Visibility, fn.Annotations, fn.Owner); reason != "" {
		g.reject(class, fn.Name, kind, reason)
		return false
	}
	if fn.Return == nil || fn.Invoke == nil {
		g.reject(class, fn.Name, kind, "unsupported signature")
		return false
	}
	for _, p := range fn.Params {
		if p.Type == nil && !p.Injected {
			g.reject(class, fn.Name, kind, "unsupported parameter "+p.Name)
			return false
		}
	}
	if !g.hooks.isValidFunction(class, fn, kind) {
		g.reject(class, fn.Name, kind, "rejected by hook")
		return false
	}
	return true
}

func (g *Generator) acceptProperty(class *typedesc.Class, p *typedesc.Property, kind Concept) bool {
	if reason := g.structural(p.Visibility, p.Annotations, p.Owner); reason != "" {
		g.reject(class, p.Name, kind, reason)
		return false
	}
	if p.Type == nil || (kind != ConceptInput && p.Get == nil) {
		g.reject(class, p.Name, kind, "unsupported type")
		return false
	}
	if !g.hooks.isValidProperty(class, p, kind) {
		g.reject(class, p.Name, kind, "rejected by hook")
		return false
	}
	return true
}

func (g *Generator) structural(v typedesc.Visibility, a typedesc.Annotations, owner *typedesc.Class) string {
	switch {
	case v != typedesc.Public:
		return "not public"
	case a.Ignore:
		return "ignored"
	case owner != nil && slices.Contains(g.cfg.DisallowedOwners, owner.Name):
		return "declared on " + owner.Name
	}
	return ""
}

func (g *Generator) reject(class *typedesc.Class, member string, kind Concept, reason string) {
	g.log.Debug("skipping member",
		zap.String("class", class.Name),
		zap.String("member", member),
		zap.Stringer("concept", kind),
		zap.String("reason", reason),
	)
}

// superclasses returns the valid supertypes of class. A rejected supertype is
// replaced by its own valid supertypes.
func (g *Generator) superclasses(class *typedesc.Class, kind Concept) []*typedesc.Class {
	var out []*typedesc.Class
	seen := map[string]bool{class.Name: true}
	var walk func(c *typedesc.Class)
	walk = func(c *typedesc.Class) {
		for _, s := range g.provider.Supertypes(c) {
			if seen[s.Name] {
				continue
			}
			seen[s.Name] = true
			if s.Kind == typedesc.KindInterface && s.Name != "" && g.hooks.isValidSuperclass(s, kind) {
				out = append(out, s)
				continue
			}
			walk(s)
		}
	}
	walk(class)
	return out
}
