package generator

import (
	"github.com/hanpama/reflectgraph/internal/typedesc"
	"github.com/hanpama/reflectgraph/internal/wiring"
	"go.uber.org/zap"
)

// TopLevelNames override the names of the root operation types.
type TopLevelNames struct {
	Query        string
	Mutation     string
	Subscription string
}

func (n TopLevelNames) name(kind Concept) string {
	switch kind {
	case ConceptQuery:
		return orDefault(n.Query, "Query")
	case ConceptMutation:
		return orDefault(n.Mutation, "Mutation")
	case ConceptSubscription:
		return orDefault(n.Subscription, "Subscription")
	}
	return ""
}

func orDefault(s, d string) string {
	if s == "" {
		return d
	}
	return s
}

// Config is the input of one schema build.
type Config struct {
	Provider      typedesc.Provider
	Hooks         Hooks
	TopLevelNames TopLevelNames
	// DisallowedOwners lists class names whose members are never exposed,
	// even when inherited.
	DisallowedOwners []string
	// Registry receives the producers. A new one is created when nil.
	Registry *wiring.Registry
	Logger   *zap.Logger
}

// TopLevelObject is a class whose functions become root operation fields.
// Instance is passed to those functions as their source.
type TopLevelObject struct {
	Class    *typedesc.Class
	Instance any
}
