package main

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	eventbus "github.com/hanpama/reflectgraph/internal/eventbus"
	events "github.com/hanpama/reflectgraph/internal/events"
	"github.com/hanpama/reflectgraph/internal/config"
	"github.com/hanpama/reflectgraph/internal/generator"
	"github.com/hanpama/reflectgraph/internal/protoschema"
	"github.com/hanpama/reflectgraph/internal/schema"
	"github.com/hanpama/reflectgraph/internal/wiring"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/protobuf/reflect/protoregistry"
)

type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "reflectgraph",
		Short:         "GraphQL gateway for gRPC services",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (yaml, json or toml)")
	cmd.AddCommand(newSDLCommand(opts), newServeCommand(opts))
	return cmd
}

// addSchemaFlags adds the flags shared by every command that builds a
// schema. schemaFlagKeys maps them to config keys.
func addSchemaFlags(fs *pflag.FlagSet) {
	fs.String("descriptors", "", "FileDescriptorSet holding the services")
	fs.StringSlice("query", nil, "services or service/Method entries for the query root")
	fs.StringSlice("mutation", nil, "services or service/Method entries for the mutation root")
	fs.StringSlice("subscription", nil, "services or service/Method entries for the subscription root")
}

var schemaFlagKeys = map[string]string{
	"descriptors":  "schema.descriptors",
	"query":        "schema.services.query",
	"mutation":     "schema.services.mutation",
	"subscription": "schema.services.subscription",
}

// load reads the config file and environment, with the flags named in keys
// taking precedence over the config keys they map to.
func (o *rootOptions) load(fs *pflag.FlagSet, keys map[string]string) (*config.Config, error) {
	v, err := config.New(o.configPath)
	if err != nil {
		return nil, err
	}
	if err := bindFlags(v, fs, keys); err != nil {
		return nil, err
	}
	return config.FromViper(v)
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) error {
	for name, key := range keys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return errors.Wrapf(err, "binding --%s", name)
		}
	}
	return nil
}

// buildSchema generates the schema and producers for the configured
// services. invoker may be nil when the schema is only printed.
func buildSchema(ctx context.Context, cfg *config.Config, files *protoregistry.Files, invoker protoschema.Invoker, log *zap.Logger) (sch *schema.Schema, reg *wiring.Registry, err error) {
	start := time.Now()
	defer func() {
		e := events.SchemaBuilt{Source: cfg.Schema.Descriptors, Err: err, Duration: time.Since(start)}
		if sch != nil {
			e.Types = len(sch.Types)
			for _, t := range sch.Types {
				e.Fields += len(t.Fields)
			}
		}
		eventbus.Publish(ctx, e)
	}()

	if len(cfg.Schema.Services.Query) == 0 {
		return nil, nil, errors.New("schema.services.query: at least one service is required")
	}
	provider := protoschema.New(files, invoker, protoschema.WithLogger(log))
	roots := make([][]generator.TopLevelObject, 3)
	for i, r := range []struct {
		role  generator.Concept
		names []string
	}{
		{generator.ConceptQuery, cfg.Schema.Services.Query},
		{generator.ConceptMutation, cfg.Schema.Services.Mutation},
		{generator.ConceptSubscription, cfg.Schema.Services.Subscription},
	} {
		if roots[i], err = provider.TopLevel(r.role, r.names...); err != nil {
			return nil, nil, err
		}
	}
	return generator.Generate(generator.Config{
		Provider: provider,
		TopLevelNames: generator.TopLevelNames{
			Query:        cfg.Schema.Query,
			Mutation:     cfg.Schema.Mutation,
			Subscription: cfg.Schema.Subscription,
		},
		Logger: log,
	}, roots[0], roots[1], roots[2])
}

func loadDescriptors(cfg *config.Config) (*protoregistry.Files, error) {
	if cfg.Schema.Descriptors == "" {
		return nil, errors.New("schema.descriptors: a descriptor set is required")
	}
	return protoschema.LoadDescriptorSet(cfg.Schema.Descriptors)
}
