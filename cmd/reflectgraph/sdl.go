package main

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/hanpama/reflectgraph/internal/logging"
	"github.com/hanpama/reflectgraph/internal/schema"
	"github.com/spf13/cobra"
)

type sdlOptions struct {
	*rootOptions
	out string
}

func newSDLCommand(root *rootOptions) *cobra.Command {
	opts := &sdlOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "sdl",
		Short: "Print the GraphQL schema generated from a descriptor set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSDL(cmd, opts)
		},
	}
	addSchemaFlags(cmd.Flags())
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "write the schema to a file instead of stdout")
	return cmd
}

func runSDL(cmd *cobra.Command, opts *sdlOptions) error {
	cfg, err := opts.load(cmd.Flags(), schemaFlagKeys)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	files, err := loadDescriptors(cfg)
	if err != nil {
		return err
	}
	sch, _, err := buildSchema(cmd.Context(), cfg, files, nil, log)
	if err != nil {
		return errors.Wrap(err, "building schema")
	}

	sdl := schema.Render(sch)
	if opts.out == "" {
		_, err = cmd.OutOrStdout().Write([]byte(sdl))
		return err
	}
	return errors.Wrap(os.WriteFile(opts.out, []byte(sdl), 0o644), "writing schema")
}
