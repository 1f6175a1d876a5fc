package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	eventbus "github.com/hanpama/reflectgraph/internal/eventbus"
	"github.com/hanpama/reflectgraph/internal/config"
	"github.com/hanpama/reflectgraph/internal/grpctp"
	"github.com/hanpama/reflectgraph/internal/introspection"
	"github.com/hanpama/reflectgraph/internal/logging"
	"github.com/hanpama/reflectgraph/internal/metrics"
	"github.com/hanpama/reflectgraph/internal/otel"
	"github.com/hanpama/reflectgraph/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the GraphQL gateway in front of the configured gRPC backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, root)
		},
	}
	addSchemaFlags(cmd.Flags())
	cmd.Flags().String("addr", "", "HTTP listen address")
	return cmd
}

func runServe(cmd *cobra.Command, root *rootOptions) error {
	keys := map[string]string{"addr": "server.addr"}
	for k, key := range schemaFlagKeys {
		keys[k] = key
	}
	cfg, err := root.load(cmd.Flags(), keys)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := newGateway(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer gw.close()

	lis, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", cfg.Server.Addr)
	}
	log.Info("GraphQL server listening", zap.String("addr", lis.Addr().String()))
	return serve(ctx, lis, gw.mux, log)
}

// gateway owns everything a running server holds: the event subscribers,
// the backend transport and the HTTP routes.
type gateway struct {
	mux     *http.ServeMux
	closers []func()
}

func (g *gateway) close() {
	for i := len(g.closers) - 1; i >= 0; i-- {
		g.closers[i]()
	}
}

func newGateway(ctx context.Context, cfg *config.Config, log *zap.Logger) (_ *gateway, err error) {
	gw := &gateway{mux: http.NewServeMux()}
	defer func() {
		if err != nil {
			gw.close()
		}
	}()
	if err := cfg.CheckBackends(); err != nil {
		return nil, err
	}
	files, err := loadDescriptors(cfg)
	if err != nil {
		return nil, err
	}

	eventbus.Use(eventbus.New())
	shutdownTracing, err := otel.Setup(cfg.Otel.Endpoint, cfg.Otel.Service)
	if err != nil {
		return nil, errors.Wrap(err, "setting up tracing")
	}
	gw.closers = append(gw.closers, func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("flushing traces", zap.Error(err))
		}
	})

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	gw.closers = append(gw.closers, metrics.New(promReg).Attach())

	transport := grpctp.New(
		grpctp.WithProvider(grpctp.ProviderFunc(func(_ context.Context, service string) ([]string, error) {
			if target, ok := cfg.Transport.Backend(service); ok {
				return []string{target}, nil
			}
			return nil, nil
		})),
		grpctp.WithMaxConnsPerEndpoint(cfg.Transport.MaxConnsPerEndpoint),
		grpctp.WithRPCTimeout(cfg.Transport.RPCTimeout),
		grpctp.WithMaxMessageBytes(cfg.Transport.MaxMessageBytes),
	)
	gw.closers = append(gw.closers, func() { _ = transport.Close() })

	sch, reg, err := buildSchema(ctx, cfg, files, transport, log)
	if err != nil {
		return nil, errors.Wrap(err, "building schema")
	}
	if cfg.Schema.Introspection {
		sch = introspection.Install(sch, reg)
	}
	log.Info("schema built", zap.Int("types", len(sch.Types)), zap.String("descriptors", cfg.Schema.Descriptors))

	opts := []server.Option{
		server.WithTimeout(cfg.Server.Timeout),
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		server.WithGraphiQL(cfg.Server.GraphiQL),
		server.WithLogger(log),
	}
	if cfg.Server.Pretty {
		opts = append(opts, server.WithPretty())
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		opts = append(opts, server.WithCORS(cfg.Server.CORSOrigins...))
	}
	if len(cfg.Server.MetadataHeaders) > 0 {
		opts = append(opts, server.WithMetadataHeaders(cfg.Server.MetadataHeaders...))
	}
	h, err := server.New(reg, sch, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating handler")
	}
	gw.mux.Handle("/graphql", h)
	if cfg.Server.Metrics != "" {
		gw.mux.Handle(cfg.Server.Metrics, metrics.Handler(promReg))
	}
	return gw, nil
}

// serve runs an HTTP server on lis until ctx is done, then drains it.
func serve(ctx context.Context, lis net.Listener, h http.Handler, log *zap.Logger) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(lis); !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "serving")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
