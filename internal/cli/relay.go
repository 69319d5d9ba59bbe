package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/geckode/internal/config"
	"github.com/roach88/geckode/internal/relay"
	"github.com/roach88/geckode/internal/store"
	"github.com/roach88/geckode/internal/transport"
)

// shutdownTimeout bounds draining connections and flushing rooms.
const shutdownTimeout = 10 * time.Second

// RelayOptions holds flags for the relay command.
type RelayOptions struct {
	*RootOptions
	Addr   string
	DBPath string
	Secret string
}

// NewRelayCommand creates the relay command.
func NewRelayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RelayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the channel relay",
		Long: `Run the relay editors connect to.

Each channel holds the authoritative program state for one workspace.
Deltas are persisted to SQLite before they are acknowledged, and a
snapshot is written when the last member leaves and on shutdown.

Without a secret the relay admits every connection as an editor.

Examples:
  geckode relay
  geckode relay --addr :8787 --db /var/lib/geckode.db --secret "$SECRET"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides relay.addr)")
	cmd.Flags().StringVar(&opts.DBPath, "db", "", "SQLite database path (overrides relay.db_path)")
	cmd.Flags().StringVar(&opts.Secret, "secret", "", "token signing secret (overrides relay.secret)")

	return cmd
}

func (o *RelayOptions) apply(cfg *config.Config) error {
	if o.Addr != "" {
		cfg.Relay.Addr = o.Addr
	}
	if o.DBPath != "" {
		cfg.Relay.DBPath = o.DBPath
	}
	if o.Secret != "" {
		cfg.Relay.Secret = o.Secret
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid relay settings", err)
	}
	return nil
}

// relayRuntime is a wired relay: store, hub and HTTP routes.
type relayRuntime struct {
	store  *store.Store
	hub    *relay.Hub
	server *relay.Server
	logger *slog.Logger
}

func newRelayRuntime(cfg config.RelayConfig, logger *slog.Logger) (*relayRuntime, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hub := relay.NewHub(relay.WithStore(st), relay.WithLogger(logger), relay.WithRegisterer(reg))

	var auth relay.Authorizer = relay.NewJWTAuthorizer([]byte(cfg.Secret))
	if cfg.Secret == "" {
		logger.Warn("no relay secret configured; every connection is admitted as an editor")
		auth = relay.AllowAll{}
	}

	settings := transport.DefaultSettings()
	settings.ReadLimit = cfg.ReadLimit
	settings.WriteTimeout = cfg.WriteTimeout

	return &relayRuntime{
		store:  st,
		hub:    hub,
		server: relay.NewServer(hub, auth, relay.ServerOptions{Gatherer: reg, Settings: settings, Logger: logger}),
		logger: logger,
	}, nil
}

// close disconnects every member, flushes whatever rooms remain loaded
// and closes the store.
func (r *relayRuntime) close(ctx context.Context) error {
	return errors.Join(r.hub.Close(ctx), r.hub.Flush(ctx), r.store.Close())
}

func runRelay(opts *RelayOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if err := opts.apply(cfg); err != nil {
		return err
	}
	logger := cfg.Logger(cmd.ErrOrStderr())

	rt, err := newRelayRuntime(cfg.Relay, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open relay store", err)
	}

	httpSrv := &http.Server{
		Addr:              cfg.Relay.Addr,
		Handler:           rt.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("relay listening", "addr", cfg.Relay.Addr, "db", cfg.Relay.DBPath)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", cfg.Relay.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("relay shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(httpSrv.Shutdown(sctx), rt.close(sctx))
	})

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "relay stopped", err)
	}
	return nil
}
