package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/atrilabs/atri-runtime/internal/config"
	"github.com/atrilabs/atri-runtime/internal/errors"
	pkgroutes "github.com/atrilabs/atri-runtime/pkg/routes"
	"github.com/atrilabs/atri-runtime/pkg/server"
)

func serveCmd(configPath *string) *cobra.Command {
	var (
		addr   string
		source string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session server",
		Long: `Run the session server.

Clients connect to /ws?route=<path> and resume with &session=<id>.
Health checks are served on /live and /ready, metrics on /metrics.

Send SIGHUP to reload the app definition. If the new definition is
invalid the running routes stay in place.

Examples:
  atri serve
  atri serve --addr :9000
  atri serve --app s3://my-bucket/apps/demo.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Address = addr
			}
			if source != "" {
				cfg.App.Source = source
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Address to listen on (default from atri.json)")
	cmd.Flags().StringVar(&source, "app", "", "App definition file or s3:// URL (default from atri.json)")

	return cmd
}

func runServe(cfg *config.Config) error {
	logger, err := cfg.Logger(os.Stderr)
	if err != nil {
		return errors.New("E102").Wrap(err)
	}
	slog.SetDefault(logger)

	ctx := context.Background()
	defs, app, err := loadRoutes(ctx, cfg)
	if err != nil {
		return err
	}
	reg, err := buildRegistry(defs)
	if err != nil {
		return err
	}
	if app != nil {
		logger.Info("app definition loaded", "source", app.Source(), "routes", len(app.Paths()))
	}

	sc, err := cfg.ServerConfig()
	if err != nil {
		return err
	}
	sc.Logger = logger
	srv, err := server.New(reg, sc)
	if err != nil {
		return errors.New("E130").Wrap(err)
	}

	stop := watchReload(ctx, cfg, reg, srv.Metrics(), logger)
	defer stop()

	success("listening on %s (%d routes)", sc.Address, reg.Len())
	if err := srv.Run(); err != nil {
		return errors.New("E131").Wrap(err)
	}
	return nil
}

// watchReload rebuilds the registry on SIGHUP until the returned function
// is called.
func watchReload(ctx context.Context, cfg *config.Config, reg *pkgroutes.Registry, metrics *server.Metrics, logger *slog.Logger) func() {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-hup:
				err := reload(ctx, cfg, reg)
				metrics.RouteReload(err)
				if err != nil {
					logger.Error("route reload failed, keeping current routes", "error", err)
					continue
				}
				logger.Info("routes reloaded", "routes", reg.Len(), "version", reg.Version())
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(hup)
		close(done)
	}
}

func reload(ctx context.Context, cfg *config.Config, reg *pkgroutes.Registry) error {
	defs, _, err := loadRoutes(ctx, cfg)
	if err != nil {
		return err
	}
	if err := reg.Replace(defs); err != nil {
		return routeError(err)
	}
	return nil
}
