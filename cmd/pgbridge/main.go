// Command pgbridge serves a PostgreSQL schema as an HTTP API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pgbridge-dev/pgbridge/pkg/auth"
	"github.com/pgbridge-dev/pgbridge/pkg/config"
	"github.com/pgbridge-dev/pgbridge/pkg/db"
	"github.com/pgbridge-dev/pgbridge/pkg/engine"
	"github.com/pgbridge-dev/pgbridge/pkg/executor"
	"github.com/pgbridge-dev/pgbridge/pkg/observability"
	"github.com/pgbridge-dev/pgbridge/pkg/openapi"
	"github.com/pgbridge-dev/pgbridge/pkg/schema"
	"github.com/pgbridge-dev/pgbridge/pkg/transport"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:     "pgbridge",
		Short:   "Expose a PostgreSQL schema as an HTTP API",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
		SilenceUsage: true,
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file")

	return root
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("creating database pool: %w", err)
	}
	defer pool.Close()

	cache := schema.NewCache()
	loader := schema.NewCatalogLoader(pool.Raw(), cfg.Database.Schemas)
	reloader := schema.NewReloader(cache, loader, pool.Raw(),
		cfg.Database.ReloadInterval, cfg.Database.ReloadChannel)
	reloader.OnReload = func(ok bool) {
		outcome := "ok"
		if !ok {
			outcome = "error"
		}
		observability.SchemaReloadsTotal.WithLabelValues(outcome).Inc()
	}

	retry := &db.RetryState{}
	reconnector := db.NewReconnector(pool, retry)
	reconnector.OnRecovered = reloader.Wake
	reconnector.OnStateChange = func(down bool) {
		if down {
			observability.DatabaseDown.Set(1)
			return
		}
		observability.DatabaseDown.Set(0)
	}

	eng := engine.New(engine.Options{
		Config:        cfg,
		Cache:         cache,
		Runner:        pool,
		Executor:      executor.New(),
		Auth:          auth.NewResolver(cfg.Auth, cfg.Database.AnonymousRole),
		Docs:          openapi.NewGenerator("pgbridge API", version),
		Retry:         retry,
		WakeReconnect: func() {
			observability.ReconnectTriggersTotal.Inc()
			reconnector.Trigger()
		},
		WakeReload:    reloader.Wake,
		Logger:        logger,
	})

	ready := transport.ReadyFunc(cache.Loaded)
	router := transport.NewRouter(eng, cfg, ready, logger)
	server := transport.NewServer(router, cfg.Server, logger)

	go reloader.Run(ctx)
	go reconnector.Run(ctx)

	logger.Info("pgbridge starting",
		"version", version,
		"schemas", cfg.Database.Schemas,
		"port", cfg.Server.Port,
	)
	return server.Run(ctx)
}
