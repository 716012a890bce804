package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/irrbb/internal/config"
	"github.com/sawpanic/irrbb/internal/engine"
	"github.com/sawpanic/irrbb/internal/persistence"
	"github.com/sawpanic/irrbb/internal/persistence/postgres"
	"github.com/sawpanic/irrbb/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ops HTTP server",
		Long:  "Serves /health, /metrics and persisted run results",
		RunE:  runServe,
	}
	cmd.Flags().String("addr", "", "Listen address (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	registry := prometheus.NewRegistry()
	engine.NewMetrics(registry)

	var runs persistence.RunsRepo
	if cfg.Database.Enabled {
		manager, err := persistence.NewManager(persistence.Config{
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			QueryTimeout:    cfg.Database.QueryTimeout,
			Enabled:         true,
		}, postgres.NewRunsRepo)
		if err != nil {
			return err
		}
		defer manager.Close()
		runs = manager.Runs()
	}

	srvConfig := server.DefaultConfig()
	if cfg.Server.Addr != "" {
		srvConfig.Addr = cfg.Server.Addr
	}
	srvConfig.RateLimitRPS = cfg.Server.RateLimitRPS
	srvConfig.RateBurst = cfg.Server.RateBurst

	srv := server.New(srvConfig, registry, runs)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
