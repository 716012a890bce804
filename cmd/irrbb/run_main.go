package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/irrbb/internal/config"
	"github.com/sawpanic/irrbb/internal/daycount"
	"github.com/sawpanic/irrbb/internal/engine"
	"github.com/sawpanic/irrbb/internal/loader"
	"github.com/sawpanic/irrbb/internal/persistence"
	"github.com/sawpanic/irrbb/internal/persistence/postgres"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a full scenario calculation",
		Long:  "Loads positions and curves, evaluates every configured scenario and writes the report as JSON",
		RunE:  runCalculation,
	}

	cmd.Flags().String("positions", "", "Position CSV file (overrides config)")
	cmd.Flags().String("curves", "", "Curve YAML file (overrides config)")
	cmd.Flags().String("output", "", "Report output file (default stdout)")
	cmd.Flags().Bool("balance-constant", false, "Renew maturing balances over the NII horizon")

	return cmd
}

func runCalculation(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath, _ = cmd.Root().PersistentFlags().GetString("config")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if v, _ := cmd.Flags().GetString("positions"); v != "" {
		cfg.Inputs.PositionsCSV = v
	}
	if v, _ := cmd.Flags().GetString("curves"); v != "" {
		cfg.Inputs.CurvesYAML = v
	}
	if cmd.Flags().Changed("balance-constant") {
		cfg.BalanceConstant, _ = cmd.Flags().GetBool("balance-constant")
	}
	if cfg.Inputs.PositionsCSV == "" || cfg.Inputs.CurvesYAML == "" {
		return fmt.Errorf("positions and curves inputs are required (flags or config)")
	}

	basis := daycount.Act365
	if cfg.DayCount != "" {
		basis, err = daycount.Parse(cfg.DayCount)
		if err != nil {
			return err
		}
	}

	positions, err := loader.NewPositionReader().LoadFile(cfg.Inputs.PositionsCSV)
	if err != nil {
		return err
	}
	curves, err := loader.LoadCurves(cfg.Inputs.CurvesYAML, cfg.AnalysisDate, basis)
	if err != nil {
		return err
	}
	if cfg.DiscountIndex != "" && cfg.DiscountIndex != curves.DiscountIndex() {
		return fmt.Errorf("config discount index %q does not match curve file %q",
			cfg.DiscountIndex, curves.DiscountIndex())
	}

	registry := prometheus.NewRegistry()
	orch := engine.New(engine.Options{
		MaxWorkers:     cfg.Workers,
		MemoryBudgetMB: cfg.MemoryBudgetMB,
		Metrics:        engine.NewMetrics(registry),
	})

	report, err := orch.Run(cmd.Context(), engine.Request{
		Positions:       positions,
		Base:            curves,
		Scenarios:       cfg.ScenarioBattery(),
		Buckets:         cfg.BucketBounds(),
		HorizonMonths:   cfg.HorizonMonths,
		BalanceConstant: cfg.BalanceConstant,
		RiskFreeIndex:   cfg.RiskFreeIndex,
	})
	if err != nil {
		return err
	}

	if err := persistReport(cmd.Context(), cfg, report); err != nil {
		// Persistence failure never discards an already-computed report.
		log.Error().Err(err).Msg("Failed to persist report")
	}

	return writeReport(cmd, report)
}

func persistReport(ctx context.Context, cfg *config.Config, report *engine.Report) error {
	if !cfg.Database.Enabled {
		return nil
	}
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

	if err := manager.Runs().SaveReport(ctx, report); err != nil {
		return err
	}
	log.Info().Str("run_id", report.RunID).Msg("Report persisted")
	return nil
}

func writeReport(cmd *cobra.Command, report *engine.Report) error {
	out := os.Stdout
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
