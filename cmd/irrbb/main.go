package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "irrbb"
	version = "v1.0.0"
)

func main() {
	setupLogging()

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Interest rate risk in the banking book calculator",
		Version: version,
		Long: `irrbb computes EVE and NII sensitivities for a banking book across
interest-rate shock scenarios.

Feed it a position CSV and a curve YAML, and it evaluates the standard
shock battery (or a custom scenario set) with behavioural overlays for
non-maturing deposits, prepayments and early redemptions.`,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to YAML configuration file")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Force JSON log output even on a terminal")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newServeCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// setupLogging writes human-readable logs on a terminal and JSON otherwise.
func setupLogging() {
	zerolog.TimeFieldFormat = time.RFC3339
	forceJSON := false
	for _, arg := range os.Args[1:] {
		if arg == "--json-logs" {
			forceJSON = true
		}
	}
	if !forceJSON && term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}
