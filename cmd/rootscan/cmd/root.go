package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gc-rootscan/pkg/config"
	"github.com/gc-rootscan/pkg/telemetry"
	"github.com/gc-rootscan/pkg/utils"
)

var (
	// Global flags
	configPath string
	verbose    bool

	logger            utils.Logger = &utils.NullLogger{}
	shutdownTelemetry telemetry.ShutdownFunc
	tracingEnabled    bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "rootscan",
	Short: "Parallel GC root scanning simulator",
	Long: `rootscan runs the root scanning phase of a concurrent collector over a
synthetic heap with a gang of worker goroutines.

Each root category is claimed by exactly one worker, weak roots are
filtered by a per-worker liveness filter, and the string dedup table is
partitioned across all workers. Every phase produces a report with task
claims, visit counts and per-worker timings that can be stored in a
database or uploaded to object storage.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telCfg := telemetry.LoadFromEnv()
		shutdown, err := telemetry.Init(cmd.Context(), telCfg)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		shutdownTelemetry = shutdown
		tracingEnabled = telCfg.Enabled
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if shutdownTelemetry == nil {
			return nil
		}
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("Failed to flush telemetry: %v", err)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	binName := BinName()
	rootCmd.Example = `  # Run one update phase with defaults
  ` + binName + ` run

  # Run five phases on 8 workers with a config file
  ` + binName + ` run -c ./configs/rootscan.yaml -w 8 --phases 5

  # Scan strong roots only, without string dedup
  ` + binName + ` run --mode strong --no-dedup

  # List stored reports
  ` + binName + ` reports -c ./configs/rootscan.yaml`
}

// loadConfig reads the configuration and sets up the logger from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := utils.ParseLogLevel(cfg.Log.Level)
	if verbose {
		level = utils.LevelDebug
	}
	if cfg.Log.OutputPath != "" {
		fl, err := utils.NewFileLogger(level, cfg.Log.OutputPath)
		if err != nil {
			return nil, err
		}
		logger = fl
	} else {
		logger = utils.NewDefaultLogger(level, os.Stdout)
	}
	return cfg, nil
}

// BinName returns the base name of the current executable
func BinName() string {
	return filepath.Base(os.Args[0])
}
