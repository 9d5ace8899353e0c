package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gc-rootscan/internal/service"
	"github.com/gc-rootscan/pkg/config"
	apperrors "github.com/gc-rootscan/pkg/errors"
)

var (
	// Run command flags
	workers  int
	mode     string
	liveness string
	phases   int
	noDedup  bool
	seed     uint64
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run root scanning phases over a synthetic heap",
	Long: `Build a synthetic heap for each phase and scan its roots with a gang of
workers. Flags override the matching configuration values.

Modes:
  update  weak handles, strong roots and the string dedup table; references
          to evacuated objects are rewritten to their new copies
  all     every strong root, weak class loaders included; reached objects are marked
  strong  strong roots only; weak class loaders are skipped`,
	RunE: runPhases,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVarP(&workers, "workers", "w", 0, "Number of GC workers")
	runCmd.Flags().StringVarP(&mode, "mode", "m", "", "Phase mode: update, all or strong")
	runCmd.Flags().StringVarP(&liveness, "liveness", "l", "", "Liveness filter: marked, forwarded, evacuated or always")
	runCmd.Flags().IntVarP(&phases, "phases", "n", 0, "Number of phases to run")
	runCmd.Flags().BoolVar(&noDedup, "no-dedup", false, "Disable string deduplication")
	runCmd.Flags().Uint64Var(&seed, "seed", 0, "Heap builder seed")
}

// applyFlags overrides cfg with flags the user set.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.GC.Workers = workers
	}
	if flags.Changed("mode") {
		cfg.GC.Mode = mode
	}
	if flags.Changed("liveness") {
		cfg.GC.Liveness = liveness
	}
	if flags.Changed("phases") {
		cfg.GC.Phases = phases
	}
	if flags.Changed("no-dedup") {
		cfg.GC.StringDedup = !noDedup
	}
	if flags.Changed("seed") {
		cfg.Heap.Seed = seed
	}
	return cfg.Validate()
}

func runPhases(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return apperrors.Wrap(apperrors.CodeConfigError, "invalid flags", err)
	}

	logger.Info("Running %d %s phase(s) on %d workers (liveness %s, dedup %t)",
		cfg.GC.Phases, cfg.GC.Mode, cfg.GC.Workers, cfg.GC.Liveness, cfg.GC.StringDedup)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := service.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	svc.Tracing = tracingEnabled

	if err := svc.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}
	defer func() {
		if err := svc.Stop(); err != nil {
			logger.Error("Error during shutdown: %v", err)
		}
	}()

	reports, runErr := svc.RunPhases(ctx)
	out := cmd.OutOrStdout()
	for _, r := range reports {
		fmt.Fprintln(out, r.Summary())
	}

	stats := svc.Stats()
	logger.Info("%d phase(s), %d incomplete, %d oops visited", stats.Phases, stats.Incomplete, stats.Oops)

	if runErr != nil && ctx.Err() != nil {
		logger.Warn("Interrupted")
	}
	return runErr
}
