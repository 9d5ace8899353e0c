package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gc-rootscan/internal/repository"
)

var reportsLimit int

// reportsCmd lists stored phase reports
var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List stored phase reports",
	Long:  `List the most recent phase reports from the configured database.`,
	RunE:  listReports,
}

func init() {
	rootCmd.AddCommand(reportsCmd)

	reportsCmd.Flags().IntVar(&reportsLimit, "limit", 20, "Maximum number of reports to list")
}

func listReports(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Database.Enabled {
		return fmt.Errorf("database is not enabled in the configuration")
	}

	db, err := repository.NewGormDB(&repository.DBConfig{
		Type:     cfg.Database.Type,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		MaxConns: cfg.Database.MaxConns,
		Tracing:  tracingEnabled,
	})
	if err != nil {
		return err
	}
	repos := repository.NewRepositories(db)
	defer repos.Close()

	ctx := cmd.Context()
	if err := repos.Migrate(ctx); err != nil {
		return err
	}

	reports, err := repos.Reports.ListReports(ctx, reportsLimit)
	if err != nil {
		return err
	}
	incomplete, err := repos.Reports.CountIncomplete(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tMODE\tWORKERS\tCOMPLETE\tDURATION\tOOPS")
	for _, r := range reports {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\t%v\t%d\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Mode, r.Workers, r.Complete, r.Duration, r.Visits.Oops)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d stored phase(s) incomplete\n", incomplete)
	return nil
}
