package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/containerbox/boxprov/internal/config"
	"github.com/containerbox/boxprov/pkg/db"
	"github.com/containerbox/boxprov/pkg/errors"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded provisioning runs",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum runs to show (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	// Ensure ledger directory exists
	if err := ensureDirectories(cfg.LedgerPath, ""); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.LedgerPath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	runs, err := repo.List(historyLimit)
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	fmt.Printf("%-5s %-20s %-10s %-6s %-22s %-10s %s\n",
		"ID", "STARTED", "STATUS", "FIRST", "RELEASE", "TOOL", "ERROR")
	fmt.Println("----------------------------------------------------------------------------------------------------")

	for _, run := range runs {
		transition := run.ReleaseBefore
		if run.ReleaseAfter != "" && run.ReleaseAfter != run.ReleaseBefore {
			transition = run.ReleaseBefore + " -> " + run.ReleaseAfter
		}

		first := "-"
		if run.FirstRun {
			first = "yes"
		}
		tool := run.ToolVersion
		if tool == "" {
			tool = "-"
		}

		fmt.Printf("%-5d %-20s %-10s %-6s %-22s %-10s %s\n",
			run.ID, run.StartedAt, run.Status, first, transition, tool, run.ErrorMessage)
	}

	return nil
}
