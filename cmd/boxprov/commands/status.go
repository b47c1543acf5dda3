package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/containerbox/boxprov/internal/config"
	"github.com/containerbox/boxprov/pkg/db"
	"github.com/containerbox/boxprov/pkg/errors"
	"github.com/containerbox/boxprov/pkg/reboot"
	"github.com/containerbox/boxprov/pkg/release"
	"github.com/containerbox/boxprov/pkg/state"
	"github.com/containerbox/boxprov/pkg/system"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show guest provisioning status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	inspector := release.NewInspector(cfg.ReleaseFile, cfg.ReleaseListing, cfg.HTTPTimeout)
	current := inspector.Current()

	tracker := state.NewTracker(cfg.MarkerPath)
	marker, err := tracker.Read()
	if err != nil {
		return errors.Wrap(err, "marker unreadable")
	}

	scheduler := reboot.NewScheduler(cfg.RebootFlag, cfg.RebootGrace, &system.ExecRunner{})

	if current.IsUnknown() {
		fmt.Printf("Release:     %s\n", color.YellowString("unknown"))
	} else {
		fmt.Printf("Release:     %s\n", current)
	}

	if tracker.IsFirstRun() {
		fmt.Printf("Provisioned: %s\n", color.YellowString("no"))
	} else {
		fmt.Printf("Provisioned: %s (%s)\n", color.GreenString("yes"), marker.ProvisionedAt.Format(time.RFC3339))
		fmt.Printf("Runs:        %d\n", marker.RunCount())
		if !marker.LastRun().IsZero() {
			fmt.Printf("Last run:    %s\n", marker.LastRun().Format(time.RFC3339))
		}
	}

	if scheduler.Pending() {
		fmt.Printf("Reboot:      %s (%s)\n", color.YellowString("pending"), scheduler.Reason())
	} else {
		fmt.Printf("Reboot:      %s\n", color.GreenString("none pending"))
	}

	// Last ledger entry, when a ledger exists; never create one here
	if _, statErr := os.Stat(cfg.LedgerPath); statErr == nil {
		repo, err := db.NewRepository(cfg.LedgerPath)
		if err != nil {
			return errors.Wrap(err, "db init failed")
		}
		defer repo.Close()

		latest, err := repo.Latest()
		if err != nil {
			return errors.Wrap(err, "ledger query failed")
		}
		if latest != nil {
			transition := latest.ReleaseBefore
			if latest.ReleaseAfter != "" && latest.ReleaseAfter != latest.ReleaseBefore {
				transition = latest.ReleaseBefore + " -> " + latest.ReleaseAfter
			}
			fmt.Printf("Last record: #%d %s (%s, started %s)\n",
				latest.ID, colorStatus(latest.Status), transition, latest.StartedAt)
			if latest.ErrorMessage != "" {
				fmt.Printf("Last error:  %s\n", color.RedString(latest.ErrorMessage))
			}
		}
	}

	return nil
}
