package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/superfly/fsm"

	"github.com/containerbox/boxprov/internal/config"
	"github.com/containerbox/boxprov/pkg/apk"
	"github.com/containerbox/boxprov/pkg/db"
	"github.com/containerbox/boxprov/pkg/errors"
	"github.com/containerbox/boxprov/pkg/lock"
	"github.com/containerbox/boxprov/pkg/persist"
	"github.com/containerbox/boxprov/pkg/provision"
	"github.com/containerbox/boxprov/pkg/reboot"
	"github.com/containerbox/boxprov/pkg/release"
	"github.com/containerbox/boxprov/pkg/repos"
	"github.com/containerbox/boxprov/pkg/state"
	"github.com/containerbox/boxprov/pkg/system"
	"github.com/containerbox/boxprov/pkg/toolsync"
)

var runTrigger string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one provisioning pass",
	Long: `Runs the full provisioning chain: inspect releases, switch the
repository line when a newer release exists, apply routine upgrades,
perform one-time setup on fresh guests, sync the compose binary, verify
the tooling, and reboot if a release switch requires it.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runTrigger, "trigger", "cli", "What initiated this run (cli, boot)")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config invalid")
	}

	// Ensure all necessary directories exist
	if err := ensureDirectories(cfg.LedgerPath, cfg.FSMDBPath, cfg.MarkerPath, cfg.RebootFlag, cfg.LockPath); err != nil {
		return err
	}

	// One run at a time per guest
	runLock, err := lock.Acquire(cfg.LockPath, cfg.LockWait)
	if err != nil {
		slog.Error("run_lock_unavailable", "lock_path", cfg.LockPath, "error", err)
		return errors.Wrap(err, "another run is active")
	}
	defer runLock.Unlock()

	repo, err := db.NewRepository(cfg.LedgerPath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	runner := &system.ExecRunner{}
	inspector := release.NewInspector(cfg.ReleaseFile, cfg.ReleaseListing, cfg.HTTPTimeout)
	tracker := state.NewTracker(cfg.MarkerPath)
	scheduler := reboot.NewScheduler(cfg.RebootFlag, cfg.RebootGrace, runner)

	compose := toolsync.NewCompose(runner, toolsync.ComposeConfig{
		ReleaseAPI:      cfg.ComposeAPI,
		DownloadURL:     cfg.ComposeDownload,
		BinPath:         cfg.ComposeBin,
		MaxBytes:        cfg.ComposeMaxBytes,
		APITimeout:      cfg.HTTPTimeout,
		DownloadTimeout: cfg.DownloadTimeout,
	})

	machine := provision.NewMachine(provision.Deps{
		Inspector:    inspector,
		Switcher:     repos.NewSwitcher(cfg.RepoFile, cfg.Mirror),
		Apk:          apk.NewExecutor(runner, cfg.ApkTimeout),
		Committer:    persist.NewCommitter(runner, cfg.CommitTimeout),
		Tracker:      tracker,
		Synchronizer: toolsync.NewSynchronizer(compose),
		Scheduler:    scheduler,
		Verifier:     provision.NewVerifier(runner, cfg.ApkTimeout),
		Runner:       runner,
		Packages:     cfg.Packages,
		Service:      cfg.Service,
		SetupTimeout: cfg.ApkTimeout,
		MaxRetries:   cfg.FSMMaxRetries,
	})

	manager, err := fsm.New(fsm.Config{DBPath: cfg.FSMDBPath})
	if err != nil {
		return errors.Wrap(err, "FSM manager failed")
	}
	defer manager.Shutdown(10 * time.Second)

	start, _, err := machine.Register(ctx, manager)
	if err != nil {
		return errors.Wrap(err, "FSM register failed")
	}

	// The ledger row opens before the FSM so even a crashed run leaves a
	// trace
	run := &db.Run{
		FirstRun:      tracker.IsFirstRun(),
		ReleaseBefore: inspector.Current().String(),
	}
	if err := repo.CreateRun(run); err != nil {
		return errors.Wrap(err, "ledger insert failed")
	}

	req := &provision.ProvisionRequest{Trigger: runTrigger}
	resp := &provision.ProvisionResponse{}

	runKey := fmt.Sprintf("run-%d", time.Now().UnixNano())
	version, err := start(ctx, runKey, fsm.NewRequest(req, resp))
	if err != nil {
		finishRun(repo, run, resp, err)
		return errors.Wrap(err, "FSM start failed")
	}

	slog.Info("fsm_started", "version", version, "run_id", run.ID, "trigger", runTrigger)

	waitErr := manager.Wait(ctx, version)
	finishRun(repo, run, resp, waitErr)

	if waitErr != nil {
		return errors.Wrap(waitErr, "provisioning failed")
	}

	slog.Info("run_completed",
		"run_id", run.ID,
		"status", resp.Status,
		"release", resp.After.String(),
		"upgraded_packages", resp.UpgradedPackages,
		"tool_version", resp.ToolVersion,
		"reboot_pending", resp.RebootPending)

	// Reboot only after the ledger row is closed
	if err := scheduler.ConsumeAndReboot(ctx); err != nil {
		return errors.Wrap(err, "deferred reboot failed")
	}

	return nil
}

// finishRun closes the ledger row with the run's outcome
func finishRun(repo *db.Repository, run *db.Run, resp *provision.ProvisionResponse, runErr error) {
	run.ReleaseAfter = resp.After.String()
	run.UpgradedPackages = resp.UpgradedPackages
	run.ToolVersion = resp.ToolVersion
	run.RebootScheduled = resp.RebootPending

	if runErr != nil {
		run.Status = db.StatusFailed
		run.ErrorMessage = runErr.Error()
	} else {
		run.Status = db.StatusSucceeded
	}

	if err := repo.CompleteRun(run); err != nil {
		slog.Error("ledger_update_failed", "run_id", run.ID, "error", err)
	}
}
