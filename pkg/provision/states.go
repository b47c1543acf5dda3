package provision

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/superfly/fsm"

	"github.com/containerbox/boxprov/internal/logging"
	"github.com/containerbox/boxprov/pkg/apk"
	"github.com/containerbox/boxprov/pkg/errors"
	"github.com/containerbox/boxprov/pkg/persist"
	"github.com/containerbox/boxprov/pkg/reboot"
	"github.com/containerbox/boxprov/pkg/release"
	"github.com/containerbox/boxprov/pkg/repos"
	"github.com/containerbox/boxprov/pkg/state"
	"github.com/containerbox/boxprov/pkg/system"
	"github.com/containerbox/boxprov/pkg/toolsync"
)

// Deps holds the collaborators the FSM transitions call into
type Deps struct {
	Inspector    *release.Inspector
	Switcher     *repos.Switcher
	Apk          *apk.Executor
	Committer    *persist.Committer
	Tracker      *state.Tracker
	Synchronizer *toolsync.Synchronizer
	Scheduler    *reboot.Scheduler
	Verifier     *Verifier
	Runner       system.Runner

	// First-run setup
	Packages     []string
	Service      string
	SetupTimeout time.Duration

	MaxRetries int
}

// Machine holds dependencies for FSM transitions
type Machine struct {
	Deps
}

// NewMachine creates a new FSM machine with dependencies
func NewMachine(deps Deps) *Machine {
	return &Machine{Deps: deps}
}

// handleInspect determines the current and latest release and whether this
// is the guest's first run
func (m *Machine) handleInspect(ctx context.Context, req *fsm.Request[ProvisionRequest, ProvisionResponse]) (*fsm.Response[ProvisionResponse], error) {
	slog.Info("fsm_state_inspect", "trigger", req.Msg.Trigger)

	// Check retry limit
	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.MaxRetries) {
		slog.Error("max_retries_exceeded", "state", StateInspect, "max_retries", m.MaxRetries)
		return nil, fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.MaxRetries))
	}

	resp := req.W.Msg
	if resp == nil {
		resp = &ProvisionResponse{}
	}

	resp.Current = m.Inspector.Current()
	resp.After = resp.Current
	resp.FirstRun = m.Tracker.IsFirstRun()

	if resp.Current.IsUnknown() {
		slog.Warn("release_current_unknown")
	} else {
		logging.Version("release_current", "release", resp.Current.String())
	}

	latest, err := m.Inspector.Latest(ctx)
	if err != nil {
		// An unreachable listing skips the release switch, never the run
		slog.Warn("release_latest_unavailable", "error", err)
	} else {
		resp.Latest = latest
		logging.Version("release_latest", "release", latest.String())
	}

	slog.Info("inspect_complete", "first_run", resp.FirstRun)
	return fsm.NewResponse(resp), nil
}

// handleReleaseUpgrade switches the repositories to a newer release line and
// rebuilds the package set against it
func (m *Machine) handleReleaseUpgrade(ctx context.Context, req *fsm.Request[ProvisionRequest, ProvisionResponse]) (*fsm.Response[ProvisionResponse], error) {
	slog.Info("fsm_state_release_upgrade")

	// Check retry limit
	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.MaxRetries) {
		slog.Error("max_retries_exceeded", "state", StateReleaseUpgrade, "max_retries", m.MaxRetries)
		return nil, fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.MaxRetries))
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	switch {
	case resp.Current.IsUnknown():
		slog.Info("release_switch_skipped", "reason", "current_unknown")
		return fsm.NewResponse(resp), nil
	case resp.Latest.IsUnknown():
		slog.Info("release_switch_skipped", "reason", "latest_unavailable")
		return fsm.NewResponse(resp), nil
	case resp.Current.SameMajorMinor(resp.Latest):
		slog.Info("release_current_ok", "release", resp.Current.String())
		return fsm.NewResponse(resp), nil
	case resp.Latest.Compare(resp.Current) < 0:
		// Mirror lagging behind the installed release; never downgrade
		slog.Warn("release_listing_behind", "current", resp.Current.String(), "latest", resp.Latest.String())
		return fsm.NewResponse(resp), nil
	}

	slog.Info("release_switch_started", "from", resp.Current.String(), "to", resp.Latest.String())

	if err := m.Switcher.Backup(); err != nil {
		slog.Error("repository_backup_failed", "error", err)
		return nil, fsm.Abort(errors.Wrap(err, "repository backup failed"))
	}

	if err := m.Switcher.Write(m.Switcher.Render(resp.Latest)); err != nil {
		slog.Error("repository_write_failed", "error", err)
		m.rollback()
		return nil, fsm.Abort(errors.Wrap(err, "repository write failed"))
	}

	if err := m.Apk.Refresh(ctx); err != nil {
		slog.Error("release_refresh_failed", "error", err)
		m.rollback()
		return nil, fsm.Abort(errors.Wrap(err, "index refresh against new release failed"))
	}

	if err := m.Apk.UpgradeAvailable(ctx); err != nil {
		slog.Error("release_upgrade_failed", "error", err)
		m.rollback()
		return nil, fsm.Abort(errors.Wrap(err, "release upgrade failed"))
	}

	resp.Switched = true
	resp.After = resp.Latest

	m.commitIfSupported(ctx)

	if err := m.Scheduler.Schedule("release upgrade to " + resp.Latest.String()); err != nil {
		slog.Error("reboot_schedule_failed", "error", err)
		return nil, fsm.Abort(errors.Wrap(err, "scheduling reboot failed"))
	}
	resp.RebootPending = true

	logging.Success("release_switched", "from", resp.Current.String(), "to", resp.Latest.String())
	return fsm.NewResponse(resp), nil
}

// handleRoutineUpgrade applies pending package upgrades within the current
// release line
func (m *Machine) handleRoutineUpgrade(ctx context.Context, req *fsm.Request[ProvisionRequest, ProvisionResponse]) (*fsm.Response[ProvisionResponse], error) {
	slog.Info("fsm_state_routine_upgrade")

	// Check retry limit
	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.MaxRetries) {
		slog.Error("max_retries_exceeded", "state", StateRoutineUpgrade, "max_retries", m.MaxRetries)
		return nil, fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.MaxRetries))
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	if resp.Switched {
		// The release switch already rebuilt every package
		slog.Info("routine_upgrade_skipped", "reason", "release_switched")
		return fsm.NewResponse(resp), nil
	}

	if err := m.Apk.Refresh(ctx); err != nil {
		if apk.IsNetworkError(err) {
			slog.Warn("routine_refresh_skipped", "error", err)
			return fsm.NewResponse(resp), nil
		}
		return nil, errors.Wrap(err, "index refresh failed")
	}

	count, err := m.Apk.Upgradable(ctx)
	if err != nil {
		slog.Error("upgradable_count_failed", "error", err)
		return nil, errors.Wrap(err, "listing upgradable packages failed")
	}

	if count == 0 {
		slog.Info("packages_current")
		return fsm.NewResponse(resp), nil
	}

	slog.Info("package_upgrade_started", "upgradable", count)
	if err := m.Apk.Upgrade(ctx); err != nil {
		slog.Error("package_upgrade_failed", "error", err)
		return nil, fsm.Abort(errors.Wrap(err, "package upgrade failed"))
	}
	resp.UpgradedPackages = count

	// Patch upgrades may move the release file forward within the line
	if after := m.Inspector.Current(); !after.IsUnknown() {
		resp.After = after
	}

	logging.Success("packages_upgraded",
		"count", count,
		"release_before", resp.Current.String(),
		"release_after", resp.After.String())
	return fsm.NewResponse(resp), nil
}

// handleFirstRunSetup performs the one-time setup on a fresh guest and
// records the run in the marker
func (m *Machine) handleFirstRunSetup(ctx context.Context, req *fsm.Request[ProvisionRequest, ProvisionResponse]) (*fsm.Response[ProvisionResponse], error) {
	slog.Info("fsm_state_first_run_setup")

	// Check retry limit
	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.MaxRetries) {
		slog.Error("max_retries_exceeded", "state", StateFirstRunSetup, "max_retries", m.MaxRetries)
		return nil, fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.MaxRetries))
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	if resp.FirstRun {
		slog.Info("first_run_setup_started", "packages", m.Packages, "service", m.Service)

		sctx, cancel := context.WithTimeout(ctx, m.SetupTimeout)
		defer cancel()

		if err := m.Apk.Install(sctx, m.Packages...); err != nil {
			slog.Error("package_install_failed", "error", err)
			return nil, fsm.Abort(errors.Wrap(err, "installing base packages"))
		}
		if err := m.Runner.Run(sctx, "rc-update", "add", m.Service, "boot"); err != nil {
			slog.Error("service_enable_failed", "service", m.Service, "error", err)
			return nil, fsm.Abort(errors.Wrap(err, "enabling service at boot"))
		}
		if err := m.Runner.Run(sctx, "service", m.Service, "start"); err != nil {
			slog.Error("service_start_failed", "service", m.Service, "error", err)
			return nil, fsm.Abort(errors.Wrap(err, "starting service"))
		}

		if err := m.Tracker.MarkProvisioned(time.Now().UTC()); err != nil {
			slog.Error("marker_write_failed", "error", err)
			return nil, fsm.Abort(errors.Wrap(err, "writing marker"))
		}
		resp.SetupRan = true
		logging.Success("first_run_setup_complete", "service", m.Service)
	}

	if err := m.Tracker.AppendRun(time.Now().UTC()); err != nil {
		slog.Error("run_record_failed", "error", err)
		return nil, errors.Wrap(err, "recording run")
	}

	return fsm.NewResponse(resp), nil
}

// handleSyncTool aligns auxiliary tools with their latest release. Sync
// problems are warnings: the next run retries
func (m *Machine) handleSyncTool(ctx context.Context, req *fsm.Request[ProvisionRequest, ProvisionResponse]) (*fsm.Response[ProvisionResponse], error) {
	slog.Info("fsm_state_sync_tool")

	// Check retry limit
	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.MaxRetries) {
		slog.Error("max_retries_exceeded", "state", StateSyncTool, "max_retries", m.MaxRetries)
		return nil, fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.MaxRetries))
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	for _, result := range m.Synchronizer.Sync(ctx) {
		if result.Err != nil {
			slog.Warn("tool_sync_incomplete", "tool", result.Tool, "error", result.Err)
			continue
		}
		if result.Updated {
			resp.ToolUpdated = true
			resp.ToolVersion = result.Latest.String()
			logging.Success("tool_synced",
				"tool", result.Tool,
				"from", result.Before.String(),
				"to", result.Latest.String())
			continue
		}
		if !result.Before.IsUnknown() {
			resp.ToolVersion = result.Before.String()
		}
	}

	return fsm.NewResponse(resp), nil
}

// handleVerify confirms the container tooling works after everything else
func (m *Machine) handleVerify(ctx context.Context, req *fsm.Request[ProvisionRequest, ProvisionResponse]) (*fsm.Response[ProvisionResponse], error) {
	slog.Info("fsm_state_verify")

	// Check retry limit
	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.MaxRetries) {
		slog.Error("max_retries_exceeded", "state", StateVerify, "max_retries", m.MaxRetries)
		return nil, fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.MaxRetries))
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	checks, err := m.Verifier.Verify(ctx)
	if err != nil {
		slog.Error("verification_failed", "error", err)
		return nil, fsm.Abort(errors.Wrap(err, "verification failed"))
	}

	for _, check := range checks {
		logging.Version("tool_verified", "tool", check.Tool, "version", check.Version.String())
		if check.Tool == "docker-compose" && resp.ToolVersion == "" {
			resp.ToolVersion = check.Version.String()
		}
	}
	resp.Verified = true

	return fsm.NewResponse(resp), nil
}

// handleComplete persists overlay changes and marks the run finished
func (m *Machine) handleComplete(ctx context.Context, req *fsm.Request[ProvisionRequest, ProvisionResponse]) (*fsm.Response[ProvisionResponse], error) {
	slog.Info("fsm_state_complete")

	// Check retry limit
	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.MaxRetries) {
		slog.Error("max_retries_exceeded", "state", StateComplete, "max_retries", m.MaxRetries)
		return nil, fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.MaxRetries))
	}

	resp := req.W.Msg
	if resp == nil {
		resp = &ProvisionResponse{}
	}

	// The marker gained at least a run line, so there is always state to
	// persist on overlay-root guests
	m.commitIfSupported(ctx)

	resp.RebootPending = m.Scheduler.Pending()
	resp.Status = StateComplete

	logging.Success("provision_complete",
		"release", resp.After.String(),
		"first_run", resp.FirstRun,
		"upgraded_packages", resp.UpgradedPackages,
		"tool_version", resp.ToolVersion,
		"reboot_pending", resp.RebootPending)

	return fsm.NewResponse(resp), nil
}

func (m *Machine) rollback() {
	if err := m.Switcher.Rollback(); err != nil {
		slog.Error("repository_rollback_failed", "error", err)
		return
	}
	slog.Info("repository_rolled_back")
}

func (m *Machine) commitIfSupported(ctx context.Context) {
	if !m.Committer.Supported() {
		slog.Info("persist_commit_skipped", "reason", "tool_not_installed")
		return
	}
	if err := m.Committer.Commit(ctx); err != nil {
		slog.Warn("persist_commit_failed", "error", err)
		return
	}
	slog.Info("persist_committed")
}
