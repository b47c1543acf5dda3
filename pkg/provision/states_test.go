package provision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/containerbox/boxprov/pkg/release"
)

func TestHandleInspect_FreshGuest(t *testing.T) {
	f := setupMachine(t)
	out := &ProvisionResponse{}

	_, err := f.machine.handleInspect(context.Background(), newRequest(out))
	require.NoError(t, err)

	assert.Equal(t, release.Release{Major: 3, Minor: 19, Patch: 1}, out.Current)
	assert.Equal(t, release.Release{Major: 3, Minor: 20, Patch: 3}, out.Latest)
	assert.Equal(t, out.Current, out.After)
	assert.True(t, out.FirstRun)
}

func TestHandleInspect_ProvisionedGuest(t *testing.T) {
	f := setupMachine(t)
	require.NoError(t, f.tracker.MarkProvisioned(time.Now().UTC()))

	out := &ProvisionResponse{}
	_, err := f.machine.handleInspect(context.Background(), newRequest(out))
	require.NoError(t, err)
	assert.False(t, out.FirstRun)
}

func TestHandleInspect_ListingUnreachable(t *testing.T) {
	f := setupMachine(t)
	f.listing = ""

	out := &ProvisionResponse{}
	_, err := f.machine.handleInspect(context.Background(), newRequest(out))
	require.NoError(t, err, "an unreachable listing must not fail the run")

	assert.Equal(t, release.Release{Major: 3, Minor: 19, Patch: 1}, out.Current)
	assert.True(t, out.Latest.IsUnknown())
}

func TestHandleReleaseUpgrade_SwitchesLine(t *testing.T) {
	f := setupMachine(t)
	out := &ProvisionResponse{
		Current: release.Release{Major: 3, Minor: 19, Patch: 1},
		Latest:  release.Release{Major: 3, Minor: 20, Patch: 3},
		After:   release.Release{Major: 3, Minor: 19, Patch: 1},
	}

	_, err := f.machine.handleReleaseUpgrade(context.Background(), newRequest(out))
	require.NoError(t, err)

	assert.True(t, out.Switched)
	assert.Equal(t, release.Release{Major: 3, Minor: 20, Patch: 3}, out.After)
	assert.True(t, out.RebootPending)

	assert.Contains(t, f.repoContents(t), "/v3.20/main")
	assert.True(t, f.runner.ran("apk update"))
	assert.True(t, f.runner.ran("apk upgrade --available"))
	assert.True(t, f.runner.ran("lbu commit -d"))
	assert.True(t, f.scheduler.Pending())
}

func TestHandleReleaseUpgrade_SameLine(t *testing.T) {
	f := setupMachine(t)
	out := &ProvisionResponse{
		Current: release.Release{Major: 3, Minor: 20, Patch: 1},
		Latest:  release.Release{Major: 3, Minor: 20, Patch: 3},
		After:   release.Release{Major: 3, Minor: 20, Patch: 1},
	}

	_, err := f.machine.handleReleaseUpgrade(context.Background(), newRequest(out))
	require.NoError(t, err)

	assert.False(t, out.Switched, "patch difference must not switch the release line")
	assert.Empty(t, f.runner.commands)
	assert.Equal(t, initialRepoList, f.repoContents(t))
}

func TestHandleReleaseUpgrade_ListingBehind(t *testing.T) {
	f := setupMachine(t)
	out := &ProvisionResponse{
		Current: release.Release{Major: 3, Minor: 21, Patch: 0},
		Latest:  release.Release{Major: 3, Minor: 20, Patch: 3},
		After:   release.Release{Major: 3, Minor: 21, Patch: 0},
	}

	_, err := f.machine.handleReleaseUpgrade(context.Background(), newRequest(out))
	require.NoError(t, err)

	assert.False(t, out.Switched, "a lagging listing must never downgrade")
	assert.Equal(t, initialRepoList, f.repoContents(t))
}

func TestHandleReleaseUpgrade_UnknownCurrent(t *testing.T) {
	f := setupMachine(t)
	out := &ProvisionResponse{Latest: release.Release{Major: 3, Minor: 20, Patch: 3}}

	_, err := f.machine.handleReleaseUpgrade(context.Background(), newRequest(out))
	require.NoError(t, err)
	assert.False(t, out.Switched)
}

func TestHandleReleaseUpgrade_RefreshFailureRollsBack(t *testing.T) {
	f := setupMachine(t)
	f.runner.failures["apk update"] = errors.New("temporary failure in name resolution")
	out := &ProvisionResponse{
		Current: release.Release{Major: 3, Minor: 19, Patch: 1},
		Latest:  release.Release{Major: 3, Minor: 20, Patch: 3},
		After:   release.Release{Major: 3, Minor: 19, Patch: 1},
	}

	_, err := f.machine.handleReleaseUpgrade(context.Background(), newRequest(out))
	require.Error(t, err)

	assert.False(t, out.Switched)
	assert.Equal(t, initialRepoList, f.repoContents(t), "failed refresh must restore the list byte for byte")
	assert.False(t, f.scheduler.Pending())
}

func TestHandleReleaseUpgrade_UpgradeFailureRollsBack(t *testing.T) {
	f := setupMachine(t)
	f.runner.failures["apk upgrade --available"] = errors.New("ERROR: unable to select packages")
	out := &ProvisionResponse{
		Current: release.Release{Major: 3, Minor: 19, Patch: 1},
		Latest:  release.Release{Major: 3, Minor: 20, Patch: 3},
		After:   release.Release{Major: 3, Minor: 19, Patch: 1},
	}

	_, err := f.machine.handleReleaseUpgrade(context.Background(), newRequest(out))
	require.Error(t, err)

	assert.False(t, out.Switched)
	assert.Equal(t, initialRepoList, f.repoContents(t))
	assert.False(t, f.runner.ran("lbu commit -d"), "no commit after a rolled back switch")
}

func TestHandleRoutineUpgrade_AppliesPending(t *testing.T) {
	f := setupMachine(t)
	f.runner.outputs["apk list --upgradable"] =
		"curl-8.9.1-r1 x86_64 {curl} (curl) [upgradable from: curl-8.9.0-r0]\n" +
			"openssl-3.3.2-r0 x86_64 {openssl} (Apache-2.0) [upgradable from: openssl-3.3.1-r3]\n"
	out := &ProvisionResponse{
		Current: release.Release{Major: 3, Minor: 19, Patch: 1},
		After:   release.Release{Major: 3, Minor: 19, Patch: 1},
	}

	_, err := f.machine.handleRoutineUpgrade(context.Background(), newRequest(out))
	require.NoError(t, err)

	assert.Equal(t, 2, out.UpgradedPackages)
	assert.True(t, f.runner.ran("apk upgrade"))
}

func TestHandleRoutineUpgrade_NothingPending(t *testing.T) {
	f := setupMachine(t)
	out := &ProvisionResponse{
		Current: release.Release{Major: 3, Minor: 19, Patch: 1},
		After:   release.Release{Major: 3, Minor: 19, Patch: 1},
	}

	_, err := f.machine.handleRoutineUpgrade(context.Background(), newRequest(out))
	require.NoError(t, err)

	assert.Zero(t, out.UpgradedPackages)
	assert.False(t, f.runner.ran("apk upgrade"))
}

func TestHandleRoutineUpgrade_OfflineSkips(t *testing.T) {
	f := setupMachine(t)
	f.runner.failures["apk update"] = errors.New("temporary failure in name resolution")
	out := &ProvisionResponse{
		Current: release.Release{Major: 3, Minor: 19, Patch: 1},
		After:   release.Release{Major: 3, Minor: 19, Patch: 1},
	}

	_, err := f.machine.handleRoutineUpgrade(context.Background(), newRequest(out))
	require.NoError(t, err, "an offline guest skips routine maintenance")
	assert.False(t, f.runner.ran("apk upgrade"))
}

func TestHandleRoutineUpgrade_SkippedAfterSwitch(t *testing.T) {
	f := setupMachine(t)
	out := &ProvisionResponse{Switched: true}

	_, err := f.machine.handleRoutineUpgrade(context.Background(), newRequest(out))
	require.NoError(t, err)
	assert.Empty(t, f.runner.commands, "a release switch subsumes routine upgrades")
}

func TestHandleRoutineUpgrade_UpgradeFailureFatal(t *testing.T) {
	f := setupMachine(t)
	f.runner.outputs["apk list --upgradable"] = "curl-8.9.1-r1 x86_64 {curl} (curl) [upgradable from: curl-8.9.0-r0]\n"
	f.runner.failures["apk upgrade"] = errors.New("ERROR: unable to select packages")
	out := &ProvisionResponse{
		Current: release.Release{Major: 3, Minor: 19, Patch: 1},
		After:   release.Release{Major: 3, Minor: 19, Patch: 1},
	}

	_, err := f.machine.handleRoutineUpgrade(context.Background(), newRequest(out))
	require.Error(t, err)
	assert.Zero(t, out.UpgradedPackages)
}

func TestHandleFirstRunSetup_FreshGuest(t *testing.T) {
	f := setupMachine(t)
	out := &ProvisionResponse{FirstRun: true}

	_, err := f.machine.handleFirstRunSetup(context.Background(), newRequest(out))
	require.NoError(t, err)

	assert.True(t, out.SetupRan)
	assert.True(t, f.runner.ran("apk add docker"))
	assert.True(t, f.runner.ran("rc-update add docker boot"))
	assert.True(t, f.runner.ran("service docker start"))

	marker, err := f.tracker.Read()
	require.NoError(t, err)
	assert.False(t, marker.ProvisionedAt.IsZero())
	assert.Equal(t, 1, marker.RunCount())
}

func TestHandleFirstRunSetup_ProvisionedGuest(t *testing.T) {
	f := setupMachine(t)
	require.NoError(t, f.tracker.MarkProvisioned(time.Now().UTC()))
	out := &ProvisionResponse{FirstRun: false}

	_, err := f.machine.handleFirstRunSetup(context.Background(), newRequest(out))
	require.NoError(t, err)

	assert.False(t, out.SetupRan)
	assert.Empty(t, f.runner.commands, "setup commands must only run once")

	marker, err := f.tracker.Read()
	require.NoError(t, err)
	assert.Equal(t, 1, marker.RunCount())
}

func TestHandleFirstRunSetup_InstallFailure(t *testing.T) {
	f := setupMachine(t)
	f.runner.failures["apk add docker"] = errors.New("ERROR: unable to select packages: docker")
	out := &ProvisionResponse{FirstRun: true}

	_, err := f.machine.handleFirstRunSetup(context.Background(), newRequest(out))
	require.Error(t, err)

	assert.True(t, f.tracker.IsFirstRun(), "failed setup must not write the marker")
}

func TestHandleSyncTool_Updates(t *testing.T) {
	f := setupMachine(t)
	f.tool.installed = release.Release{Major: 2, Minor: 29, Patch: 6}
	out := &ProvisionResponse{}

	_, err := f.machine.handleSyncTool(context.Background(), newRequest(out))
	require.NoError(t, err)

	assert.True(t, out.ToolUpdated)
	assert.Equal(t, "2.29.7", out.ToolVersion)
}

func TestHandleSyncTool_FailureIsWarning(t *testing.T) {
	f := setupMachine(t)
	f.tool.latestErr = errors.New("api rate limited")
	out := &ProvisionResponse{}

	_, err := f.machine.handleSyncTool(context.Background(), newRequest(out))
	require.NoError(t, err, "tool sync problems must never fail the run")
	assert.False(t, out.ToolUpdated)
}

func TestHandleVerify_Passes(t *testing.T) {
	f := setupMachine(t)
	out := &ProvisionResponse{}

	_, err := f.machine.handleVerify(context.Background(), newRequest(out))
	require.NoError(t, err)

	assert.True(t, out.Verified)
	assert.Equal(t, "2.29.7", out.ToolVersion, "verify backfills the observed tool version")
}

func TestHandleVerify_BrokenTool(t *testing.T) {
	f := setupMachine(t)
	f.runner.failures["docker --version"] = errors.New("docker: not found")
	out := &ProvisionResponse{}

	_, err := f.machine.handleVerify(context.Background(), newRequest(out))
	require.Error(t, err)
	assert.False(t, out.Verified)
}

func TestHandleComplete(t *testing.T) {
	f := setupMachine(t)
	require.NoError(t, f.scheduler.Schedule("release upgrade to 3.20.3"))
	out := &ProvisionResponse{After: release.Release{Major: 3, Minor: 20, Patch: 3}}

	_, err := f.machine.handleComplete(context.Background(), newRequest(out))
	require.NoError(t, err)

	assert.Equal(t, StateComplete, out.Status)
	assert.True(t, out.RebootPending)
	assert.True(t, f.runner.ran("lbu commit -d"))
}

func TestHandleComplete_DisklessToolMissing(t *testing.T) {
	f := setupMachine(t)
	f.runner.missing["lbu"] = true
	out := &ProvisionResponse{}

	_, err := f.machine.handleComplete(context.Background(), newRequest(out))
	require.NoError(t, err)
	assert.False(t, f.runner.ran("lbu commit -d"))
}

// TestPhaseSequence_FirstBoot drives every handler in chain order the way
// the registered machine would on a fresh guest with a new release line
// available.
func TestPhaseSequence_FirstBoot(t *testing.T) {
	f := setupMachine(t)
	ctx := context.Background()
	out := &ProvisionResponse{}
	req := newRequest(out)

	_, err := f.machine.handleInspect(ctx, req)
	require.NoError(t, err)
	_, err = f.machine.handleReleaseUpgrade(ctx, req)
	require.NoError(t, err)
	_, err = f.machine.handleRoutineUpgrade(ctx, req)
	require.NoError(t, err)
	_, err = f.machine.handleFirstRunSetup(ctx, req)
	require.NoError(t, err)
	_, err = f.machine.handleSyncTool(ctx, req)
	require.NoError(t, err)
	_, err = f.machine.handleVerify(ctx, req)
	require.NoError(t, err)
	_, err = f.machine.handleComplete(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, StateComplete, out.Status)
	assert.True(t, out.FirstRun)
	assert.True(t, out.Switched)
	assert.Zero(t, out.UpgradedPackages, "routine pass is subsumed by the switch")
	assert.True(t, out.SetupRan)
	assert.True(t, out.Verified)
	assert.True(t, out.RebootPending)
	assert.Equal(t, release.Release{Major: 3, Minor: 20, Patch: 3}, out.After)

	assert.False(t, f.tracker.IsFirstRun())
	assert.True(t, f.scheduler.Pending())
	assert.Contains(t, f.repoContents(t), "/v3.20/community")
}
