package provision

import "github.com/containerbox/boxprov/pkg/release"

// ProvisionRequest is the FSM input
type ProvisionRequest struct {
	Trigger string
}

// ProvisionResponse is the FSM output (accumulated across transitions)
type ProvisionResponse struct {
	// From Inspect
	FirstRun bool
	Current  release.Release
	Latest   release.Release
	After    release.Release

	// From ReleaseUpgrade
	Switched bool

	// From RoutineUpgrade
	UpgradedPackages int

	// From FirstRunSetup
	SetupRan bool

	// From SyncTool
	ToolVersion string
	ToolUpdated bool

	// From Verify/Complete
	Verified      bool
	RebootPending bool
	Status        string
	ErrorMessage  string
}

// State names
const (
	StateInspect        = "inspect"
	StateReleaseUpgrade = "release_upgrade"
	StateRoutineUpgrade = "routine_upgrade"
	StateFirstRunSetup  = "first_run_setup"
	StateSyncTool       = "sync_tool"
	StateVerify         = "verify"
	StateComplete       = "complete"
	StateFailed         = "failed"
)
