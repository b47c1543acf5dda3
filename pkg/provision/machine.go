// Package provision implements the guest provisioning finite state machine.
// It orchestrates release inspection, the repository switch with rollback,
// package upgrades, one-time first-run setup, auxiliary tool sync, and the
// final verification using the superfly/fsm library.
package provision

import (
	"context"

	"github.com/superfly/fsm"

	"github.com/containerbox/boxprov/pkg/errors"
)

// Register registers the provisioning FSM
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[ProvisionRequest, ProvisionResponse], fsm.Resume, error) {
	start, resume, err := fsm.Register[ProvisionRequest, ProvisionResponse](manager, "provision").
		Start(StateInspect, m.handleInspect).
		To(StateReleaseUpgrade, m.handleReleaseUpgrade).
		To(StateRoutineUpgrade, m.handleRoutineUpgrade).
		To(StateFirstRunSetup, m.handleFirstRunSetup).
		To(StateSyncTool, m.handleSyncTool).
		To(StateVerify, m.handleVerify).
		To(StateComplete, m.handleComplete).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}

	return start, resume, nil
}
