// Package reboot defers a guest reboot to the very end of a run through a
// flag file, so every phase finishes and the outcome is recorded before the
// machine goes down.
package reboot

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/containerbox/boxprov/pkg/errors"
	"github.com/containerbox/boxprov/pkg/system"
)

// Scheduler tracks a requested reboot through a flag file and executes it
// after a grace period.
type Scheduler struct {
	flagPath string
	grace    time.Duration
	runner   system.Runner
}

// NewScheduler builds a Scheduler using the flag file at flagPath.
func NewScheduler(flagPath string, grace time.Duration, runner system.Runner) *Scheduler {
	return &Scheduler{flagPath: flagPath, grace: grace, runner: runner}
}

// Pending reports whether a reboot has been requested.
func (s *Scheduler) Pending() bool {
	_, err := os.Stat(s.flagPath)
	return err == nil
}

// Reason returns the recorded reason for a pending reboot, or "" when none
// is pending.
func (s *Scheduler) Reason() string {
	raw, err := os.ReadFile(s.flagPath)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

// Schedule requests a reboot at the end of the run. Scheduling twice keeps
// the latest reason.
func (s *Scheduler) Schedule(reason string) error {
	slog.Warn("reboot_scheduled", "reason", reason)
	if err := system.WriteFileAtomic(s.flagPath, []byte(reason+"\n"), 0o644); err != nil {
		return errors.Wrap(err, "writing reboot flag")
	}
	return nil
}

// ConsumeAndReboot executes a pending reboot after the grace period. The
// flag is removed before the reboot command runs, so a guest that fails to
// go down cannot loop on a stale flag. Without a pending flag it is a
// no-op.
func (s *Scheduler) ConsumeAndReboot(ctx context.Context) error {
	if !s.Pending() {
		return nil
	}
	reason := s.Reason()

	if err := os.Remove(s.flagPath); err != nil {
		return errors.Wrap(err, "removing reboot flag")
	}

	slog.Warn("rebooting", "reason", reason, "grace", s.grace)
	select {
	case <-time.After(s.grace):
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := s.runner.Run(ctx, "reboot"); err != nil {
		return errors.Wrap(err, "invoking reboot")
	}
	return nil
}
