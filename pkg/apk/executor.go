// Package apk drives the system package manager: index refresh, pending
// upgrade counts, upgrades, and package installation.
package apk

import (
	"context"
	"strings"
	"time"

	"github.com/containerbox/boxprov/pkg/errors"
	"github.com/containerbox/boxprov/pkg/system"
)

// NetworkError reports a failed package index refresh. Routine maintenance
// treats it as skippable; a release switch treats it as grounds for
// rollback.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "refreshing package index: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// UpgradeError reports a failed upgrade or install. The wrapped error
// carries the trailing command output from the runner.
type UpgradeError struct {
	Op  string
	Err error
}

func (e *UpgradeError) Error() string {
	return "apk " + e.Op + ": " + e.Err.Error()
}

func (e *UpgradeError) Unwrap() error {
	return e.Err
}

// Executor runs package manager commands with a per-command timeout.
type Executor struct {
	runner  system.Runner
	timeout time.Duration
}

// NewExecutor builds an Executor on top of the given runner. Every command
// is bounded by timeout.
func NewExecutor(runner system.Runner, timeout time.Duration) *Executor {
	return &Executor{runner: runner, timeout: timeout}
}

func (e *Executor) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.timeout)
}

// Refresh updates the package index from the configured repositories.
func (e *Executor) Refresh(ctx context.Context) error {
	ctx, cancel := e.bounded(ctx)
	defer cancel()

	if err := e.runner.Run(ctx, "apk", "update"); err != nil {
		return &NetworkError{Err: err}
	}
	return nil
}

// Upgradable returns the number of packages with a pending upgrade.
func (e *Executor) Upgradable(ctx context.Context) (int, error) {
	ctx, cancel := e.bounded(ctx)
	defer cancel()

	out, err := e.runner.Output(ctx, "apk", "list", "--upgradable")
	if err != nil {
		return 0, errors.Wrap(err, "listing upgradable packages")
	}

	count := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "[upgradable from") {
			count++
		}
	}
	return count, nil
}

// Upgrade applies pending upgrades within the current release.
func (e *Executor) Upgrade(ctx context.Context) error {
	ctx, cancel := e.bounded(ctx)
	defer cancel()

	if err := e.runner.Run(ctx, "apk", "upgrade"); err != nil {
		return &UpgradeError{Op: "upgrade", Err: err}
	}
	return nil
}

// UpgradeAvailable upgrades every installed package against the active
// repositories, the full rebuild a release switch requires.
func (e *Executor) UpgradeAvailable(ctx context.Context) error {
	ctx, cancel := e.bounded(ctx)
	defer cancel()

	if err := e.runner.Run(ctx, "apk", "upgrade", "--available"); err != nil {
		return &UpgradeError{Op: "upgrade --available", Err: err}
	}
	return nil
}

// Install adds the named packages.
func (e *Executor) Install(ctx context.Context, packages ...string) error {
	ctx, cancel := e.bounded(ctx)
	defer cancel()

	args := append([]string{"add"}, packages...)
	if err := e.runner.Run(ctx, "apk", args...); err != nil {
		return &UpgradeError{Op: "add " + strings.Join(packages, " "), Err: err}
	}
	return nil
}
