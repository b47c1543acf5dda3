// Package persist commits overlay-root changes to boot media so they
// survive a reboot on diskless installs.
package persist

import (
	"context"
	"time"

	"github.com/containerbox/boxprov/pkg/errors"
	"github.com/containerbox/boxprov/pkg/system"
)

const tool = "lbu"

// Committer persists pending filesystem changes via the local backup
// utility.
type Committer struct {
	runner  system.Runner
	timeout time.Duration
}

// NewCommitter builds a Committer on top of the given runner.
func NewCommitter(runner system.Runner, timeout time.Duration) *Committer {
	return &Committer{runner: runner, timeout: timeout}
}

// Supported reports whether the persistence tool is installed. Disk
// installs do not ship it and need no commit step.
func (c *Committer) Supported() bool {
	_, err := c.runner.LookPath(tool)
	return err == nil
}

// Commit writes pending overlay changes, including deletions, to the boot
// media.
func (c *Committer) Commit(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.runner.Run(ctx, tool, "commit", "-d"); err != nil {
		return errors.Wrap(err, "committing overlay changes")
	}
	return nil
}
