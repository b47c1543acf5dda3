// Package repos rewrites the package manager's repository list to point at
// a given release branch, keeping a backup so a failed switch can be rolled
// back byte for byte.
package repos

import (
	"fmt"
	"os"
	"strings"

	"github.com/containerbox/boxprov/pkg/errors"
	"github.com/containerbox/boxprov/pkg/release"
	"github.com/containerbox/boxprov/pkg/system"
)

// WriteError reports a failed mutation of the repository list or its
// backup slot.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return "repository " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Switcher manages the repository list file for a single mirror.
type Switcher struct {
	path   string
	mirror string
}

// NewSwitcher builds a Switcher over the repository list at path, pointing
// at the given mirror base URL.
func NewSwitcher(path, mirror string) *Switcher {
	return &Switcher{path: path, mirror: strings.TrimRight(mirror, "/")}
}

// Path returns the repository list location.
func (s *Switcher) Path() string {
	return s.path
}

// BackupPath returns the single backup slot location.
func (s *Switcher) BackupPath() string {
	return s.path + ".bak"
}

// Render produces the repository list contents for the given release: the
// main and community branches of the mirror at that major.minor line.
func (s *Switcher) Render(target release.Release) string {
	branch := fmt.Sprintf("%s/v%s", s.mirror, target.MajorMinor())
	return branch + "/main\n" + branch + "/community\n"
}

// Current reads the repository list as it stands.
func (s *Switcher) Current() (string, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return "", errors.Wrap(err, "reading repository list")
	}
	return string(raw), nil
}

// Backup copies the repository list into the backup slot, overwriting any
// previous backup. A missing repository list is an error since there would
// be nothing to roll back to.
func (s *Switcher) Backup() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return &WriteError{Op: "backup", Err: err}
	}
	if err := system.WriteFileAtomic(s.BackupPath(), raw, 0o644); err != nil {
		return &WriteError{Op: "backup", Err: err}
	}
	return nil
}

// Write replaces the repository list atomically.
func (s *Switcher) Write(content string) error {
	if err := system.WriteFileAtomic(s.path, []byte(content), 0o644); err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	return nil
}

// Rollback restores the repository list from the backup slot. The backup
// itself is left in place.
func (s *Switcher) Rollback() error {
	raw, err := os.ReadFile(s.BackupPath())
	if err != nil {
		return &WriteError{Op: "rollback", Err: err}
	}
	if err := system.WriteFileAtomic(s.path, raw, 0o644); err != nil {
		return &WriteError{Op: "rollback", Err: err}
	}
	return nil
}
