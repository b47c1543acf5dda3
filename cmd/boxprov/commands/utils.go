package commands

import (
	"os"
	"path/filepath"

	"github.com/fatih/color"

	"github.com/containerbox/boxprov/pkg/db"
	"github.com/containerbox/boxprov/pkg/errors"
)

// ensureDirectories creates all necessary directories for the application
func ensureDirectories(ledgerPath, fsmDBPath string, filePaths ...string) error {
	// Create ledger directory
	if err := os.MkdirAll(filepath.Dir(ledgerPath), 0755); err != nil {
		return errors.Wrap(err, "failed to create ledger directory")
	}

	// Create FSM database directory (only needed for the run command)
	if fsmDBPath != "" {
		if err := os.MkdirAll(fsmDBPath, 0755); err != nil {
			return errors.Wrap(err, "failed to create FSM directory")
		}
	}

	// Create parent directories for state files (marker, flag, lock)
	for _, path := range filePaths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return errors.Wrapf(err, "failed to create directory for %s", path)
		}
	}

	return nil
}

// colorStatus renders a ledger status with the matching color
func colorStatus(status string) string {
	switch status {
	case db.StatusSucceeded:
		return color.GreenString(status)
	case db.StatusFailed:
		return color.RedString(status)
	default:
		return color.YellowString(status)
	}
}
