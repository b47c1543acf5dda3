// Package state tracks provisioning history through a marker file on the
// guest. The marker's existence distinguishes the first run from routine
// maintenance; its lines record when provisioning finished and every run
// since.
package state

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/containerbox/boxprov/pkg/errors"
	"github.com/containerbox/boxprov/pkg/system"
)

const (
	lineProvisioned = "provisioned"
	lineRun         = "run"
)

// Marker is the parsed contents of the marker file.
type Marker struct {
	ProvisionedAt time.Time
	Runs          []time.Time
}

// RunCount returns the number of completed runs recorded after
// provisioning.
func (m Marker) RunCount() int {
	return len(m.Runs)
}

// LastRun returns the most recent recorded run, or the zero time when none
// exist.
func (m Marker) LastRun() time.Time {
	if len(m.Runs) == 0 {
		return time.Time{}
	}
	return m.Runs[len(m.Runs)-1]
}

// Tracker reads and updates the marker file.
type Tracker struct {
	path string
}

// NewTracker builds a Tracker over the marker at path.
func NewTracker(path string) *Tracker {
	return &Tracker{path: path}
}

// Path returns the marker file location.
func (t *Tracker) Path() string {
	return t.path
}

// IsFirstRun reports whether the marker file is absent, meaning the guest
// has never completed provisioning.
func (t *Tracker) IsFirstRun() bool {
	_, err := os.Stat(t.path)
	return os.IsNotExist(err)
}

// MarkProvisioned writes the marker's provisioned line durably. Calling it
// on an already provisioned guest is a no-op, so the line is written at
// most once.
func (t *Tracker) MarkProvisioned(at time.Time) error {
	if !t.IsFirstRun() {
		return nil
	}
	content := fmt.Sprintf("%s %s\n", lineProvisioned, at.UTC().Format(time.RFC3339))
	if err := system.WriteFileAtomic(t.path, []byte(content), 0o644); err != nil {
		return errors.Wrap(err, "writing marker")
	}
	return nil
}

// AppendRun records a completed run. The marker must already exist; run
// lines never precede the provisioned line.
func (t *Tracker) AppendRun(at time.Time) error {
	f, err := os.OpenFile(t.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, "opening marker for append")
	}
	defer f.Close()

	line := fmt.Sprintf("%s %s\n", lineRun, at.UTC().Format(time.RFC3339))
	if _, err := f.WriteString(line); err != nil {
		return errors.Wrap(err, "appending run line")
	}
	if err := f.Sync(); err != nil {
		return errors.Wrap(err, "syncing marker")
	}
	return nil
}

// Read parses the marker file. A missing marker yields a zero Marker and no
// error; a malformed marker is an error.
func (t *Tracker) Read() (Marker, error) {
	f, err := os.Open(t.path)
	if os.IsNotExist(err) {
		return Marker{}, nil
	}
	if err != nil {
		return Marker{}, errors.Wrap(err, "opening marker")
	}
	defer f.Close()

	var marker Marker
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		kind, stamp, found := strings.Cut(line, " ")
		if !found {
			return Marker{}, fmt.Errorf("malformed marker line %q", line)
		}
		at, err := time.Parse(time.RFC3339, stamp)
		if err != nil {
			return Marker{}, fmt.Errorf("malformed marker timestamp %q: %w", stamp, err)
		}

		switch kind {
		case lineProvisioned:
			marker.ProvisionedAt = at
		case lineRun:
			marker.Runs = append(marker.Runs, at)
		default:
			return Marker{}, fmt.Errorf("unknown marker line kind %q", kind)
		}
	}
	if err := scanner.Err(); err != nil {
		return Marker{}, errors.Wrap(err, "reading marker")
	}
	return marker, nil
}
