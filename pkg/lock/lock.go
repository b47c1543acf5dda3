// Package lock serializes runs on a guest through an advisory file lock:
// overlapping invocations, whether from a scheduler or an operator shell,
// must never interleave package manager and repository writes.
package lock

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/containerbox/boxprov/pkg/errors"
)

// ErrHeld is returned when another process holds the lock past the wait
// deadline.
var ErrHeld = fmt.Errorf("lock held by another process")

const pollInterval = 250 * time.Millisecond

// Lock is an acquired advisory lock. Release it with Unlock.
type Lock struct {
	file *os.File
}

// Acquire takes the advisory lock at path, polling until wait elapses. A
// zero wait tries exactly once.
func Acquire(path string, wait time.Duration) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "opening lock file")
	}

	deadline := time.Now().Add(wait)
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &Lock{file: f}, nil
		}
		if err != unix.EWOULDBLOCK {
			f.Close()
			return nil, errors.Wrap(err, "flock")
		}
		if time.Now().After(deadline) {
			f.Close()
			return nil, ErrHeld
		}
		time.Sleep(pollInterval)
	}
}

// Unlock releases the lock. The lock file itself stays behind; only the
// flock matters.
func (l *Lock) Unlock() error {
	defer l.file.Close()
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		return errors.Wrap(err, "releasing flock")
	}
	return nil
}
