package lock

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireAndUnlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")

	l, err := Acquire(path, 0)
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	if err := l.Unlock(); err != nil {
		t.Fatalf("Unlock() failed: %v", err)
	}
}

func TestAcquire_Contended(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")

	first, err := Acquire(path, 0)
	if err != nil {
		t.Fatalf("first Acquire() failed: %v", err)
	}
	defer first.Unlock()

	_, err = Acquire(path, 0)
	if !errors.Is(err, ErrHeld) {
		t.Fatalf("second Acquire() error = %v, want ErrHeld", err)
	}
}

func TestAcquire_WaitsForRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")

	first, err := Acquire(path, 0)
	if err != nil {
		t.Fatalf("first Acquire() failed: %v", err)
	}

	go func() {
		time.Sleep(300 * time.Millisecond)
		first.Unlock()
	}()

	second, err := Acquire(path, 2*time.Second)
	if err != nil {
		t.Fatalf("waiting Acquire() failed: %v", err)
	}
	second.Unlock()
}

func TestAcquire_Reacquirable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")

	for i := 0; i < 3; i++ {
		l, err := Acquire(path, 0)
		if err != nil {
			t.Fatalf("Acquire() round %d failed: %v", i, err)
		}
		if err := l.Unlock(); err != nil {
			t.Fatalf("Unlock() round %d failed: %v", i, err)
		}
	}
}
