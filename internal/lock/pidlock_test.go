package lock

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquirePIDLockWritesPID(t *testing.T) {
	t.Parallel()

	lockPath := PathForPort(t.TempDir(), 9877)
	if filepath.Base(lockPath) != "livebridge-9877.pid" {
		t.Fatalf("PathForPort = %s", lockPath)
	}

	l, err := AcquirePIDLock(lockPath)
	if err != nil {
		t.Fatalf("AcquirePIDLock: %v", err)
	}
	t.Cleanup(func() { _ = l.Release() })

	pid, err := HolderPID(lockPath)
	if err != nil {
		t.Fatalf("HolderPID: %v", err)
	}
	if pid != os.Getpid() {
		t.Fatalf("HolderPID = %d, want %d", pid, os.Getpid())
	}
	if l.Path() != lockPath {
		t.Fatalf("Path = %s, want %s", l.Path(), lockPath)
	}
}

func TestSecondAcquireReportsHolder(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "nested", "livebridge-9877.pid")
	first, err := AcquirePIDLock(lockPath)
	if err != nil {
		t.Fatalf("first AcquirePIDLock: %v", err)
	}

	// flock locks belong to the open file description, so a second open in
	// the same process conflicts just like another process would.
	_, err = AcquirePIDLock(lockPath)
	if !errors.Is(err, ErrHeld) {
		t.Fatalf("second AcquirePIDLock error = %v, want ErrHeld", err)
	}
	if !strings.Contains(err.Error(), "pid ") {
		t.Fatalf("error should name the holder: %v", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("second Release should be a no-op: %v", err)
	}

	again, err := AcquirePIDLock(lockPath)
	if err != nil {
		t.Fatalf("AcquirePIDLock after release: %v", err)
	}
	_ = again.Release()
}

func TestPortsLockIndependently(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a, err := AcquirePIDLock(PathForPort(dir, 9877))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Release()
	b, err := AcquirePIDLock(PathForPort(dir, 9878))
	if err != nil {
		t.Fatalf("different port should not conflict: %v", err)
	}
	defer b.Release()
}

func TestAcquirePIDLockRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := AcquirePIDLock(""); err == nil {
		t.Fatal("expected error for empty path")
	}
	var nilLock *PIDLock
	if err := nilLock.Release(); err != nil {
		t.Fatalf("nil Release: %v", err)
	}
}
