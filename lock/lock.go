package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	gopsprocess "github.com/shirou/gopsutil/v3/process"
)

// ErrLockedAlive is returned when the lock is held by a process that is
// still present in the OS process table.
var ErrLockedAlive = errors.New("lock: held by a live process")

// Owner is the durable content of a lock file: who holds it and since when.
type Owner struct {
	PID       int32     `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

// Status classifies a lock file's current state against the OS process
// table, mirroring the Hub Supervisor's LockStatus model.
type Status int

const (
	// Unlocked means no lock file exists.
	Unlocked Status = iota
	// LockedAlive means the lock file's owner PID is present in the
	// process table.
	LockedAlive
	// LockedStale means the lock file's owner PID is absent from the
	// process table; the lock may be reclaimed.
	LockedStale
)

func (s Status) String() string {
	switch s {
	case Unlocked:
		return "UNLOCKED"
	case LockedAlive:
		return "LOCKED_ALIVE"
	case LockedStale:
		return "LOCKED_STALE"
	default:
		return "UNKNOWN"
	}
}

// Lock represents an acquired or inspectable lock file at a fixed path.
type Lock struct {
	path string
}

// New returns a Lock bound to path (typically "<state_root>/lock"). It does
// not touch the filesystem.
func New(path string) *Lock {
	return &Lock{path: path}
}

// Path returns the lock file's path.
func (l *Lock) Path() string {
	return l.path
}

// Inspect reads the lock file, if any, and classifies it without acquiring
// or mutating anything.
func (l *Lock) Inspect() (Status, *Owner, error) {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Unlocked, nil, nil
		}
		return Unlocked, nil, fmt.Errorf("lock: read %s: %w", l.path, err)
	}

	var owner Owner
	if err := json.Unmarshal(raw, &owner); err != nil {
		return Unlocked, nil, fmt.Errorf("lock: corrupt lock file %s: %w", l.path, err)
	}

	alive, err := pidAlive(owner.PID)
	if err != nil {
		return Unlocked, &owner, fmt.Errorf("lock: checking pid %d liveness: %w", owner.PID, err)
	}
	if alive {
		return LockedAlive, &owner, nil
	}
	return LockedStale, &owner, nil
}

// Acquire takes the lock for the current process. If the lock is held by a
// live process it returns ErrLockedAlive. If it is unlocked or stale, it is
// claimed for the current process's identity — a stale acquisition is the
// "lock_recovered" case the caller is expected to log.
//
// The unlocked→locked transition is a real test-and-set: Acquire never reads
// the lock file and then writes it, since two concurrent callers could both
// observe Unlocked/LockedStale between the read and the write and both
// "succeed". Claiming a fresh (absent) lock file goes through create, which
// uses O_CREATE|O_EXCL so only one of any number of concurrent callers wins.
// Reclaiming a stale lock first removes the stale file, then retries create;
// if another caller's create wins that race, ours fails with os.IsExist and
// we report ErrLockedAlive rather than silently granting a second acquirer.
func (l *Lock) Acquire() (recovered bool, err error) {
	owner := Owner{PID: int32(os.Getpid()), StartedAt: processStartTime()}

	if err := l.create(owner); err == nil {
		return false, nil
	} else if !os.IsExist(err) {
		return false, err
	}

	status, _, err := l.Inspect()
	if err != nil {
		return false, err
	}
	if status == LockedAlive {
		return false, ErrLockedAlive
	}

	// Stale: clear it and retry the atomic create.
	if err := l.Release(); err != nil {
		return false, err
	}
	if err := l.create(owner); err != nil {
		if os.IsExist(err) {
			return false, ErrLockedAlive
		}
		return false, err
	}
	return true, nil
}

// Release removes the lock file. Best-effort: removing an absent lock is
// not an error.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("lock: release %s: %w", l.path, err)
	}
	return nil
}

// create claims the lock file for owner, failing with an os.IsExist error
// (never overwriting) if the file already exists — the atomic test-and-set
// primitive Acquire builds on.
func (l *Lock) create(owner Owner) error {
	data, err := json.Marshal(owner)
	if err != nil {
		return fmt.Errorf("lock: marshal owner: %w", err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("lock: mkdir %s: %w", dir, err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("lock: write %s: %w", l.path, err)
	}
	return nil
}

// pidAlive reports whether pid is present in the OS process table. gopsutil
// is used rather than signal-0 probing so the check is portable and does
// not depend on the caller owning (or being able to signal) the process.
func pidAlive(pid int32) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	return gopsprocess.PidExists(pid)
}

func processStartTime() time.Time {
	return time.Now()
}
