package cellar

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// lockRetryDelay is how often a blocked Lock re-attempts the flock.
const lockRetryDelay = 250 * time.Millisecond

// Lock is a held advisory lock for one package name. Locks serialize
// mutations of a single package across processes; different names never
// contend.
type Lock struct {
	name string
	fl   *flock.Flock
}

// Lock acquires the advisory lock for a package, waiting until it is free
// or the context ends.
func (c *Cellar) Lock(ctx context.Context, name string) (*Lock, error) {
	fl := flock.New(c.LockPath(name))
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", name, err)
	}
	if !locked {
		return nil, fmt.Errorf("locking %s: not acquired", name)
	}
	return &Lock{name: name, fl: fl}, nil
}

// TryLock acquires the lock only if it is immediately free. The second
// return reports whether it was acquired.
func (c *Cellar) TryLock(name string) (*Lock, bool, error) {
	fl := flock.New(c.LockPath(name))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("locking %s: %w", name, err)
	}
	if !locked {
		return nil, false, nil
	}
	return &Lock{name: name, fl: fl}, true, nil
}

// Unlock releases the lock. The lock file remains on disk.
func (l *Lock) Unlock() error {
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("unlocking %s: %w", l.name, err)
	}
	return nil
}

// HeldLocks reports the package names whose locks some process currently
// holds. Lock files that acquire immediately are leftovers from finished
// runs, not reported.
func (c *Cellar) HeldLocks() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(c.root, locksDirName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading lock dir: %w", err)
	}
	var held []string
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".lock")
		if !ok || e.IsDir() {
			continue
		}
		fl := flock.New(c.LockPath(name))
		free, err := fl.TryLock()
		if err != nil {
			return nil, fmt.Errorf("probing lock for %s: %w", name, err)
		}
		if !free {
			held = append(held, name)
			continue
		}
		if err := fl.Unlock(); err != nil {
			return nil, fmt.Errorf("releasing probe lock for %s: %w", name, err)
		}
	}
	return held, nil
}
