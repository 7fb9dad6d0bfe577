package deploy

import "sync"

// LockManager manages per-target deployment locks to prevent concurrent
// deployments. A deployment assumes exclusive access to the working copy
// and the data file, so concurrent runs against the same target are
// rejected rather than queued.
//
// Two-level locking: the outer mutex protects the locks map itself, and
// each target has its own mutex for actual deployment locking. Different
// targets can deploy concurrently.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLockManager creates a new lock manager
func NewLockManager() *LockManager {
	return &LockManager{
		locks: make(map[string]*sync.Mutex),
	}
}

// TryLock attempts to acquire a deployment lock for the given target.
//
// Returns true if the lock was acquired (deployment can proceed), false if
// the target is already locked (another deployment is in progress). This
// is non-blocking; the caller should reject the deployment on false.
func (lm *LockManager) TryLock(targetName string) bool {
	lm.mu.Lock()
	lock, exists := lm.locks[targetName]
	if !exists {
		lock = &sync.Mutex{}
		lm.locks[targetName] = lock
	}
	lm.mu.Unlock()

	return lock.TryLock()
}

// Unlock releases the deployment lock for the given target.
//
// Should be called after a deployment completes (success or failure),
// typically with defer. Safe to call for an unknown target (no-op).
func (lm *LockManager) Unlock(targetName string) {
	lm.mu.Lock()
	lock := lm.locks[targetName]
	lm.mu.Unlock()

	if lock != nil {
		lock.Unlock()
	}
}
