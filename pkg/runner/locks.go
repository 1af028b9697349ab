package runner

import "sync"

// instanceLocks hands out one mutex per instance ID. Locks are taken with
// TryLock: a submission arriving while another is in flight for the same
// instance is rejected instead of queued, so the loser re-reads state and
// retries deliberately.
type instanceLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newInstanceLocks() *instanceLocks {
	return &instanceLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *instanceLocks) tryLock(instanceID string) (func(), bool) {
	l.mu.Lock()
	lock, ok := l.locks[instanceID]

	if !ok {
		lock = &sync.Mutex{}
		l.locks[instanceID] = lock
	}
	l.mu.Unlock()

	if !lock.TryLock() {
		return nil, false
	}

	return lock.Unlock, true
}
