package reconciler

import (
	"sync"

	"github.com/google/uuid"
)

// accountLocks serializes reconciliation per account. Locks are created on
// demand and removed once the last holder releases them, so the map stays
// proportional to in-flight work rather than to the account population.
type accountLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*accountLock
}

type accountLock struct {
	mu   sync.Mutex
	refs int
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[uuid.UUID]*accountLock)}
}

// acquire blocks until the account's lock is held and returns the release
// function.
func (l *accountLocks) acquire(accountID uuid.UUID) func() {
	l.mu.Lock()
	lock, ok := l.locks[accountID]
	if !ok {
		lock = &accountLock{}
		l.locks[accountID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()

		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, accountID)
		}
		l.mu.Unlock()
	}
}
