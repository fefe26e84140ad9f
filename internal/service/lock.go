package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const releaseCooldown = 800 * time.Millisecond

// EmissionLock deduplicates print requests per order. Acquiring holds the
// lock for a fixed window; releasing early still leaves a short cooldown so
// a double-tap right after a fast print does not emit twice.
//
// The lock is in-process state, matching the single-instance deployment.
// A paid order never reopens, so entries are simply left to expire.
type EmissionLock struct {
	mu     sync.Mutex
	window time.Duration
	until  map[uuid.UUID]time.Time
	now    func() time.Time
}

func NewEmissionLock(window time.Duration) *EmissionLock {
	return &EmissionLock{
		window: window,
		until:  make(map[uuid.UUID]time.Time),
		now:    time.Now,
	}
}

// TryAcquire reports whether the caller may emit for the order now. On
// success the order stays locked for the configured window.
func (l *EmissionLock) TryAcquire(orderID uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if until, ok := l.until[orderID]; ok && now.Before(until) {
		return false
	}
	l.until[orderID] = now.Add(l.window)
	return true
}

// Release shortens the holder's window to the cooldown instead of freeing
// the order outright.
func (l *EmissionLock) Release(orderID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.until[orderID] = l.now().Add(releaseCooldown)
}
