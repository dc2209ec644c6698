package server

import (
	"net/netip"
	"sync"
	"time"
)

// ConnThrottle tracks connection attempts per address. More than limit
// connects within interval locks the address out for the lockout
// duration, the way the old TCP_CONNECT_* settings behaved.
type ConnThrottle struct {
	limit    int
	interval time.Duration
	lockout  time.Duration

	mu      sync.Mutex
	entries map[netip.Addr]*throttleEntry
	now     func() time.Time
}

type throttleEntry struct {
	attempts    []time.Time
	lockedUntil time.Time
}

// NewConnThrottle creates a throttle. A limit of zero disables it.
func NewConnThrottle(limit int, interval, lockout time.Duration) *ConnThrottle {
	return &ConnThrottle{
		limit:    limit,
		interval: interval,
		lockout:  lockout,
		entries:  make(map[netip.Addr]*throttleEntry),
		now:      time.Now,
	}
}

// Allow records a connection attempt from addr and reports whether it
// may proceed.
func (t *ConnThrottle) Allow(addr netip.Addr) bool {
	if t.limit <= 0 {
		return true
	}
	addr = addr.Unmap()
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[addr]
	if !ok {
		entry = &throttleEntry{}
		t.entries[addr] = entry
	}

	if now.Before(entry.lockedUntil) {
		return false
	}

	// Drop attempts that fell out of the window.
	cutoff := now.Add(-t.interval)
	kept := entry.attempts[:0]
	for _, at := range entry.attempts {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	entry.attempts = append(kept, now)

	if len(entry.attempts) > t.limit {
		entry.lockedUntil = now.Add(t.lockout)
		entry.attempts = nil
		return false
	}
	return true
}

// Prune drops idle entries so the map does not grow without bound. The
// server calls this from its housekeeping loop.
func (t *ConnThrottle) Prune() {
	now := t.now()
	cutoff := now.Add(-t.interval)

	t.mu.Lock()
	defer t.mu.Unlock()
	for addr, entry := range t.entries {
		if now.After(entry.lockedUntil) && (len(entry.attempts) == 0 || entry.attempts[len(entry.attempts)-1].Before(cutoff)) {
			delete(t.entries, addr)
		}
	}
}
