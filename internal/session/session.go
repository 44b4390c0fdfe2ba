// Package session holds the in-memory passphrase cache used to keep a
// KeePassXC database unlocked between operations.
//
// The cached secret lives only in process memory. It is copied into a buffer
// owned by the Cache, locked against swapping where the platform allows it,
// and zeroed when the cache is cleared or the inactivity timeout elapses.
// Nothing is ever written to disk or to an OS keyring.
package session

import (
	"runtime"
	"time"
)

// DefaultTimeout is the inactivity lock applied when none is configured.
// A zero timeout disables expiry entirely.
const DefaultTimeout = 10 * time.Minute

// Info is a point-in-time view of the cache.
type Info struct {
	Unlocked  bool          `json:"unlocked"`
	StoredAt  time.Time     `json:"stored_at,omitzero"`
	ExpiresAt time.Time     `json:"expires_at,omitzero"`
	Timeout   time.Duration `json:"timeout"`
	remaining time.Duration
}

// TTL returns the remaining time until the cache expires.
// Returns 0 when locked or when the timeout is disabled.
func (i Info) TTL() time.Duration {
	if !i.Unlocked || i.Timeout <= 0 || i.remaining < 0 {
		return 0
	}
	return i.remaining
}

// Cache holds at most one passphrase together with its inactivity expiry.
//
// A Cache is not safe for concurrent use. The owner serializes access,
// normally under the same mutex that guards the rest of its state.
type Cache struct {
	secret    []byte
	pinned    bool
	timeout   time.Duration
	storedAt  time.Time
	expiresAt time.Time
}

// NewCache returns an empty cache with the given inactivity timeout.
// Negative timeouts are treated as zero.
func NewCache(timeout time.Duration) *Cache {
	return &Cache{timeout: clampTimeout(timeout)}
}

// Store replaces any cached secret with a private copy of secret and arms
// the expiry clock when a timeout is configured.
func (c *Cache) Store(secret []byte, now time.Time) {
	c.Clear()

	c.secret = make([]byte, len(secret))
	copy(c.secret, secret)
	c.pinned = lockMemory(c.secret)
	c.storedAt = now
	c.Touch(now)
}

// Secret returns the cached secret if the cache is still valid at now.
// The returned slice is owned by the cache and must not be retained.
func (c *Cache) Secret(now time.Time) ([]byte, bool) {
	if !c.Valid(now) {
		return nil, false
	}
	return c.secret, true
}

// Valid reports whether a secret is cached and not expired at now.
// Observing an expired secret clears it.
func (c *Cache) Valid(now time.Time) bool {
	if c.secret == nil {
		return false
	}
	if c.timeout > 0 && now.After(c.expiresAt) {
		c.Clear()
		return false
	}
	return true
}

// Expired reports whether a secret is held but its timeout has elapsed,
// without clearing it.
func (c *Cache) Expired(now time.Time) bool {
	return c.secret != nil && c.timeout > 0 && now.After(c.expiresAt)
}

// Touch restarts the inactivity window at now. No-op when the timeout is
// disabled.
func (c *Cache) Touch(now time.Time) {
	if c.timeout > 0 {
		c.expiresAt = now.Add(c.timeout)
	}
}

// Clear zeroes and drops the cached secret and its expiry.
func (c *Cache) Clear() {
	if c.secret != nil {
		zeroBytes(c.secret)
		if c.pinned {
			unlockMemory(c.secret)
		}
	}
	c.secret = nil
	c.pinned = false
	c.storedAt = time.Time{}
	c.expiresAt = time.Time{}
}

// SetTimeout changes the inactivity timeout and clears the cache.
func (c *Cache) SetTimeout(timeout time.Duration) {
	c.timeout = clampTimeout(timeout)
	c.Clear()
}

// Timeout returns the configured inactivity timeout.
func (c *Cache) Timeout() time.Duration {
	return c.timeout
}

// Info returns a snapshot of the cache at now, applying the expiry rule first.
func (c *Cache) Info(now time.Time) Info {
	info := Info{
		Unlocked: c.Valid(now),
		Timeout:  c.timeout,
	}
	if info.Unlocked {
		info.StoredAt = c.storedAt
		if c.timeout > 0 {
			info.ExpiresAt = c.expiresAt
			info.remaining = c.expiresAt.Sub(now)
		}
	}
	return info
}

func clampTimeout(timeout time.Duration) time.Duration {
	if timeout < 0 {
		return 0
	}
	return timeout
}

// zeroBytes securely zeros a byte slice.
// runtime.KeepAlive prevents the compiler from optimizing away the zeroing
// as a dead store when the slice is not used afterward.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
