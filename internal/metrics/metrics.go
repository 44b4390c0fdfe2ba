// Package metrics provides process-local counters for keepassxc-cli usage.
// Counters are atomic so the shell loop and the config watcher can record
// concurrently.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics holds application metrics using atomic counters for thread safety.
type Metrics struct {
	// keepassxc-cli invocations
	cliCallsTotal   atomic.Int64
	cliFailures     atomic.Int64
	cliLatencyNanos atomic.Int64

	// Session state transitions
	unlockAttempts atomic.Int64
	unlockFailures atomic.Int64
	autoLocks      atomic.Int64

	// Database operations
	searches   atomic.Int64
	entryReads atomic.Int64
	searchHits atomic.Int64
}

// Global is the process-wide metrics instance used when none is injected.
//
//nolint:gochecknoglobals // Intentional global for metrics access
var Global = &Metrics{}

// RecordCLICall records one keepassxc-cli invocation that was spawned.
// A nonzero exit code counts as a failure.
func (m *Metrics) RecordCLICall(duration time.Duration, exitCode int) {
	m.cliCallsTotal.Add(1)
	m.cliLatencyNanos.Add(duration.Nanoseconds())
	if exitCode != 0 {
		m.cliFailures.Add(1)
	}
}

// RecordUnlock records an unlock attempt and whether it was accepted.
func (m *Metrics) RecordUnlock(ok bool) {
	m.unlockAttempts.Add(1)
	if !ok {
		m.unlockFailures.Add(1)
	}
}

// RecordAutoLock records a lock caused by the inactivity timeout.
func (m *Metrics) RecordAutoLock() {
	m.autoLocks.Add(1)
}

// RecordSearch records a completed search and its hit count.
func (m *Metrics) RecordSearch(hits int) {
	m.searches.Add(1)
	m.searchHits.Add(int64(hits))
}

// RecordEntryRead records a completed entry retrieval.
func (m *Metrics) RecordEntryRead() {
	m.entryReads.Add(1)
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	CLICallsTotal   int64 `json:"cli_calls_total"`
	CLIFailures     int64 `json:"cli_failures"`
	CLILatencyNanos int64 `json:"cli_latency_nanos"`
	UnlockAttempts  int64 `json:"unlock_attempts"`
	UnlockFailures  int64 `json:"unlock_failures"`
	AutoLocks       int64 `json:"auto_locks"`
	Searches        int64 `json:"searches"`
	SearchHits      int64 `json:"search_hits"`
	EntryReads      int64 `json:"entry_reads"`
}

// Snapshot returns a point-in-time copy of all metrics.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		CLICallsTotal:   m.cliCallsTotal.Load(),
		CLIFailures:     m.cliFailures.Load(),
		CLILatencyNanos: m.cliLatencyNanos.Load(),
		UnlockAttempts:  m.unlockAttempts.Load(),
		UnlockFailures:  m.unlockFailures.Load(),
		AutoLocks:       m.autoLocks.Load(),
		Searches:        m.searches.Load(),
		SearchHits:      m.searchHits.Load(),
		EntryReads:      m.entryReads.Load(),
	}
}

// CLICallsTotal returns the number of keepassxc-cli processes spawned.
func (m *Metrics) CLICallsTotal() int64 {
	return m.cliCallsTotal.Load()
}

// CLILatencyAvgMs returns the average invocation latency in milliseconds.
// Returns 0 if no calls have been made.
func (m *Metrics) CLILatencyAvgMs() float64 {
	calls := m.cliCallsTotal.Load()
	if calls == 0 {
		return 0
	}
	return float64(m.cliLatencyNanos.Load()) / float64(calls) / 1e6
}

// UnlockSuccessRate returns accepted unlocks as a percentage (0-100).
// Returns 0 if no unlock was attempted.
func (m *Metrics) UnlockSuccessRate() float64 {
	attempts := m.unlockAttempts.Load()
	if attempts == 0 {
		return 0
	}
	return float64(attempts-m.unlockFailures.Load()) / float64(attempts) * 100
}

// Reset resets all metrics to zero.
func (m *Metrics) Reset() {
	m.cliCallsTotal.Store(0)
	m.cliFailures.Store(0)
	m.cliLatencyNanos.Store(0)
	m.unlockAttempts.Store(0)
	m.unlockFailures.Store(0)
	m.autoLocks.Store(0)
	m.searches.Store(0)
	m.searchHits.Store(0)
	m.entryReads.Store(0)
}
