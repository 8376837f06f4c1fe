// Package ratelog implements the rate-limited action log used to suppress
// self-induced feedback between the two control planes the reconciler
// drives: a per-key record of recent action timestamps, and a predicate
// answering "would acting now echo something we (or our peer, reacting to
// us) just did?".
package ratelog

import (
	"sync"
	"time"
)

// Clock abstracts monotonic time so tests can control it without sleeping.
// time.Now() satisfies this trivially; production code uses it directly.
type Clock func() time.Time

// Log is a per-key monotonic-time record of recent action timestamps.
// All operations hold a single lock; Violated performs record+compare
// atomically. Zero value is not usable — construct with New.
type Log struct {
	mu   sync.Mutex
	now  Clock
	// threshold is the window within which two records for the same key
	// are considered an echo of one another.
	threshold time.Duration
	// maxAge bounds memory: once more than maxAge has elapsed since a key's
	// last record, its entire history is dropped on the next write of any
	// key. Stale
	// keys would otherwise leak forever since domains are never deregistered.
	maxAge time.Duration

	entries map[string][]time.Time
}

// New creates a Log with the given echo-detection threshold and the cleanup
// age after which a key's history is dropped.
func New(threshold, maxAge time.Duration) *Log {
	return &Log{
		now:       time.Now,
		threshold: threshold,
		maxAge:    maxAge,
		entries:   make(map[string][]time.Time),
	}
}

// Record appends "now" to key's history, first dropping the history of
// every key whose last record is more than maxAge old.
func (l *Log) Record(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recordLocked(key)
}

func (l *Log) recordLocked(key string) {
	now := l.now()
	for k, hist := range l.entries {
		if n := len(hist); n > 0 && now.Sub(hist[n-1]) > l.maxAge {
			delete(l.entries, k)
		}
	}
	l.entries[key] = append(l.entries[key], now)
}

// Violated records "now" for key, then reports whether the two most recent
// records for key are separated by no more than the configured threshold —
// i.e. whether acting now would repeat a very recent action for this key.
func (l *Log) Violated(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recordLocked(key)
	return l.lastLocked(key).Sub(l.prevLocked(key)) <= l.threshold && !l.prevLocked(key).IsZero()
}

// Last returns the most recent timestamp recorded for key, or the zero
// value if key has never been recorded.
func (l *Log) Last(key string) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastLocked(key)
}

// Prev returns the second-most-recent timestamp for key, or the zero value
// if fewer than two records exist.
func (l *Log) Prev(key string) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.prevLocked(key)
}

func (l *Log) lastLocked(key string) time.Time {
	hist := l.entries[key]
	if len(hist) == 0 {
		return time.Time{}
	}
	return hist[len(hist)-1]
}

func (l *Log) prevLocked(key string) time.Time {
	hist := l.entries[key]
	if len(hist) < 2 {
		return time.Time{}
	}
	return hist[len(hist)-2]
}
