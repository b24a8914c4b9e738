package executor

import (
	"sync"
	"time"
)

// Dedup prevents the same opportunity from being executed more than once
// within a configurable time-to-live window. Opportunities are point in
// time: a failed or completed one is never retried, a fresh discrepancy must
// be re-detected. Safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time // opportunityID -> first execution attempt
	ttl  time.Duration
	mu   sync.Mutex
}

// NewDedup creates a Dedup instance that considers an opportunity a
// duplicate if an execution was attempted within the given ttl.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// IsDuplicate returns true if the opportunity has been attempted within the
// TTL window. Otherwise it records the attempt and returns false.
func (d *Dedup) IsDuplicate(opportunityID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if last, ok := d.seen[opportunityID]; ok {
		if now.Sub(last) < d.ttl {
			return true
		}
	}

	d.seen[opportunityID] = now
	return false
}

// Cleanup removes entries that have expired beyond the TTL. Called
// periodically to prevent unbounded growth.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for id, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, id)
		}
	}
}
