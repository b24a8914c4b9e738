package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/arbstack/arbengine/internal/domain"
)

// OpportunityTable is the engine-owned arena of opportunities. All mutation
// goes through this table under one coarse lock; readers get snapshot
// copies. Lifecycle transitions are enforced to be monotonic.
type OpportunityTable struct {
	mu   sync.Mutex
	opps map[string]*domain.Opportunity
}

// NewOpportunityTable creates an empty table.
func NewOpportunityTable() *OpportunityTable {
	return &OpportunityTable{opps: make(map[string]*domain.Opportunity)}
}

// signature identifies equivalent opportunities so re-scans do not flood the
// table while an earlier detection of the same discrepancy is still live.
func signature(o domain.Opportunity) string {
	return string(o.Kind) + "|" + o.Pair + "|" + o.BuyVenue + "|" + o.BuyChain + "|" + o.SellVenue + "|" + o.SellChain
}

// Insert adds a detected opportunity. It returns false when an equivalent
// opportunity is still active (detected or validated), in which case the new
// candidate is dropped.
func (t *OpportunityTable) Insert(opp domain.Opportunity) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	sig := signature(opp)
	for _, existing := range t.opps {
		if existing.Status != domain.OpportunityDetected && existing.Status != domain.OpportunityValidated {
			continue
		}
		if signature(*existing) == sig {
			return false
		}
	}
	cp := opp
	t.opps[opp.ID] = &cp
	return true
}

// Get returns a copy of the opportunity with the given ID.
func (t *OpportunityTable) Get(id string) (domain.Opportunity, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	opp, ok := t.opps[id]
	if !ok {
		return domain.Opportunity{}, false
	}
	return *opp, true
}

// Transition moves an opportunity to a new lifecycle status. Invalid or
// backwards transitions are rejected; terminal states never change again.
func (t *OpportunityTable) Transition(id string, to domain.OpportunityStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	opp, ok := t.opps[id]
	if !ok {
		return fmt.Errorf("opportunity table: %s: %w", id, domain.ErrNotFound)
	}
	if !domain.CanTransition(opp.Status, to) {
		return fmt.Errorf("opportunity table: %s: %s -> %s: %w",
			id, opp.Status, to, domain.ErrInvalidTransition)
	}
	opp.Status = to
	return nil
}

// ListByStatus returns copies of all opportunities in any of the given
// statuses.
func (t *OpportunityTable) ListByStatus(statuses ...domain.OpportunityStatus) []domain.Opportunity {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []domain.Opportunity
	for _, opp := range t.opps {
		for _, s := range statuses {
			if opp.Status == s {
				out = append(out, *opp)
				break
			}
		}
	}
	return out
}

// Active returns the detected and validated opportunities sorted by net
// profit, descending.
func (t *OpportunityTable) Active() []domain.Opportunity {
	out := t.ListByStatus(domain.OpportunityDetected, domain.OpportunityValidated)
	sort.Slice(out, func(i, j int) bool { return out[i].NetProfit > out[j].NetProfit })
	return out
}

// Cleanup removes entries detected before now minus retention, provided they
// are terminal. Live entries are kept regardless of age; expiry is the
// validator's job. Returns the number removed.
func (t *OpportunityTable) Cleanup(now time.Time, retention time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := now.Add(-retention)
	removed := 0
	for id, opp := range t.opps {
		if opp.Status.Terminal() && opp.DetectedAt.Before(cutoff) {
			delete(t.opps, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries currently held.
func (t *OpportunityTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.opps)
}
