package rollback

import (
	"sync"
	"time"

	"devflow-autopilot/types"
)

// Ledger remembers the most recent candidate listing and safety assessments
// per repository branch. Entries expire after ttl.
type Ledger struct {
	ttl time.Duration

	mu       sync.Mutex
	listings map[string]listing
	checks   map[string]map[string]types.SafetyAssessment
}

type listing struct {
	candidates []types.RollbackCandidate
	at         time.Time
}

func NewLedger(ttl time.Duration) *Ledger {
	return &Ledger{
		ttl:      ttl,
		listings: map[string]listing{},
		checks:   map[string]map[string]types.SafetyAssessment{},
	}
}

func (l *Ledger) expired(at, now time.Time) bool {
	return l.ttl > 0 && now.Sub(at) > l.ttl
}

// RememberListing replaces the listing for key. Assessments made against the
// previous listing are dropped since ordinals may now point elsewhere.
func (l *Ledger) RememberListing(key string, candidates []types.RollbackCandidate, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev, ok := l.listings[key]
	if ok && !sameListing(prev.candidates, candidates) {
		delete(l.checks, key)
	}
	l.listings[key] = listing{candidates: candidates, at: now}
}

func sameListing(a, b []types.RollbackCandidate) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].SHA != b[i].SHA {
			return false
		}
	}
	return true
}

// Listing returns the remembered candidates for key.
func (l *Ledger) Listing(key string, now time.Time) ([]types.RollbackCandidate, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lst, ok := l.listings[key]
	if !ok || l.expired(lst.at, now) {
		return nil, false
	}
	return lst.candidates, true
}

// Expired reports whether a listing was remembered for key but has since
// expired.
func (l *Ledger) Expired(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	lst, ok := l.listings[key]
	return ok && l.expired(lst.at, now)
}

// RecordAssessment stores a for key, replacing any earlier assessment of the
// same target.
func (l *Ledger) RecordAssessment(key string, a types.SafetyAssessment) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.checks[key] == nil {
		l.checks[key] = map[string]types.SafetyAssessment{}
	}
	l.checks[key][a.TargetSHA] = a
}

// Assessment returns the unexpired assessment of the candidate at sha.
func (l *Ledger) Assessment(key, sha string, now time.Time) (types.SafetyAssessment, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.checks[key][sha]
	if !ok || l.expired(a.AssessedAt, now) {
		return types.SafetyAssessment{}, false
	}
	return a, true
}
