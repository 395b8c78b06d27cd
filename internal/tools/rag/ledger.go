package rag

import (
	"sync"

	"github.com/xiaot623/voicerag/internal/domain"
)

// Ledger tracks the sources surfaced to the model and the ones it cited, per session.
type Ledger struct {
	mu      sync.RWMutex
	issued  map[string]struct{}
	order   []string
	records []domain.GroundingRecord
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{issued: make(map[string]struct{})}
}

// Issue marks identifiers as returned by search.
func (l *Ledger) Issue(ids ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := l.issued[id]; ok {
			continue
		}
		l.issued[id] = struct{}{}
		l.order = append(l.order, id)
	}
}

// Issued reports whether search returned id in this session.
func (l *Ledger) Issued(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.issued[id]
	return ok
}

// IssuedIDs returns every identifier issued so far, oldest first.
func (l *Ledger) IssuedIDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.order...)
}

// Report appends grounding records.
func (l *Ledger) Report(records ...domain.GroundingRecord) {
	l.mu.Lock()
	l.records = append(l.records, records...)
	l.mu.Unlock()
}

// Records returns a copy of the grounding records.
func (l *Ledger) Records() []domain.GroundingRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.GroundingRecord(nil), l.records...)
}
