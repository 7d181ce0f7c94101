// Package memstore provides an in-memory implementation of triage.Store.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/linnemanlabs/auricle/internal/triage"
)

// Store holds triage records in memory. Suitable for dev/testing and for
// deployments where retention is owned elsewhere.
type Store struct {
	mu      sync.RWMutex
	records map[string]*triage.TriageRecord

	// locks serializes Update calls per record id; updates to different
	// ids proceed independently.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		records: make(map[string]*triage.TriageRecord),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Get retrieves a record by its id. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*triage.TriageRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, false, nil
	}
	return copyRecord(r), true, nil
}

// Put stores a copy of the record.
func (s *Store) Put(_ context.Context, rec *triage.TriageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = copyRecord(rec)
	return nil
}

// Update applies mutate to the record under the per-id lock. The mutate
// func sees a private copy; an error from it aborts the update with no
// mutation. UpdatedAt is refreshed on success.
func (s *Store) Update(_ context.Context, id string, mutate func(*triage.TriageRecord) error) (*triage.TriageRecord, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	current, ok := s.records[id]
	if !ok {
		s.mu.RUnlock()
		return nil, triage.ErrNotFound
	}
	working := copyRecord(current)
	s.mu.RUnlock()

	if err := mutate(working); err != nil {
		return nil, err
	}
	working.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	s.records[id] = copyRecord(working)
	s.mu.Unlock()

	return working, nil
}

// List returns records in queue order: risk score descending, then
// creation time ascending, then id for a stable total order. An empty
// specialty returns everything.
func (s *Store) List(_ context.Context, specialty string) ([]*triage.TriageRecord, error) {
	s.mu.RLock()
	out := make([]*triage.TriageRecord, 0, len(s.records))
	for _, r := range s.records {
		if specialty != "" && r.Specialty != specialty {
			continue
		}
		out = append(out, copyRecord(r))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].RiskScore != out[j].RiskScore {
			return out[i].RiskScore > out[j].RiskScore
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) lockFor(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func copyRecord(r *triage.TriageRecord) *triage.TriageRecord {
	cp := *r
	if r.SOAPNote != nil {
		note := *r.SOAPNote
		cp.SOAPNote = &note
	}
	if r.Vitals != nil {
		vitals := *r.Vitals
		cp.Vitals = &vitals
	}
	return &cp
}
