package triage

import "context"

// Store is the persistence interface for triage records.
//
// Update is the single-writer path: implementations serialize concurrent
// updates to the same id while letting updates to different ids proceed
// independently. The mutate func receives a private copy; returning an
// error aborts the update without mutation. A missing id yields
// ErrNotFound.
//
// List returns records in queue order: risk score descending, ties broken
// by ascending creation time. An empty specialty means no filter.
type Store interface {
	Get(ctx context.Context, id string) (*TriageRecord, bool, error)
	Put(ctx context.Context, rec *TriageRecord) error
	Update(ctx context.Context, id string, mutate func(*TriageRecord) error) (*TriageRecord, error)
	List(ctx context.Context, specialty string) ([]*TriageRecord, error)
}
