// Package dedup holds the run-scoped registry that decides whether a file's
// content has already been harvested.
package dedup

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Verdict is the outcome of Registry.TryAdmit.
type Verdict int

const (
	// Admitted means the content is new and should be materialized.
	Admitted Verdict = iota
	// Duplicate means identical content was already admitted.
	Duplicate
)

func (v Verdict) String() string {
	switch v {
	case Admitted:
		return "admitted"
	case Duplicate:
		return "duplicate"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// FullFunc computes the full fingerprint of a file on demand.
type FullFunc func() (string, error)

// Known wraps an already computed full fingerprint as a FullFunc.
func Known(full string) FullFunc {
	return func() (string, error) { return full, nil }
}

// entry tracks every full fingerprint admitted under one quick key. The first
// file admitted under a key is recorded lazily: its full fingerprint is only
// resolved when a second file produces the same quick key.
type entry struct {
	mu      sync.Mutex
	pending FullFunc
	fulls   map[string]struct{}
}

// Registry maps quick fingerprints to the set of full fingerprints already
// admitted. It is safe for concurrent use and never shrinks.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry

	fullChecks atomic.Int64
	admitted   atomic.Int64
	duplicates atomic.Int64
}

// NewRegistry returns an empty registry for one harvest run.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// TryAdmit decides, as one atomic step per quick key, whether the content
// identified by quick (and, on collision, by full) is new.
//
// full is invoked only when quick has been seen before. An error from full
// leaves the registry unchanged and is returned to the caller, which should
// skip the file.
func (r *Registry) TryAdmit(quick string, full FullFunc) (Verdict, error) {
	r.mu.Lock()
	e, seen := r.entries[quick]
	if !seen {
		r.entries[quick] = &entry{pending: full, fulls: make(map[string]struct{}, 1)}
		r.mu.Unlock()
		r.admitted.Add(1)
		return Admitted, nil
	}
	r.mu.Unlock()

	// Full hashing happens under the per-key lock so unrelated keys proceed
	// in parallel while check-and-insert for this key stays atomic.
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pending != nil {
		first := e.pending
		e.pending = nil
		// The first file may have vanished; its content can then no longer
		// match anything and is simply not recorded.
		if key, err := r.resolve(first); err == nil {
			e.fulls[key] = struct{}{}
		}
	}

	key, err := r.resolve(full)
	if err != nil {
		return Admitted, fmt.Errorf("full fingerprint: %w", err)
	}
	if _, dup := e.fulls[key]; dup {
		r.duplicates.Add(1)
		return Duplicate, nil
	}
	e.fulls[key] = struct{}{}
	r.admitted.Add(1)
	return Admitted, nil
}

func (r *Registry) resolve(fn FullFunc) (string, error) {
	if fn == nil {
		return "", fmt.Errorf("no full fingerprint source")
	}
	r.fullChecks.Add(1)
	return fn()
}

// Stats summarizes registry activity.
type Stats struct {
	QuickKeys  int
	Admitted   int64
	Duplicates int64
	FullChecks int64
}

// Stats returns a snapshot of registry counters.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	keys := len(r.entries)
	r.mu.Unlock()
	return Stats{
		QuickKeys:  keys,
		Admitted:   r.admitted.Load(),
		Duplicates: r.duplicates.Load(),
		FullChecks: r.fullChecks.Load(),
	}
}
