package berth

import (
	"bytes"
	"fmt"
	"sort"
	"time"
)

// EntryInfo contains diagnostic information about one registry entry.
type EntryInfo struct {
	Scope     ScopeID
	Key       TypeKey
	Type      string
	Disposal  string // "none", "sync", "async" or "sync+async"
	Released  bool
	CreatedAt time.Time
}

// EntryQuery defines criteria for querying entries.
type EntryQuery struct {
	// Scope filters by scope id. NilScopeID matches all scopes.
	Scope ScopeID

	// Type filters by service type. Zero matches all types.
	Type TypeKey

	// Released filters by released state.
	// nil matches all entries (released and live).
	Released *bool
}

// Inspect returns diagnostic information about the entry for (id, key).
// The second result is false if there is no such entry.
func (r *Registry) Inspect(id ScopeID, key TypeKey) (EntryInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id.IsNil() || key.IsZero() {
		return EntryInfo{Scope: id, Key: key}, false
	}

	e := r.lookup(id, key)
	if e == nil {
		return EntryInfo{Scope: id, Key: key}, false
	}

	return e.info(), true
}

// Entries returns information about entries matching the query, oldest first.
//
// Example:
//
//	live := false
//	infos := reg.Entries(berth.EntryQuery{Scope: id, Released: &live})
func (r *Registry) Entries(query EntryQuery) []EntryInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		if !query.Scope.IsNil() && e.scope != query.Scope {
			continue
		}
		if !query.Type.IsZero() && e.key != query.Type {
			continue
		}
		if query.Released != nil && e.released != *query.Released {
			continue
		}
		matched = append(matched, e)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].seq < matched[j].seq
	})

	infos := make([]EntryInfo, len(matched))
	for i, e := range matched {
		infos[i] = e.info()
	}
	return infos
}

// Scopes returns the ids that currently own at least one entry, sorted.
func (r *Registry) Scopes() []ScopeID {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]ScopeID, 0, len(r.scopes))
	for id := range r.scopes {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return ids
}

// Len returns the number of entries, released ones included.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}

// IsDisposed reports whether Dispose or DisposeAsync has completed.
func (r *Registry) IsDisposed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.disposed
}

func (e *entry) info() EntryInfo {
	return EntryInfo{
		Scope:     e.scope,
		Key:       e.key,
		Type:      fmt.Sprintf("%T", e.instance),
		Disposal:  e.caps.String(),
		Released:  e.released,
		CreatedAt: e.createdAt,
	}
}
