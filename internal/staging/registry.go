// Package staging holds candidates awaiting an eligibility decision.
package staging

import (
	"sort"
	"time"
)

// Record is one staged address.
type Record struct {
	Address     string
	FirstSeenAt time.Time
}

// Registry maps address to first sighting time. It is owned by a single tick
// and is not safe for concurrent use.
type Registry struct {
	records map[string]time.Time
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{records: make(map[string]time.Time)}
}

// FromSnapshot rebuilds a registry from its persisted form.
// Entries with an empty address or zero time are ignored.
func FromSnapshot(snap map[string]time.Time) *Registry {
	r := New()
	for addr, at := range snap {
		if addr == "" || at.IsZero() {
			continue
		}
		r.records[addr] = at
	}
	return r
}

// Snapshot returns a copy of the registry suitable for persistence.
func (r *Registry) Snapshot() map[string]time.Time {
	out := make(map[string]time.Time, len(r.records))
	for addr, at := range r.records {
		out[addr] = at
	}
	return out
}

// RecordSighting inserts address with observedAt if absent.
// An existing record keeps its original first-seen time. Reports whether it inserted.
func (r *Registry) RecordSighting(address string, observedAt time.Time) bool {
	if address == "" {
		return false
	}
	if _, ok := r.records[address]; ok {
		return false
	}
	r.records[address] = observedAt
	return true
}

// SweepExpired removes records with now - firstSeenAt > ttl and returns their addresses.
func (r *Registry) SweepExpired(now time.Time, ttl time.Duration) []string {
	var removed []string
	for addr, at := range r.records {
		if now.Sub(at) > ttl {
			delete(r.records, addr)
			removed = append(removed, addr)
		}
	}
	sort.Strings(removed)
	return removed
}

// ExcludeIfTracked removes every record whose address is in tracked.
// Returns the number of removed records.
func (r *Registry) ExcludeIfTracked(tracked []string) int {
	n := 0
	for _, addr := range tracked {
		if _, ok := r.records[addr]; ok {
			delete(r.records, addr)
			n++
		}
	}
	return n
}

// Remove deletes the given addresses.
func (r *Registry) Remove(addresses ...string) {
	for _, addr := range addresses {
		delete(r.records, addr)
	}
}

// Has reports whether address is staged.
func (r *Registry) Has(address string) bool {
	_, ok := r.records[address]
	return ok
}

// FirstSeen returns the first sighting time of address.
func (r *Registry) FirstSeen(address string) (time.Time, bool) {
	at, ok := r.records[address]
	return at, ok
}

// ListLive returns all records ordered by first sighting, then address.
func (r *Registry) ListLive() []Record {
	out := make([]Record, 0, len(r.records))
	for addr, at := range r.records {
		out = append(out, Record{Address: addr, FirstSeenAt: at})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FirstSeenAt.Equal(out[j].FirstSeenAt) {
			return out[i].FirstSeenAt.Before(out[j].FirstSeenAt)
		}
		return out[i].Address < out[j].Address
	})
	return out
}

// Addresses returns the live addresses in ListLive order.
func (r *Registry) Addresses() []string {
	live := r.ListLive()
	out := make([]string, len(live))
	for i, rec := range live {
		out[i] = rec.Address
	}
	return out
}

// Len returns the number of staged records.
func (r *Registry) Len() int {
	return len(r.records)
}
