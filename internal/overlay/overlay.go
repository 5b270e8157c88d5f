// Package overlay maintains the in-memory optimistic view of not-yet
// confirmed field changes. Entries are layered on top of the latest
// persisted snapshot for rendering and retired automatically once the
// snapshot independently reflects their values.
package overlay

import (
	"sync"
	"sync/atomic"

	"caseboard/internal/eventbus"
	"caseboard/internal/upsert"
	"caseboard/pkg/domain"
)

// ShouldDrop reports whether every field present in the overlay delta is
// already reflected by the base record, meaning the entry carries no
// information beyond the persisted state.
func ShouldDrop(base domain.Client, changes domain.Changes) bool {
	for f, want := range changes {
		have, err := base.Value(f)
		if err != nil {
			return false
		}
		if !equalValues(have, want) {
			return false
		}
	}
	return true
}

// KeepOverlay is the reconciliation decision for one entry: true while the
// overlay still adds information over the base record.
func KeepOverlay(base domain.Client, changes domain.Changes) bool {
	return !ShouldDrop(base, changes)
}

// Overlay is the per-process optimistic state, keyed by normalized record
// id. It consumes apply/commit/clear signals from the bus; reconciliation
// against a fresh base snapshot is the only removal path besides clear.
type Overlay struct {
	mu          sync.RWMutex
	entries     map[string]domain.Changes
	revision    atomic.Uint64
	unsubscribe func()
}

// New constructs an overlay subscribed to the given bus. Pass nil to manage
// signals manually (tests do).
func New(bus *eventbus.Bus) *Overlay {
	o := &Overlay{entries: make(map[string]domain.Changes)}
	if bus != nil {
		o.unsubscribe = bus.Subscribe(o.handle)
	}
	return o
}

// Close detaches the overlay from its bus.
func (o *Overlay) Close() {
	if o.unsubscribe != nil {
		o.unsubscribe()
	}
}

func (o *Overlay) handle(ev eventbus.Event) {
	switch ev.Kind {
	case eventbus.KindApply:
		o.Apply(ev.Patches)
	case eventbus.KindCommit:
		// Removal happens via reconciliation against the next snapshot;
		// the commit only retriggers derived views.
		o.revision.Add(1)
	case eventbus.KindClear:
		o.Clear()
	}
}

// Revision increments on every signal. Consumers re-derive their merged
// view when it changes.
func (o *Overlay) Revision() uint64 {
	return o.revision.Load()
}

// Apply merges the patches into the overlay, field-wise last-write-wins per
// record, creating entries as needed.
func (o *Overlay) Apply(patches []domain.Patch) {
	o.mu.Lock()
	for _, p := range patches {
		if len(p.Changes) == 0 {
			continue
		}
		key := upsert.NormalizeID(p.ID)
		entry := o.entries[key]
		if entry == nil {
			entry = make(domain.Changes, len(p.Changes))
			o.entries[key] = entry
		}
		for f, v := range p.Changes {
			entry[f] = v
		}
	}
	o.mu.Unlock()
	o.revision.Add(1)
}

// Clear discards all optimistic state unconditionally.
func (o *Overlay) Clear() {
	o.mu.Lock()
	o.entries = make(map[string]domain.Changes)
	o.mu.Unlock()
	o.revision.Add(1)
}

// Entry returns the overlay delta for the given id, if any.
func (o *Overlay) Entry(id string) (domain.Changes, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	entry, ok := o.entries[upsert.NormalizeID(id)]
	if !ok {
		return nil, false
	}
	return entry.Clone(), true
}

// Len reports the number of live overlay entries.
func (o *Overlay) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.entries)
}

// Reconcile re-evaluates every entry against a fresh base snapshot and
// drops the ones the snapshot already reflects.
func (o *Overlay) Reconcile(base []domain.Client) {
	byID := make(map[string]domain.Client, len(base))
	for _, c := range base {
		byID[upsert.NormalizeID(c.ID)] = c
	}
	o.mu.Lock()
	for key, entry := range o.entries {
		record, ok := byID[key]
		if !ok {
			continue
		}
		if ShouldDrop(record, entry) {
			delete(o.entries, key)
		}
	}
	o.mu.Unlock()
}

// MergedView reconciles against the snapshot and returns it with overlay
// deltas applied on top. Records without an overlay entry pass through
// unchanged.
func (o *Overlay) MergedView(base []domain.Client) []domain.Client {
	o.Reconcile(base)
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]domain.Client, 0, len(base))
	for _, c := range base {
		if entry, ok := o.entries[upsert.NormalizeID(c.ID)]; ok {
			merged := c.Clone()
			// Overlay values were validated when the patch was built;
			// a stale entry that no longer applies falls back to base.
			if err := merged.Apply(entry); err == nil {
				out = append(out, merged)
				continue
			}
		}
		out = append(out, c)
	}
	return out
}
