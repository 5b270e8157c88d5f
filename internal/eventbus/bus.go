// Package eventbus carries the optimistic-update signals between the
// mutation path and the overlay. The bus is an explicit instance passed by
// reference; nothing in the repo relies on a process-global dispatcher.
package eventbus

import (
	"sync"

	"caseboard/pkg/domain"
)

// Kind names one of the three optimistic-update signals.
type Kind string

const (
	// KindApply announces patches that were applied optimistically ahead
	// of persistence.
	KindApply Kind = "optimistic-apply"
	// KindCommit announces patches that persistence confirmed.
	KindCommit Kind = "optimistic-commit"
	// KindClear discards all optimistic state after a failed mutation.
	KindClear Kind = "optimistic-clear"
)

// Event is a published signal. Patches is empty for KindClear. Source is
// empty for locally originated events; a relay stamps it with the remote
// instance id when republishing, so relays never echo remote events back.
type Event struct {
	Kind    Kind           `json:"kind"`
	Patches []domain.Patch `json:"patches,omitempty"`
	Source  string         `json:"-"`
}

// Handler consumes published events. Handlers run synchronously on the
// publishing goroutine.
type Handler func(Event)

// Bus is a minimal typed publish/subscribe hub.
type Bus struct {
	mu   sync.RWMutex
	next int
	subs map[int]Handler
}

// New constructs an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]Handler)}
}

// Subscribe registers a handler and returns its unsubscribe function.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = h
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish delivers the event to every subscriber. A panicking handler does
// not prevent delivery to the remaining subscribers.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()
	for _, h := range handlers {
		deliver(h, ev)
	}
}

func deliver(h Handler, ev Event) {
	defer func() { _ = recover() }()
	h(ev)
}
