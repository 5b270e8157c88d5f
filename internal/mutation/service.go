// Package mutation implements the transactional core of the board: applying
// field-level patches to the client store, deriving inverse patches, and
// maintaining the bounded undo/redo history.
package mutation

import (
	"context"
	"sync"
	"time"

	"caseboard/internal/eventbus"
	"caseboard/pkg/domain"
)

// DefaultHistoryLimit bounds the undo and redo stacks.
const DefaultHistoryLimit = 50

// Outcome reports the non-error result of a mutation call.
type Outcome struct {
	// NoOp is true when every submitted patch was empty: the call
	// succeeded without touching the store or the history stacks.
	NoOp bool
}

// Service owns the undo/redo stacks for one board. It is an explicit
// instance: construct one per store (or per test) and inject it wherever
// mutations originate; there is no package-level state.
//
// A single mutex serializes all mutations through the service, so two
// overlapping applies against the same record cannot compute inverse
// patches from stale reads.
type Service struct {
	store   domain.ClientStore
	bus     *eventbus.Bus
	limit   int
	metrics *Metrics

	mu   sync.Mutex
	undo []domain.Patch
	redo []domain.Patch
}

// Option configures a Service.
type Option func(*Service)

// WithHistoryLimit overrides the stack bound (values < 1 keep the default).
func WithHistoryLimit(n int) Option {
	return func(s *Service) {
		if n >= 1 {
			s.limit = n
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService constructs a mutation service over the given store. The bus
// receives an optimistic-commit signal after every successful mutation and
// may be nil for callers that do not render optimistically.
func NewService(store domain.ClientStore, bus *eventbus.Bus, opts ...Option) *Service {
	s := &Service{store: store, bus: bus, limit: DefaultHistoryLimit}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ApplyPatch persists a single patch. An empty patch succeeds without any
// effect; in particular it never touches the history stacks.
func (s *Service) ApplyPatch(ctx context.Context, p domain.Patch) (Outcome, error) {
	return s.ApplyPatches(ctx, []domain.Patch{p})
}

// ApplyPatches persists a batch of patches in one atomic transaction. When
// any patch fails (missing record, zero-affected update) the whole batch is
// rolled back: no record changes and no undo entries are pushed. On success
// one inverse entry per patch is pushed in batch order, the redo stack is
// cleared once, and a single commit signal carries the whole batch.
func (s *Service) ApplyPatches(ctx context.Context, patches []domain.Patch) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	effective := make([]domain.Patch, 0, len(patches))
	for _, p := range patches {
		if !p.IsEmpty() {
			effective = append(effective, p)
		}
	}
	if len(effective) == 0 {
		return Outcome{NoOp: true}, nil
	}

	inverses := make([]domain.Patch, 0, len(effective))
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		for _, p := range effective {
			inv, err := applyOne(tx, p)
			if err != nil {
				return err
			}
			inverses = append(inverses, inv)
		}
		return nil
	})
	if err != nil {
		s.observe("apply", start, err)
		return Outcome{}, asMutationError(err)
	}

	for _, inv := range inverses {
		s.undo = pushBounded(s.undo, inv, s.limit)
	}
	s.redo = s.redo[:0]
	s.publish(eventbus.KindCommit, effective)
	s.observe("apply", start, nil)
	return Outcome{}, nil
}

// applyOne reads the current record, derives the inverse delta for exactly
// the touched fields, and writes the merged record.
func applyOne(tx domain.Transaction, p domain.Patch) (domain.Patch, error) {
	current, ok := tx.GetClient(p.ID)
	if !ok {
		return domain.Patch{}, domain.NotFoundError{ID: p.ID}
	}
	inverse := make(domain.Changes, len(p.Changes))
	for f := range p.Changes {
		v, err := current.Value(f)
		if err != nil {
			return domain.Patch{}, err
		}
		inverse[f] = v
	}
	affected, err := tx.UpdateClient(p.ID, p.Changes)
	if err != nil {
		return domain.Patch{}, domain.ConflictError{ID: p.ID, Reason: err.Error()}
	}
	if affected == 0 {
		return domain.Patch{}, domain.ConflictError{ID: p.ID}
	}
	return domain.Patch{ID: p.ID, Changes: inverse}, nil
}

// Undo reverts the most recent mutation. The popped entry is pushed back on
// unexpected persistence errors so a retry remains possible; when the target
// record has vanished the entry is discarded, since there is nothing left
// to restore it against.
func (s *Service) Undo(ctx context.Context) (domain.Patch, error) {
	return s.swap(ctx, "undo")
}

// Redo re-applies the most recently undone mutation. Symmetric to Undo.
func (s *Service) Redo(ctx context.Context) (domain.Patch, error) {
	return s.swap(ctx, "redo")
}

// swap moves one entry between the two stacks: pop from the source stack,
// record the current values of the touched fields as the counterpart entry,
// apply the popped delta, and push the counterpart onto the other stack.
func (s *Service) swap(ctx context.Context, op string) (domain.Patch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	source, target := &s.undo, &s.redo
	if op == "redo" {
		source, target = &s.redo, &s.undo
	}
	if len(*source) == 0 {
		s.observe(op, start, domain.ErrStackEmpty)
		return domain.Patch{}, domain.ErrStackEmpty
	}
	entry := (*source)[len(*source)-1]
	*source = (*source)[:len(*source)-1]

	var counterpart domain.Patch
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		current, ok := tx.GetClient(entry.ID)
		if !ok {
			return domain.NotFoundError{ID: entry.ID}
		}
		changes := make(domain.Changes, len(entry.Changes))
		for f := range entry.Changes {
			v, err := current.Value(f)
			if err != nil {
				return err
			}
			changes[f] = v
		}
		counterpart = domain.Patch{ID: entry.ID, Changes: changes}
		affected, err := tx.UpdateClient(entry.ID, entry.Changes)
		if err != nil {
			return domain.ConflictError{ID: entry.ID, Reason: err.Error()}
		}
		if affected == 0 {
			return domain.ConflictError{ID: entry.ID}
		}
		return nil
	})
	if err != nil {
		if !domain.IsNotFound(err) {
			// Restore the entry so the user can retry.
			*source = append(*source, entry)
		}
		s.observe(op, start, err)
		return domain.Patch{}, asMutationError(err)
	}

	*target = pushBounded(*target, counterpart, s.limit)
	s.publish(eventbus.KindCommit, []domain.Patch{entry})
	s.observe(op, start, nil)
	return entry, nil
}

// Status reports the current history depths. Pure read, no side effects.
func (s *Service) Status() domain.StackStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.StackStatus{
		CanUndo:   len(s.undo) > 0,
		CanRedo:   len(s.redo) > 0,
		UndoCount: len(s.undo),
		RedoCount: len(s.redo),
	}
}

// ClearHistory empties both stacks unconditionally. Called when the data
// set is reloaded wholesale and history against the old data set is no
// longer meaningful.
func (s *Service) ClearHistory() {
	s.mu.Lock()
	s.undo = nil
	s.redo = nil
	s.mu.Unlock()
	s.updateDepths()
}

// pushBounded appends an entry, evicting from the oldest end when the stack
// is at its bound. Exceeding the bound never fails.
func pushBounded(stack []domain.Patch, entry domain.Patch, limit int) []domain.Patch {
	if len(stack) >= limit {
		stack = stack[len(stack)-limit+1:]
	}
	return append(stack, entry)
}

func (s *Service) publish(kind eventbus.Kind, patches []domain.Patch) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Kind: kind, Patches: patches})
	}
}

// asMutationError keeps the typed taxonomy errors and folds everything else
// (store failures, codec errors) into a persistence conflict.
func asMutationError(err error) error {
	if err == nil || domain.IsNotFound(err) || domain.IsConflict(err) {
		return err
	}
	return domain.ConflictError{Reason: err.Error()}
}

func (s *Service) observe(op string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.observe(op, time.Since(start), err)
	s.metrics.depths(len(s.undo), len(s.redo))
}

func (s *Service) updateDepths() {
	if s.metrics == nil {
		return
	}
	s.mu.Lock()
	undo, redo := len(s.undo), len(s.redo)
	s.mu.Unlock()
	s.metrics.depths(undo, redo)
}
