package mutation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"caseboard/internal/eventbus"
	"caseboard/internal/upsert"
	"caseboard/pkg/domain"
)

// UpsertClient lands an imported or externally sourced record: a direct-key
// update when the id hits, an update through the first alternate-key
// candidate after a direct miss, and an insert when nothing matched.
// Imports bypass the undo history; callers reloading a whole data set clear
// it explicitly via ClearHistory.
func (s *Service) UpsertClient(ctx context.Context, client domain.Client) (upsert.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	var decision upsert.Decision
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		changes, err := recordChanges(client)
		if err != nil {
			return err
		}
		affected, err := tx.UpdateClient(client.ID, changes)
		if err != nil {
			return err
		}
		candidates := 0
		var first domain.Client
		if affected == 0 {
			matches := upsert.FindCandidates(tx.ListClients(), client.ID, nil)
			candidates = len(matches)
			if candidates > 0 {
				first = matches[0]
			}
		}
		decision = upsert.Decide(upsert.Outcome{UpdateCount: affected, CandidatesFound: candidates})
		switch decision {
		case upsert.DecisionUpdate:
			return nil
		case upsert.DecisionUpdateViaCandidate:
			n, err := tx.UpdateClient(first.ID, changes)
			if err != nil {
				return err
			}
			if n == 0 {
				return domain.ConflictError{ID: first.ID}
			}
			return nil
		default:
			if client.UUID == "" {
				client.UUID = uuid.NewString()
			}
			return tx.PutClient(client)
		}
	})
	if err != nil {
		s.observe("upsert", start, err)
		return decision, asMutationError(err)
	}
	s.observe("upsert", start, nil)
	return decision, nil
}

// recordChanges renders a full record as a field delta covering every
// patchable field, so an upsert overwrites the target record's mutable
// state wholesale.
func recordChanges(c domain.Client) (domain.Changes, error) {
	out := make(domain.Changes)
	for _, f := range domain.Fields() {
		v, err := c.Value(f)
		if err != nil {
			return nil, err
		}
		out[f] = v
	}
	return out, nil
}

// RecordContact increments the client's contact counter and stamps the
// contact time. The next count is derived from the record as read inside
// the mutation transaction, so overlapping calls never lose increments.
func (s *Service) RecordContact(ctx context.Context, id string, now time.Time) (domain.Patch, error) {
	return s.applyDerived(ctx, "contact", id, func(current domain.Client) domain.Changes {
		return domain.Changes{
			domain.FieldContactCount:  current.ContactCount + 1,
			domain.FieldLastContactAt: now,
		}
	})
}

// CyclePriority advances the client's priority one step along the
// low/medium/high cycle, deriving the next step inside the transaction.
func (s *Service) CyclePriority(ctx context.Context, id string) (domain.Patch, error) {
	return s.applyDerived(ctx, "priority", id, func(current domain.Client) domain.Changes {
		return domain.Changes{
			domain.FieldPriority: domain.NextPriority(current.Priority),
		}
	})
}

// applyDerived applies a patch computed from the record's current state.
// The read and the write happen in the same transaction, under the service
// mutex, matching the history semantics of ApplyPatch: one inverse entry is
// pushed, the redo stack is cleared, and a commit signal carries the patch.
func (s *Service) applyDerived(ctx context.Context, op, id string, derive func(domain.Client) domain.Changes) (domain.Patch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	var applied, inverse domain.Patch
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		current, ok := tx.GetClient(id)
		if !ok {
			return domain.NotFoundError{ID: id}
		}
		applied = domain.NewPatch(id, derive(current))
		inv, err := applyOne(tx, applied)
		if err != nil {
			return err
		}
		inverse = inv
		return nil
	})
	if err != nil {
		s.observe(op, start, err)
		return domain.Patch{}, asMutationError(err)
	}

	s.undo = pushBounded(s.undo, inverse, s.limit)
	s.redo = s.redo[:0]
	s.publish(eventbus.KindCommit, []domain.Patch{applied})
	s.observe(op, start, nil)
	return applied, nil
}
