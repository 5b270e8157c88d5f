// Package memory provides the in-memory implementation of the client store,
// used directly for tests and ephemeral environments and embedded by the
// durable backends for their transactional semantics.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/brunoga/deep"
	"github.com/google/uuid"

	"caseboard/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.ClientStore = (*Store)(nil)

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Clients map[string]domain.Client `json:"clients"`
}

// Store is an in-memory transactional client store. Transactions run
// against a deep copy of the state and commit by swapping it in, so a
// failed transaction leaves the store untouched.
type Store struct {
	mu    sync.RWMutex
	state map[string]domain.Client
	nowFn func() time.Time
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		state: make(map[string]domain.Client),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func cloneState(state map[string]domain.Client) map[string]domain.Client {
	return deep.MustCopy(state)
}

// RunInTransaction executes fn against a transactional copy of the state.
// The copy becomes the committed state only when fn returns nil.
func (s *Store) RunInTransaction(_ context.Context, fn func(domain.Transaction) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{state: cloneState(s.state), now: s.nowFn()}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// View executes fn against a read-only snapshot of the state.
func (s *Store) View(_ context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	snapshot := cloneState(s.state)
	s.mu.RUnlock()
	return fn(&view{state: snapshot})
}

// GetClient retrieves a record by id from committed state.
func (s *Store) GetClient(id string) (domain.Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state[id]
	if !ok {
		return domain.Client{}, false
	}
	return c.Clone(), true
}

// ListClients returns all records in stable scan order.
func (s *Store) ListClients() []domain.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listClients(s.state)
}

// ExportState returns a snapshot of the committed state for durable
// backends to persist.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Clients: cloneState(s.state)}
}

// ImportState replaces the committed state wholesale, e.g. when hydrating
// from a durable snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snapshot.Clients == nil {
		s.state = make(map[string]domain.Client)
		return
	}
	s.state = cloneState(snapshot.Clients)
}

type transaction struct {
	state map[string]domain.Client
	now   time.Time
}

var _ domain.Transaction = (*transaction)(nil)

func (tx *transaction) GetClient(id string) (domain.Client, bool) {
	c, ok := tx.state[id]
	if !ok {
		return domain.Client{}, false
	}
	return c.Clone(), true
}

func (tx *transaction) UpdateClient(id string, changes domain.Changes) (int, error) {
	current, ok := tx.state[id]
	if !ok {
		return 0, nil
	}
	merged := current.Clone()
	if err := merged.Apply(changes); err != nil {
		return 0, err
	}
	merged.UpdatedAt = tx.now
	tx.state[id] = merged
	return 1, nil
}

func (tx *transaction) PutClient(client domain.Client) error {
	if client.ID == "" {
		client.ID = uuid.NewString()
	}
	if client.CreatedAt.IsZero() {
		client.CreatedAt = tx.now
	}
	client.UpdatedAt = tx.now
	tx.state[client.ID] = client.Clone()
	return nil
}

func (tx *transaction) InsertClients(clients []domain.Client) error {
	for _, c := range clients {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if _, exists := tx.state[c.ID]; exists {
			return domain.ConflictError{ID: c.ID, Reason: "already exists"}
		}
		c.CreatedAt = tx.now
		c.UpdatedAt = tx.now
		tx.state[c.ID] = c.Clone()
	}
	return nil
}

func (tx *transaction) ListClients() []domain.Client {
	return listClients(tx.state)
}

type view struct {
	state map[string]domain.Client
}

var _ domain.TransactionView = (*view)(nil)

func (v *view) GetClient(id string) (domain.Client, bool) {
	c, ok := v.state[id]
	if !ok {
		return domain.Client{}, false
	}
	return c.Clone(), true
}

func (v *view) ListClients() []domain.Client {
	return listClients(v.state)
}

func listClients(state map[string]domain.Client) []domain.Client {
	out := make([]domain.Client, 0, len(state))
	for _, c := range state {
		out = append(out, c.Clone())
	}
	sortClients(out)
	return out
}
