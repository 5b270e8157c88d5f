package domain

import "context"

// Transaction exposes the record operations a persistence implementation
// must support within an atomic scope. Every operation inside a transaction
// either commits as a whole or leaves the store untouched.
type Transaction interface {
	// GetClient retrieves a record by primary id.
	GetClient(id string) (Client, bool)
	// UpdateClient merges a field delta into the record with the given id
	// and returns the number of affected records (0 when id is absent).
	UpdateClient(id string, changes Changes) (int, error)
	// PutClient stores a full record, overwriting any existing one.
	PutClient(client Client) error
	// InsertClients adds a batch of new records.
	InsertClients(clients []Client) error
	// ListClients returns every record in unspecified order.
	ListClients() []Client
}

// TransactionView provides read-only access to a consistent snapshot.
type TransactionView interface {
	GetClient(id string) (Client, bool)
	ListClients() []Client
}

// ClientStore is the keyed-record store the mutation core runs against.
// Implementations must guarantee that RunInTransaction is atomic: when fn
// returns an error no change made inside it becomes visible.
type ClientStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) error
	View(ctx context.Context, fn func(TransactionView) error) error
	GetClient(id string) (Client, bool)
	ListClients() []Client
}

// StackStatus summarizes the undo/redo history of a mutation service.
type StackStatus struct {
	CanUndo   bool `json:"can_undo"`
	CanRedo   bool `json:"can_redo"`
	UndoCount int  `json:"undo_count"`
	RedoCount int  `json:"redo_count"`
}
