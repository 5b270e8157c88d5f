package memory

import (
	"context"
	"errors"
	"testing"

	"caseboard/pkg/domain"
)

func TestTransactionCommitAndRollback(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.PutClient(domain.Client{Base: domain.Base{ID: "c1"}, Name: "A", Status: domain.StatusOpen})
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, ok := store.GetClient("c1"); !ok {
		t.Fatal("committed record missing")
	}

	boom := errors.New("boom")
	err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.UpdateClient("c1", domain.Changes{domain.FieldName: "B"}); err != nil {
			return err
		}
		if err := tx.PutClient(domain.Client{Base: domain.Base{ID: "c2"}}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected rollback error, got %v", err)
	}
	if c, _ := store.GetClient("c1"); c.Name != "A" {
		t.Fatalf("rolled-back update visible: %+v", c)
	}
	if _, ok := store.GetClient("c2"); ok {
		t.Fatal("rolled-back insert visible")
	}
}

func TestUpdateClientAffectedCount(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	if err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.PutClient(domain.Client{Base: domain.Base{ID: "c1"}, Name: "A"}); err != nil {
			return err
		}
		n, err := tx.UpdateClient("c1", domain.Changes{domain.FieldName: "B"})
		if err != nil {
			return err
		}
		if n != 1 {
			t.Errorf("existing record: affected = %d, want 1", n)
		}
		n, err = tx.UpdateClient("missing", domain.Changes{domain.FieldName: "B"})
		if err != nil {
			return err
		}
		if n != 0 {
			t.Errorf("missing record: affected = %d, want 0", n)
		}
		return nil
	}); err != nil {
		t.Fatalf("tx: %v", err)
	}
}

func TestInsertClientsRejectsDuplicates(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.InsertClients([]domain.Client{{Base: domain.Base{ID: "c1"}}}); err != nil {
			return err
		}
		return tx.InsertClients([]domain.Client{{Base: domain.Base{ID: "c1"}}})
	})
	if !domain.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	// Whole transaction aborted, including the first insert.
	if _, ok := store.GetClient("c1"); ok {
		t.Fatal("aborted insert visible")
	}
}

func TestClonedReadsDoNotAliasState(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	if err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.PutClient(domain.Client{Base: domain.Base{ID: "c1"}, Tags: []string{"a"}})
	}); err != nil {
		t.Fatalf("put: %v", err)
	}

	c, _ := store.GetClient("c1")
	c.Tags[0] = "mutated"
	again, _ := store.GetClient("c1")
	if again.Tags[0] != "a" {
		t.Fatal("store state aliased by returned record")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	if err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.InsertClients([]domain.Client{
			{Base: domain.Base{ID: "c1"}, Name: "A"},
			{Base: domain.Base{ID: "c2"}, Name: "B"},
		})
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	restored := NewStore()
	restored.ImportState(store.ExportState())
	if got := len(restored.ListClients()); got != 2 {
		t.Fatalf("restored %d records, want 2", got)
	}
	if c, _ := restored.GetClient("c2"); c.Name != "B" {
		t.Fatalf("restored record wrong: %+v", c)
	}
}
