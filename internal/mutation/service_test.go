package mutation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"caseboard/internal/eventbus"
	"caseboard/internal/infra/persistence/memory"
	"caseboard/pkg/domain"
)

func seedStore(t *testing.T, clients ...domain.Client) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	if len(clients) == 0 {
		return store
	}
	if err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.InsertClients(clients)
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return store
}

func TestApplyUndoRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t, domain.Client{Base: domain.Base{ID: "c1"}, Name: "A", Status: domain.StatusOpen})
	svc := NewService(store, nil)

	before := svc.Status()
	if _, err := svc.ApplyPatch(ctx, domain.NewPatch("c1", domain.Changes{
		domain.FieldName:   "B",
		domain.FieldStatus: domain.StatusInProgress,
	})); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if c, _ := store.GetClient("c1"); c.Name != "B" || c.Status != domain.StatusInProgress {
		t.Fatalf("patch not applied: %+v", c)
	}

	if _, err := svc.Undo(ctx); err != nil {
		t.Fatalf("undo: %v", err)
	}
	c, _ := store.GetClient("c1")
	if c.Name != "A" || c.Status != domain.StatusOpen {
		t.Fatalf("undo did not restore pre-patch values: %+v", c)
	}
	after := svc.Status()
	if after.UndoCount != before.UndoCount {
		t.Fatalf("undo count not restored: before %d, after %d", before.UndoCount, after.UndoCount)
	}
}

func TestUndoRedoSymmetry(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t, domain.Client{Base: domain.Base{ID: "c1"}, Name: "A"})
	svc := NewService(store, nil)

	if _, err := svc.ApplyPatch(ctx, domain.NewPatch("c1", domain.Changes{domain.FieldName: "B"})); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := svc.Undo(ctx); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if _, err := svc.Redo(ctx); err != nil {
		t.Fatalf("redo: %v", err)
	}
	if c, _ := store.GetClient("c1"); c.Name != "B" {
		t.Fatalf("redo did not reproduce post-patch value: %+v", c)
	}
	status := svc.Status()
	if !status.CanUndo || status.CanRedo {
		t.Fatalf("unexpected stack status after redo: %+v", status)
	}
}

func TestBoundedHistoryEvictsOldest(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t, domain.Client{Base: domain.Base{ID: "c1"}, Name: "v0"})
	svc := NewService(store, nil)

	for i := 1; i <= DefaultHistoryLimit+1; i++ {
		name := fmt.Sprintf("v%d", i)
		if _, err := svc.ApplyPatch(ctx, domain.NewPatch("c1", domain.Changes{domain.FieldName: name})); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}
	if got := svc.Status().UndoCount; got != DefaultHistoryLimit {
		t.Fatalf("undo depth = %d, want %d", got, DefaultHistoryLimit)
	}

	// Unwind the full stack: the oldest surviving entry restores v1, not
	// v0 — the very first inverse was evicted.
	for svc.Status().CanUndo {
		if _, err := svc.Undo(ctx); err != nil {
			t.Fatalf("undo: %v", err)
		}
	}
	if c, _ := store.GetClient("c1"); c.Name != "v1" {
		t.Fatalf("oldest entry not evicted: ended at %q, want v1", c.Name)
	}
}

func TestForwardMutationClearsRedo(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t, domain.Client{Base: domain.Base{ID: "c1"}, Name: "A"})
	svc := NewService(store, nil)

	mustApply := func(name string) {
		t.Helper()
		if _, err := svc.ApplyPatch(ctx, domain.NewPatch("c1", domain.Changes{domain.FieldName: name})); err != nil {
			t.Fatalf("apply %q: %v", name, err)
		}
	}
	mustApply("B")
	if _, err := svc.Undo(ctx); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if !svc.Status().CanRedo {
		t.Fatal("redo expected after undo")
	}

	mustApply("C")
	status := svc.Status()
	if status.CanRedo || status.RedoCount != 0 {
		t.Fatalf("forward mutation must clear redo: %+v", status)
	}
	if _, err := svc.Redo(ctx); !errors.Is(err, domain.ErrStackEmpty) {
		t.Fatalf("expected ErrStackEmpty, got %v", err)
	}
}

func TestEmptyPatchIsNoop(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t, domain.Client{Base: domain.Base{ID: "c1"}, Name: "A"})
	svc := NewService(store, nil)

	outcome, err := svc.ApplyPatch(ctx, domain.NewPatch("c1", nil))
	if err != nil {
		t.Fatalf("empty patch: %v", err)
	}
	if !outcome.NoOp {
		t.Fatal("empty patch should report NoOp")
	}
	if status := svc.Status(); status.UndoCount != 0 {
		t.Fatalf("empty patch must not touch stacks: %+v", status)
	}
}

func TestApplyMissingRecordFails(t *testing.T) {
	ctx := context.Background()
	svc := NewService(seedStore(t), nil)

	_, err := svc.ApplyPatch(ctx, domain.NewPatch("ghost", domain.Changes{domain.FieldName: "X"}))
	if !domain.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if status := svc.Status(); status.UndoCount != 0 {
		t.Fatalf("failed apply must not push history: %+v", status)
	}
}

func TestBatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t, domain.Client{Base: domain.Base{ID: "c1"}, Status: domain.StatusOpen})
	svc := NewService(store, nil)

	_, err := svc.ApplyPatches(ctx, []domain.Patch{
		domain.NewPatch("c1", domain.Changes{domain.FieldStatus: domain.ClientStatus("X")}),
		domain.NewPatch("missing", domain.Changes{domain.FieldStatus: domain.ClientStatus("X")}),
	})
	if !domain.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if c, _ := store.GetClient("c1"); c.Status != domain.StatusOpen {
		t.Fatalf("batch failure leaked a write: %+v", c)
	}
	if status := svc.Status(); status.UndoCount != 0 {
		t.Fatalf("batch failure must leave stacks unchanged: %+v", status)
	}
}

func TestBatchSuccessPushesInBatchOrder(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t,
		domain.Client{Base: domain.Base{ID: "c1"}, Name: "A"},
		domain.Client{Base: domain.Base{ID: "c2"}, Name: "B"},
	)
	bus := eventbus.New()
	var commits []eventbus.Event
	bus.Subscribe(func(ev eventbus.Event) { commits = append(commits, ev) })
	svc := NewService(store, bus)

	if _, err := svc.ApplyPatches(ctx, []domain.Patch{
		domain.NewPatch("c1", domain.Changes{domain.FieldName: "A2"}),
		domain.NewPatch("c2", domain.Changes{domain.FieldName: "B2"}),
	}); err != nil {
		t.Fatalf("batch: %v", err)
	}
	if got := svc.Status().UndoCount; got != 2 {
		t.Fatalf("undo depth = %d, want 2", got)
	}
	if len(commits) != 1 || commits[0].Kind != eventbus.KindCommit || len(commits[0].Patches) != 2 {
		t.Fatalf("expected one commit carrying the whole batch, got %+v", commits)
	}

	// Undo pops in reverse batch order: c2 first.
	if _, err := svc.Undo(ctx); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if c, _ := store.GetClient("c2"); c.Name != "B" {
		t.Fatalf("last batch entry should undo first: %+v", c)
	}
	if c, _ := store.GetClient("c1"); c.Name != "A2" {
		t.Fatalf("first batch entry undone too early: %+v", c)
	}
}

func TestTwoPatchScenario(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t, domain.Client{Base: domain.Base{ID: "c1"}, Name: "A", Status: domain.StatusOpen})
	svc := NewService(store, nil)

	if _, err := svc.ApplyPatch(ctx, domain.NewPatch("c1", domain.Changes{domain.FieldName: "B"})); err != nil {
		t.Fatalf("apply 1: %v", err)
	}
	if _, err := svc.ApplyPatch(ctx, domain.NewPatch("c1", domain.Changes{domain.FieldStatus: domain.ClientStatus("X")})); err != nil {
		t.Fatalf("apply 2: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := svc.Undo(ctx); err != nil {
			t.Fatalf("undo %d: %v", i, err)
		}
	}
	if c, _ := store.GetClient("c1"); c.Name != "A" || c.Status != domain.StatusOpen {
		t.Fatalf("two undos should restore the original: %+v", c)
	}

	for i := 0; i < 2; i++ {
		if _, err := svc.Redo(ctx); err != nil {
			t.Fatalf("redo %d: %v", i, err)
		}
	}
	if c, _ := store.GetClient("c1"); c.Name != "B" || c.Status != domain.ClientStatus("X") {
		t.Fatalf("two redos should restore both patches: %+v", c)
	}
}

func TestUndoEmptyStack(t *testing.T) {
	svc := NewService(seedStore(t), nil)
	if _, err := svc.Undo(context.Background()); !errors.Is(err, domain.ErrStackEmpty) {
		t.Fatalf("expected ErrStackEmpty, got %v", err)
	}
}

func TestUndoVanishedRecordDropsEntry(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t, domain.Client{Base: domain.Base{ID: "c1"}, Name: "A"})
	svc := NewService(store, nil)

	if _, err := svc.ApplyPatch(ctx, domain.NewPatch("c1", domain.Changes{domain.FieldName: "B"})); err != nil {
		t.Fatalf("apply: %v", err)
	}
	// Wipe the record out from underneath the history.
	store.ImportState(memory.Snapshot{})

	if _, err := svc.Undo(ctx); !domain.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	// The entry's target no longer exists; the entry is not restored.
	if svc.Status().CanUndo {
		t.Fatal("entry for vanished record must be discarded")
	}
}

func TestClearHistory(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t, domain.Client{Base: domain.Base{ID: "c1"}, Name: "A"})
	svc := NewService(store, nil)

	if _, err := svc.ApplyPatch(ctx, domain.NewPatch("c1", domain.Changes{domain.FieldName: "B"})); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := svc.Undo(ctx); err != nil {
		t.Fatalf("undo: %v", err)
	}
	svc.ClearHistory()
	status := svc.Status()
	if status.CanUndo || status.CanRedo || status.UndoCount != 0 || status.RedoCount != 0 {
		t.Fatalf("clear left history behind: %+v", status)
	}
}

func TestCustomHistoryLimit(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t, domain.Client{Base: domain.Base{ID: "c1"}, Name: "v0"})
	svc := NewService(store, nil, WithHistoryLimit(3))

	for i := 1; i <= 5; i++ {
		if _, err := svc.ApplyPatch(ctx, domain.NewPatch("c1", domain.Changes{domain.FieldName: fmt.Sprintf("v%d", i)})); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}
	if got := svc.Status().UndoCount; got != 3 {
		t.Fatalf("undo depth = %d, want 3", got)
	}
}
