package overlay

import (
	"testing"

	"caseboard/internal/eventbus"
	"caseboard/pkg/domain"
)

func TestApplyMergesEntriesLastWriteWins(t *testing.T) {
	o := New(nil)
	o.Apply([]domain.Patch{
		domain.NewPatch("c1", domain.Changes{domain.FieldName: "A", domain.FieldStatus: domain.StatusOpen}),
	})
	o.Apply([]domain.Patch{
		domain.NewPatch("c1", domain.Changes{domain.FieldName: "B"}),
	})

	entry, ok := o.Entry("c1")
	if !ok {
		t.Fatal("entry missing")
	}
	if entry[domain.FieldName] != "B" {
		t.Fatalf("later apply should win: %v", entry[domain.FieldName])
	}
	if entry[domain.FieldStatus] != domain.StatusOpen {
		t.Fatalf("earlier field lost: %v", entry[domain.FieldStatus])
	}
}

func TestIDNormalizationAcrossRepresentations(t *testing.T) {
	o := New(nil)
	// Patch built with a numeric id must be found when the base snapshot
	// spells the id as a string.
	o.Apply([]domain.Patch{domain.NewPatch(" 42 ", domain.Changes{domain.FieldName: "X"})})
	if _, ok := o.Entry("42"); !ok {
		t.Fatal("normalized lookup failed")
	}
	merged := o.MergedView([]domain.Client{{Base: domain.Base{ID: "42"}, Name: "orig"}})
	if merged[0].Name != "X" {
		t.Fatalf("overlay not applied across id representations: %+v", merged[0])
	}
}

func TestReconcileDropsConfirmedEntries(t *testing.T) {
	o := New(nil)
	o.Apply([]domain.Patch{
		domain.NewPatch("c1", domain.Changes{domain.FieldStatus: domain.StatusInProgress}),
	})

	// Base not yet caught up: entry stays.
	o.Reconcile([]domain.Client{{Base: domain.Base{ID: "c1"}, Status: domain.StatusOpen}})
	if o.Len() != 1 {
		t.Fatal("entry dropped before base caught up")
	}

	// Base re-read now reflects the change: entry retires.
	base := []domain.Client{{Base: domain.Base{ID: "c1"}, Status: domain.StatusInProgress}}
	merged := o.MergedView(base)
	if o.Len() != 0 {
		t.Fatalf("overlay should be empty after reconciliation, has %d", o.Len())
	}
	if merged[0].Status != domain.StatusInProgress {
		t.Fatalf("merged view wrong: %+v", merged[0])
	}
}

func TestReconcileKeepsEntryForMissingBaseRecord(t *testing.T) {
	o := New(nil)
	o.Apply([]domain.Patch{domain.NewPatch("ghost", domain.Changes{domain.FieldName: "X"})})
	o.Reconcile([]domain.Client{{Base: domain.Base{ID: "other"}}})
	if o.Len() != 1 {
		t.Fatal("entry for record absent from base must survive reconciliation")
	}
}

func TestBusSignals(t *testing.T) {
	bus := eventbus.New()
	o := New(bus)
	defer o.Close()

	bus.Publish(eventbus.Event{Kind: eventbus.KindApply, Patches: []domain.Patch{
		domain.NewPatch("c1", domain.Changes{domain.FieldName: "B"}),
	}})
	if o.Len() != 1 {
		t.Fatal("apply signal not consumed")
	}

	rev := o.Revision()
	bus.Publish(eventbus.Event{Kind: eventbus.KindCommit, Patches: nil})
	if o.Len() != 1 {
		t.Fatal("commit must not remove entries by itself")
	}
	if o.Revision() == rev {
		t.Fatal("commit must retrigger view derivation")
	}

	bus.Publish(eventbus.Event{Kind: eventbus.KindClear})
	if o.Len() != 0 {
		t.Fatal("clear signal must empty the overlay")
	}
}

func TestMergedViewPassesThroughUntouchedRecords(t *testing.T) {
	o := New(nil)
	o.Apply([]domain.Patch{domain.NewPatch("c1", domain.Changes{domain.FieldName: "B"})})
	base := []domain.Client{
		{Base: domain.Base{ID: "c1"}, Name: "A"},
		{Base: domain.Base{ID: "c2"}, Name: "C"},
	}
	merged := o.MergedView(base)
	if merged[0].Name != "B" {
		t.Fatalf("overlay field not applied: %+v", merged[0])
	}
	if merged[1].Name != "C" {
		t.Fatalf("untouched record modified: %+v", merged[1])
	}
}
