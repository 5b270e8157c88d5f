package eventbus

import (
	"encoding/json"
	"testing"

	"caseboard/pkg/domain"
)

func TestSubscribePublishUnsubscribe(t *testing.T) {
	bus := New()
	var got []Event
	unsubscribe := bus.Subscribe(func(ev Event) { got = append(got, ev) })

	patch := domain.NewPatch("c1", domain.Changes{domain.FieldStatus: domain.StatusInProgress})
	bus.Publish(Event{Kind: KindApply, Patches: []domain.Patch{patch}})
	bus.Publish(Event{Kind: KindClear})

	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Kind != KindApply || len(got[0].Patches) != 1 {
		t.Fatalf("unexpected first event: %+v", got[0])
	}
	if got[1].Kind != KindClear {
		t.Fatalf("unexpected second event: %+v", got[1])
	}

	unsubscribe()
	bus.Publish(Event{Kind: KindCommit})
	if len(got) != 2 {
		t.Fatalf("handler received event after unsubscribe")
	}
}

func TestPublishSurvivesPanickingHandler(t *testing.T) {
	bus := New()
	bus.Subscribe(func(Event) { panic("boom") })
	delivered := false
	bus.Subscribe(func(Event) { delivered = true })

	bus.Publish(Event{Kind: KindCommit})
	if !delivered {
		t.Fatal("second handler not reached after panic in first")
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env := Envelope{
		Origin: "instance-a",
		Kind:   KindApply,
		Patches: []domain.Patch{
			domain.NewPatch("c1", domain.Changes{domain.FieldName: "B"}),
		},
	}
	payload, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Envelope
	if err := json.Unmarshal(payload, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Origin != env.Origin || back.Kind != env.Kind || len(back.Patches) != 1 {
		t.Fatalf("round trip mismatch: %+v", back)
	}
	if back.Patches[0].ID != "c1" {
		t.Fatalf("patch id lost: %+v", back.Patches[0])
	}
}
