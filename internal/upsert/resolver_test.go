package upsert

import (
	"testing"

	"caseboard/pkg/domain"
)

func TestDecideTieBreak(t *testing.T) {
	cases := []struct {
		name string
		in   Outcome
		want Decision
	}{
		{"direct hit wins over candidates", Outcome{UpdateCount: 1, CandidatesFound: 5}, DecisionUpdate},
		{"no hit no candidates inserts", Outcome{}, DecisionInsert},
		{"candidates after direct miss", Outcome{UpdateCount: 0, CandidatesFound: 2}, DecisionUpdateViaCandidate},
		{"multiple direct hits still update", Outcome{UpdateCount: 3}, DecisionUpdate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Decide(tc.in); got != tc.want {
				t.Fatalf("Decide(%+v) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeID(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"", ""},
		{"  c1  ", "c1"},
		{42, "42"},
		{int64(42), "42"},
		{float64(42), "42"},
		{float64(42.5), "42.5"},
		{"42", "42"},
	}
	for _, tc := range cases {
		if got := NormalizeID(tc.in); got != tc.want {
			t.Fatalf("NormalizeID(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMatchesAlternateID(t *testing.T) {
	c := domain.Client{
		Base:         domain.Base{ID: "phys-9"},
		ClientNumber: "1001",
		UUID:         "be4f12aa-0000-4000-8000-000000000001",
		ExternalRef:  "AMS-778",
	}
	fields := DefaultAlternateFields()

	if !MatchesAlternateID(c, "1001", fields) {
		t.Fatal("client number should match")
	}
	if !MatchesAlternateID(c, 1001, fields) {
		t.Fatal("numeric representation of client number should match")
	}
	if !MatchesAlternateID(c, " AMS-778 ", fields) {
		t.Fatal("trimmed external ref should match")
	}
	if MatchesAlternateID(c, "nope", fields) {
		t.Fatal("unrelated id must not match")
	}
	if MatchesAlternateID(c, "", fields) {
		t.Fatal("empty target must never match")
	}
}

func TestFindCandidatesPreservesOrder(t *testing.T) {
	records := []domain.Client{
		{Base: domain.Base{ID: "a"}, ClientNumber: "7"},
		{Base: domain.Base{ID: "b"}, ExternalRef: "x"},
		{Base: domain.Base{ID: "c"}, UUID: "7"},
		{Base: domain.Base{ID: "d"}, ClientNumber: "7"},
	}
	got := FindCandidates(records, 7, nil)
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	order := []string{got[0].ID, got[1].ID, got[2].ID}
	want := []string{"a", "c", "d"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("candidate order = %v, want %v", order, want)
		}
	}
}
