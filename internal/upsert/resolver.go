// Package upsert decides how an attempted record write lands: as a direct
// update, as an update routed through an alternate-key candidate, or as an
// insert. Identifiers reach the board from several sources (UI-generated
// keys, imported external reference numbers, legacy numeric keys) and are
// not guaranteed to agree in type or in which field carries the canonical
// key, so the tolerance lives here, isolated from any I/O.
package upsert

import (
	"fmt"
	"strconv"
	"strings"

	"caseboard/pkg/domain"
)

// Decision names the outcome of an upsert attempt.
type Decision string

const (
	// DecisionUpdate means the direct-key update already succeeded.
	DecisionUpdate Decision = "update"
	// DecisionUpdateViaCandidate means an alternate-key match should be
	// updated instead.
	DecisionUpdateViaCandidate Decision = "updateViaCandidate"
	// DecisionInsert means no existing record matched and a new one is
	// created.
	DecisionInsert Decision = "insert"
)

// Outcome carries the inputs of a single upsert decision: the affected-row
// count of the direct-key update and the number of alternate-key candidates
// found.
type Outcome struct {
	UpdateCount     int
	CandidatesFound int
}

// Decide resolves an upsert attempt. A direct-key hit always wins, even when
// alternate-key candidates also exist; candidate matching is a fallback
// tried only after a direct miss.
func Decide(o Outcome) Decision {
	switch {
	case o.UpdateCount > 0:
		return DecisionUpdate
	case o.CandidatesFound > 0:
		return DecisionUpdateViaCandidate
	default:
		return DecisionInsert
	}
}

// DefaultAlternateFields are the secondary identifier fields consulted when
// a direct-key update misses.
func DefaultAlternateFields() []domain.Field {
	return []domain.Field{domain.FieldClientNumber, domain.FieldUUID, domain.FieldExternalRef}
}

// NormalizeID converts any identifier representation to its canonical
// trimmed string form. Nil normalizes to the empty string. Integral floats
// (the usual shape of JSON numbers) render without a decimal point so that
// a numeric key matches its string spelling.
func NormalizeID(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

// MatchesAlternateID reports whether any of the candidate's alternate
// identifier fields normalizes to the same string as the target id. An
// empty target never matches.
func MatchesAlternateID(candidate domain.Client, targetID any, fields []domain.Field) bool {
	target := NormalizeID(targetID)
	if target == "" {
		return false
	}
	for _, f := range fields {
		v, err := candidate.Value(f)
		if err != nil {
			continue
		}
		if NormalizeID(v) == target {
			return true
		}
	}
	return false
}

// FindCandidates scans records in order and returns every alternate-key
// match, preserving input order. No deduplication or ranking is applied;
// callers that need a single candidate take the first.
func FindCandidates(records []domain.Client, targetID any, fields []domain.Field) []domain.Client {
	if len(fields) == 0 {
		fields = DefaultAlternateFields()
	}
	var out []domain.Client
	for _, r := range records {
		if MatchesAlternateID(r, targetID, fields) {
			out = append(out, r)
		}
	}
	return out
}
