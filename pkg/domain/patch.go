package domain

// Patch is a requested field-level delta for one client record. The
// constructor copies the supplied delta, so mutating the source map after
// building does not affect the patch.
type Patch struct {
	ID      string  `json:"id"`
	Changes Changes `json:"changes"`
}

// NewPatch builds a patch for the given record id.
func NewPatch(id string, changes Changes) Patch {
	return Patch{ID: id, Changes: changes.Clone()}
}

// IsEmpty reports whether the patch carries no field changes.
func (p Patch) IsEmpty() bool {
	return len(p.Changes) == 0
}

// MergePatches folds several patches for the same record into one, later
// patches winning field-wise. At least one patch is required, and all
// patches must share the same id.
func MergePatches(patches ...Patch) (Patch, error) {
	if len(patches) == 0 {
		return Patch{}, ErrNoPatches
	}
	id := patches[0].ID
	merged := make(Changes)
	for _, p := range patches {
		if p.ID != id {
			return Patch{}, IDMismatchError{Want: id, Got: p.ID}
		}
		for f, v := range p.Changes {
			merged[f] = v
		}
	}
	return Patch{ID: id, Changes: merged}, nil
}

// InversePatch holds the pre-mutation values of exactly the fields a forward
// patch touched. Applying it restores the record to its prior state for
// those fields. Structurally a Patch; the alias names the intent.
type InversePatch = Patch
