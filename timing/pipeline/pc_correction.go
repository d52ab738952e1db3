package pipeline

// PCCorrectionUnit computes the replacement fetch address for a slot whose
// branch was mispredicted.
type PCCorrectionUnit struct{}

// NewPCCorrectionUnit creates a new PC correction unit.
func NewPCCorrectionUnit() *PCCorrectionUnit {
	return &PCCorrectionUnit{}
}

// CorrectedPC returns the branch target when the branch was taken but
// predicted not taken, and the fall-through address otherwise. A branch
// predicted taken but not taken recovers to the fall-through address; for a
// correct prediction the value is ignored by fetch.
func (u *PCCorrectionUnit) CorrectedPC(predicted, taken bool, pcPlus, branchTarget uint64) uint64 {
	if taken && !predicted {
		return branchTarget
	}
	return pcPlus
}

// Correct computes the corrected PC of both slots from their memory-stage
// branch outcomes.
func (u *PCCorrectionUnit) Correct(in *CycleInputs) [NumSlots]uint64 {
	var pcs [NumSlots]uint64
	for s := Slot1; s <= Slot2; s++ {
		b := in.Slot(s).Memory.Branch
		pcs[s] = u.CorrectedPC(b.Predicted, b.Taken, b.PCPlus, b.Target)
	}
	return pcs
}
