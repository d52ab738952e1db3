package pipeline

// HazardResult contains stall, flush and redirect control signals.
//
// Stall signals are named Stall{producer}{consumer}: Stall21 means the load
// in slot 2's execute stage blocks the instruction in slot 1's decode stage.
// Stall and flush signals are computed independently; a consumer that sees
// both in one cycle applies the flush first, since the flush discards the
// instruction that would have stalled.
type HazardResult struct {
	Stall11 bool
	Stall21 bool
	Stall12 bool
	Stall22 bool

	// FlushIFID1 flushes the fetch/decode latches of both lanes.
	FlushIFID1 bool
	// FlushEX flushes the execute latches of both lanes.
	FlushEX bool
	// FlushMEM2 additionally flushes slot 2's memory latch. Only a slot 1
	// misprediction reaches it.
	FlushMEM2 bool

	// CPCSignal1 and CPCSignal2 select the corrected PC in fetch.
	CPCSignal1 bool
	CPCSignal2 bool
}

// Stall returns the load-use stall signal for the producer/consumer pair.
func (r HazardResult) Stall(producer, consumer Slot) bool {
	switch {
	case producer == Slot1 && consumer == Slot1:
		return r.Stall11
	case producer == Slot2 && consumer == Slot1:
		return r.Stall21
	case producer == Slot1 && consumer == Slot2:
		return r.Stall12
	case producer == Slot2 && consumer == Slot2:
		return r.Stall22
	default:
		return false
	}
}

// StallsSlot reports whether any producer stalls the consumer slot.
func (r HazardResult) StallsSlot(consumer Slot) bool {
	return r.Stall(Slot1, consumer) || r.Stall(Slot2, consumer)
}

// AnyStall reports whether any stall signal is asserted.
func (r HazardResult) AnyStall() bool {
	return r.Stall11 || r.Stall21 || r.Stall12 || r.Stall22
}

// AnyFlush reports whether any flush signal is asserted.
func (r HazardResult) AnyFlush() bool {
	return r.FlushIFID1 || r.FlushEX || r.FlushMEM2
}

// UseCorrectedPC returns the corrected-PC select signal for slot s.
func (r HazardResult) UseCorrectedPC(s Slot) bool {
	switch s {
	case Slot1:
		return r.CPCSignal1
	case Slot2:
		return r.CPCSignal2
	default:
		return false
	}
}

// HazardUnit detects load-use hazards and branch mispredictions. It is
// stateless; every cycle is evaluated from that cycle's signals alone.
type HazardUnit struct{}

// NewHazardUnit creates a new hazard detection unit.
func NewHazardUnit() *HazardUnit {
	return &HazardUnit{}
}

// Detect computes all hazard signals for one cycle.
func (h *HazardUnit) Detect(in *CycleInputs) HazardResult {
	result := HazardResult{}

	s1 := in.Slot(Slot1)
	s2 := in.Slot(Slot2)

	// Slot 1 producers have priority; a slot 2 producer only raises its
	// signal when slot 1 is not already stalling the same consumer.
	result.Stall11 = h.DetectLoadUseHazard(&s1.Execute, s1.Decode)
	result.Stall12 = h.DetectLoadUseHazard(&s1.Execute, s2.Decode)
	result.Stall21 = !result.Stall11 && h.DetectLoadUseHazard(&s2.Execute, s1.Decode)
	result.Stall22 = !result.Stall12 && h.DetectLoadUseHazard(&s2.Execute, s2.Decode)

	mispredict1 := s1.Memory.Branch.Mispredicted()
	mispredict2 := s2.Memory.Branch.Mispredicted()

	// Both lanes are redirected together.
	if mispredict1 || mispredict2 {
		result.FlushIFID1 = true
		result.FlushEX = true
	}
	if mispredict1 {
		result.FlushMEM2 = true
	}

	result.CPCSignal1 = mispredict1
	result.CPCSignal2 = mispredict2

	return result
}

// DetectLoadUseHazard reports whether the load in ex must stall the
// instruction whose sources are in id. The loaded value isn't available
// until the memory stage, so forwarding cannot cover it.
func (h *HazardUnit) DetectLoadUseHazard(ex *ExecuteSignals, id DecodeSignals) bool {
	// Only load instructions cause load-use hazards
	if !ex.MemRead {
		return false
	}

	// Register 0 doesn't cause hazards
	if ex.WriteReg == ZeroReg {
		return false
	}

	return ex.WriteReg == id.Rs || ex.WriteReg == id.Rt
}
