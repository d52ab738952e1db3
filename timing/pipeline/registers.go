// Package pipeline provides the speculative-execution control plane of a
// dual-issue, 5-stage pipeline: branch prediction, hazard detection,
// forwarding and PC correction for two instruction slots per cycle.
package pipeline

// NumRegisters is the number of architectural registers. Register 0 is
// hardwired to zero and is never a true destination.
const NumRegisters = 32

// ZeroReg is the hardwired-zero register.
const ZeroReg uint8 = 0

// Slot identifies one of the two static pipeline lanes.
type Slot int

const (
	// Slot1 is the first (older, higher-priority) lane.
	Slot1 Slot = iota
	// Slot2 is the second lane.
	Slot2
)

// NumSlots is the issue width of the pipeline.
const NumSlots = 2

// Other returns the opposite lane.
func (s Slot) Other() Slot {
	if s == Slot1 {
		return Slot2
	}
	return Slot1
}

// Valid reports whether s names one of the two lanes.
func (s Slot) Valid() bool {
	return s == Slot1 || s == Slot2
}

// String returns "1" or "2", matching the signal naming (Stall12, ForwardA2).
func (s Slot) String() string {
	switch s {
	case Slot1:
		return "1"
	case Slot2:
		return "2"
	default:
		return "?"
	}
}

// FetchSignals holds the fetch-stage state of one slot.
type FetchSignals struct {
	// PC is the fetch address of the instruction in this slot.
	PC uint64 `yaml:"pc"`
}

// DecodeSignals holds the decode-stage source registers of one slot.
type DecodeSignals struct {
	Rs uint8 `yaml:"rs"`
	Rt uint8 `yaml:"rt"`
}

// ExecuteSignals holds the execute-stage state of one slot.
type ExecuteSignals struct {
	// Source registers read by the instruction in execute.
	Rs uint8 `yaml:"rs"`
	Rt uint8 `yaml:"rt"`

	// WriteReg is the destination register number.
	WriteReg uint8 `yaml:"write_reg"`

	// Control signals.
	RegWrite bool `yaml:"reg_write"`
	MemRead  bool `yaml:"mem_read"`
}

// BranchOutcome carries a branch's resolution facts from the memory stage.
type BranchOutcome struct {
	// IsBranch is set when the instruction is a conditional branch.
	IsBranch bool `yaml:"is_branch"`

	// Predicted is the prediction bit carried down from fetch.
	Predicted bool `yaml:"predicted"`

	// Taken is the actual outcome.
	Taken bool `yaml:"taken"`

	// PC is the fetch address of the branch.
	PC uint64 `yaml:"pc"`

	// PCPlus is the fall-through address.
	PCPlus uint64 `yaml:"pc_plus"`

	// Target is the recomputed branch-target address.
	Target uint64 `yaml:"target"`
}

// Mispredicted reports whether the prediction disagreed with the outcome.
func (b BranchOutcome) Mispredicted() bool {
	return b.IsBranch && b.Predicted != b.Taken
}

// MemorySignals holds the memory-stage state of one slot.
type MemorySignals struct {
	// Source registers of the instruction in memory, used by the early
	// branch-condition path.
	Rs uint8 `yaml:"rs"`
	Rt uint8 `yaml:"rt"`

	WriteReg uint8 `yaml:"write_reg"`
	RegWrite bool  `yaml:"reg_write"`

	Branch BranchOutcome `yaml:"branch"`
}

// WritebackSignals holds the writeback-stage state of one slot.
type WritebackSignals struct {
	WriteReg uint8 `yaml:"write_reg"`
	RegWrite bool  `yaml:"reg_write"`
}

// SlotSignals is one lane's view of all five stages in a cycle.
type SlotSignals struct {
	Fetch     FetchSignals     `yaml:"fetch"`
	Decode    DecodeSignals    `yaml:"decode"`
	Execute   ExecuteSignals   `yaml:"execute"`
	Memory    MemorySignals    `yaml:"memory"`
	Writeback WritebackSignals `yaml:"writeback"`
}

// CycleInputs is the snapshot of pipeline signals the control plane sees at
// the start of a cycle.
type CycleInputs struct {
	Slots [NumSlots]SlotSignals
}

// Slot returns the signals of lane s.
func (in *CycleInputs) Slot(s Slot) *SlotSignals {
	return &in.Slots[s]
}

// Resolutions returns the resolution events carried by the memory stage of
// both lanes, in slot order.
func (in *CycleInputs) Resolutions() []Resolution {
	var events []Resolution
	for s := Slot1; s <= Slot2; s++ {
		b := in.Slots[s].Memory.Branch
		if !b.IsBranch {
			continue
		}
		events = append(events, Resolution{
			Slot:   s,
			PC:     b.PC,
			Taken:  b.Taken,
			Target: b.Target,
		})
	}
	return events
}

// Clear resets all signals to zero.
func (in *CycleInputs) Clear() {
	*in = CycleInputs{}
}

// CycleOutputs is everything the control plane drives in one cycle.
type CycleOutputs struct {
	// Predictions for the instructions being fetched in each slot.
	Predictions [NumSlots]Prediction

	// Hazards holds stall, flush and use-corrected-PC signals.
	Hazards HazardResult

	// Forwarding holds the operand selectors for execute and the early
	// branch path.
	Forwarding ForwardingResult

	// CorrectedPC is the replacement fetch address per slot. Fetch uses it
	// only when Hazards.UseCorrectedPC(slot) is set.
	CorrectedPC [NumSlots]uint64
}
