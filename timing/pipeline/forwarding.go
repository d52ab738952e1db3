package pipeline

import "fmt"

// ForwardSource indicates where a forwarded value should come from.
// The numeric values are the operand multiplexer select codes.
type ForwardSource uint8

const (
	// ForwardNone means no forwarding needed - use register file value.
	ForwardNone ForwardSource = iota
	// ForwardMemOwn forwards from this lane's memory stage.
	ForwardMemOwn
	// ForwardMemOther forwards from the other lane's memory stage.
	ForwardMemOther
	// ForwardWritebackOwn forwards from this lane's writeback stage.
	ForwardWritebackOwn
	// ForwardWritebackOther forwards from the other lane's writeback stage.
	ForwardWritebackOther
)

func (f ForwardSource) String() string {
	switch f {
	case ForwardNone:
		return "none"
	case ForwardMemOwn:
		return "mem-own"
	case ForwardMemOther:
		return "mem-other"
	case ForwardWritebackOwn:
		return "wb-own"
	case ForwardWritebackOther:
		return "wb-other"
	default:
		return fmt.Sprintf("forward(%d)", uint8(f))
	}
}

// ForwardingResult contains the forwarding decisions for one cycle.
type ForwardingResult struct {
	// Execute-stage operand selectors, A = rs and B = rt, per slot.
	ForwardA1 ForwardSource
	ForwardB1 ForwardSource
	ForwardA2 ForwardSource
	ForwardB2 ForwardSource

	// ForwardBranchA and ForwardBranchB route slot 1's memory-stage result
	// into the rs/rt operands of a branch in slot 2's memory stage.
	ForwardBranchA bool
	ForwardBranchB bool
}

// Operands returns the A and B selectors of slot s.
func (r ForwardingResult) Operands(s Slot) (a, b ForwardSource) {
	if s == Slot2 {
		return r.ForwardA2, r.ForwardB2
	}
	return r.ForwardA1, r.ForwardB1
}

// producer is a stage that may write a register.
type producer struct {
	writeReg uint8
	regWrite bool
}

// writes reports whether the producer supplies reg. A write to register 0
// never satisfies a match.
func (p producer) writes(reg uint8) bool {
	return p.regWrite && p.writeReg != ZeroReg && p.writeReg == reg
}

// forwardCandidate pairs a producer with the selector it yields. An
// other-lane candidate is blocked when this lane's stage at the same depth
// names the same destination, whether or not that stage writes.
type forwardCandidate struct {
	source    ForwardSource
	producer  producer
	blocked   bool
	blockedBy uint8
}

// ForwardingUnit selects operand sources for the execute stage of both
// lanes. It is stateless.
type ForwardingUnit struct{}

// NewForwardingUnit creates a new forwarding unit.
func NewForwardingUnit() *ForwardingUnit {
	return &ForwardingUnit{}
}

// Detect computes all forwarding selectors for one cycle.
func (f *ForwardingUnit) Detect(in *CycleInputs) ForwardingResult {
	result := ForwardingResult{}

	c1 := f.candidates(in, Slot1)
	c2 := f.candidates(in, Slot2)

	ex1 := in.Slot(Slot1).Execute
	ex2 := in.Slot(Slot2).Execute

	result.ForwardA1 = selectForward(ex1.Rs, c1)
	result.ForwardB1 = selectForward(ex1.Rt, c1)
	result.ForwardA2 = selectForward(ex2.Rs, c2)
	result.ForwardB2 = selectForward(ex2.Rt, c2)

	result.ForwardBranchA, result.ForwardBranchB = f.DetectBranchForwarding(in)

	return result
}

// candidates lists the producers visible to lane s in priority order:
// memory own, memory other, writeback own, writeback other.
func (f *ForwardingUnit) candidates(in *CycleInputs, s Slot) [4]forwardCandidate {
	own := in.Slot(s)
	other := in.Slot(s.Other())

	return [4]forwardCandidate{
		{
			source:   ForwardMemOwn,
			producer: producer{own.Memory.WriteReg, own.Memory.RegWrite},
		},
		{
			source:    ForwardMemOther,
			producer:  producer{other.Memory.WriteReg, other.Memory.RegWrite},
			blocked:   true,
			blockedBy: own.Memory.WriteReg,
		},
		{
			source:   ForwardWritebackOwn,
			producer: producer{own.Writeback.WriteReg, own.Writeback.RegWrite},
		},
		{
			source:    ForwardWritebackOther,
			producer:  producer{other.Writeback.WriteReg, other.Writeback.RegWrite},
			blocked:   true,
			blockedBy: own.Writeback.WriteReg,
		},
	}
}

// selectForward walks the candidates in priority order. The first one that
// writes reg decides: its source, or the register file if it is blocked.
// A later candidate is never reached once an earlier one matched, so a
// stale value cannot overtake a fresher one for the same register.
func selectForward(reg uint8, candidates [4]forwardCandidate) ForwardSource {
	for _, c := range candidates {
		if !c.producer.writes(reg) {
			continue
		}
		if c.blocked && c.blockedBy == reg {
			return ForwardNone
		}
		return c.source
	}
	return ForwardNone
}

// DetectBranchForwarding checks the early branch-condition path: a branch
// in slot 2's memory stage that reads the register slot 1's memory stage is
// writing in the same cycle.
func (f *ForwardingUnit) DetectBranchForwarding(in *CycleInputs) (a, b bool) {
	m1 := in.Slot(Slot1).Memory
	m2 := in.Slot(Slot2).Memory

	if !m2.Branch.IsBranch {
		return false, false
	}

	p := producer{m1.WriteReg, m1.RegWrite}
	return p.writes(m2.Rs), p.writes(m2.Rt)
}

// OperandSources holds the candidate values for one operand multiplexer.
type OperandSources struct {
	RegFile        uint64
	MemOwn         uint64
	MemOther       uint64
	WritebackOwn   uint64
	WritebackOther uint64
}

// SelectOperand returns the value chosen by sel. Undefined select codes
// drive zero.
func SelectOperand(sel ForwardSource, src OperandSources) uint64 {
	switch sel {
	case ForwardNone:
		return src.RegFile
	case ForwardMemOwn:
		return src.MemOwn
	case ForwardMemOther:
		return src.MemOther
	case ForwardWritebackOwn:
		return src.WritebackOwn
	case ForwardWritebackOther:
		return src.WritebackOther
	default:
		return 0
	}
}
