package scenario

import (
	"fmt"

	"github.com/sarchlab/dualsim/timing/pipeline"
)

// Expect lists expected control-plane outputs for a cycle. Nil fields are
// not checked.
type Expect struct {
	Predict1Taken  *bool   `yaml:"predict1_taken"`
	Predict2Taken  *bool   `yaml:"predict2_taken"`
	Predict1Target *uint64 `yaml:"predict1_target"`
	Predict2Target *uint64 `yaml:"predict2_target"`

	Stall11 *bool `yaml:"stall11"`
	Stall21 *bool `yaml:"stall21"`
	Stall12 *bool `yaml:"stall12"`
	Stall22 *bool `yaml:"stall22"`

	FlushIFID1 *bool `yaml:"flush_ifid1"`
	FlushEX    *bool `yaml:"flush_ex"`
	FlushMEM2  *bool `yaml:"flush_mem2"`

	CPCSignal1   *bool   `yaml:"cpc_signal1"`
	CPCSignal2   *bool   `yaml:"cpc_signal2"`
	CorrectedPC1 *uint64 `yaml:"corrected_pc1"`
	CorrectedPC2 *uint64 `yaml:"corrected_pc2"`

	ForwardA1      *uint8 `yaml:"forward_a1"`
	ForwardB1      *uint8 `yaml:"forward_b1"`
	ForwardA2      *uint8 `yaml:"forward_a2"`
	ForwardB2      *uint8 `yaml:"forward_b2"`
	ForwardBranchA *bool  `yaml:"forward_branch_a"`
	ForwardBranchB *bool  `yaml:"forward_branch_b"`
}

// Mismatch is one expected output that disagreed with the control plane.
type Mismatch struct {
	Cycle  uint64
	Signal string
	Want   string
	Got    string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("cycle %d: %s = %s, want %s", m.Cycle, m.Signal, m.Got, m.Want)
}

type checker struct {
	cycle      uint64
	mismatches []Mismatch
}

func (c *checker) checkBool(name string, want *bool, got bool) {
	if want != nil && *want != got {
		c.add(name, *want, got)
	}
}

func (c *checker) checkUint64(name string, want *uint64, got uint64) {
	if want != nil && *want != got {
		c.add(name, *want, got)
	}
}

func (c *checker) checkForward(name string, want *uint8, got pipeline.ForwardSource) {
	if want != nil && pipeline.ForwardSource(*want) != got {
		c.add(name, uint8(*want), uint8(got))
	}
}

func (c *checker) add(name string, want, got interface{}) {
	c.mismatches = append(c.mismatches, Mismatch{
		Cycle:  c.cycle,
		Signal: name,
		Want:   fmt.Sprint(want),
		Got:    fmt.Sprint(got),
	})
}

// Check compares the outputs of one cycle against the expectation.
func (e *Expect) Check(cycle uint64, out *pipeline.CycleOutputs) []Mismatch {
	if e == nil {
		return nil
	}

	c := &checker{cycle: cycle}
	p1 := out.Predictions[pipeline.Slot1]
	p2 := out.Predictions[pipeline.Slot2]
	h := out.Hazards
	f := out.Forwarding

	c.checkBool("predict1_taken", e.Predict1Taken, p1.Taken)
	c.checkBool("predict2_taken", e.Predict2Taken, p2.Taken)
	c.checkUint64("predict1_target", e.Predict1Target, p1.Target)
	c.checkUint64("predict2_target", e.Predict2Target, p2.Target)

	c.checkBool("stall11", e.Stall11, h.Stall11)
	c.checkBool("stall21", e.Stall21, h.Stall21)
	c.checkBool("stall12", e.Stall12, h.Stall12)
	c.checkBool("stall22", e.Stall22, h.Stall22)

	c.checkBool("flush_ifid1", e.FlushIFID1, h.FlushIFID1)
	c.checkBool("flush_ex", e.FlushEX, h.FlushEX)
	c.checkBool("flush_mem2", e.FlushMEM2, h.FlushMEM2)

	c.checkBool("cpc_signal1", e.CPCSignal1, h.CPCSignal1)
	c.checkBool("cpc_signal2", e.CPCSignal2, h.CPCSignal2)
	c.checkUint64("corrected_pc1", e.CorrectedPC1, out.CorrectedPC[pipeline.Slot1])
	c.checkUint64("corrected_pc2", e.CorrectedPC2, out.CorrectedPC[pipeline.Slot2])

	c.checkForward("forward_a1", e.ForwardA1, f.ForwardA1)
	c.checkForward("forward_b1", e.ForwardB1, f.ForwardB1)
	c.checkForward("forward_a2", e.ForwardA2, f.ForwardA2)
	c.checkForward("forward_b2", e.ForwardB2, f.ForwardB2)
	c.checkBool("forward_branch_a", e.ForwardBranchA, f.ForwardBranchA)
	c.checkBool("forward_branch_b", e.ForwardBranchB, f.ForwardBranchB)

	return c.mismatches
}
