package pipeline

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Statistics holds control-plane statistics.
type Statistics struct {
	// Cycles is the total number of cycles evaluated.
	Cycles uint64
	// Stalls is the number of cycles with at least one stall signal.
	Stalls uint64
	// StallSignals counts each stall signal, indexed [producer][consumer].
	StallSignals [NumSlots][NumSlots]uint64
	// Flushes is the number of cycles that flushed fetch/decode and execute.
	Flushes uint64
	// MemFlushes is the number of cycles that also flushed slot 2's memory latch.
	MemFlushes uint64
	// Redirects counts corrected-PC selections per slot.
	Redirects [NumSlots]uint64
	// Forwards counts execute-stage operand selectors by select code.
	Forwards [ForwardWritebackOther + 1]uint64
	// BranchForwards counts early branch-path forwards (A and B separately).
	BranchForwards uint64
}

// StallRate returns the percentage of cycles with a stall.
func (s Statistics) StallRate() float64 {
	if s.Cycles == 0 {
		return 0
	}
	return float64(s.Stalls) / float64(s.Cycles) * 100
}

// FlushRate returns the percentage of cycles with a flush.
func (s Statistics) FlushRate() float64 {
	if s.Cycles == 0 {
		return 0
	}
	return float64(s.Flushes) / float64(s.Cycles) * 100
}

// Tracer receives every evaluated cycle.
type Tracer interface {
	TraceCycle(cycle uint64, in *CycleInputs, out *CycleOutputs)
}

// ControlOption is a functional option for configuring the ControlPlane.
type ControlOption func(*ControlPlane)

// WithLogger sets the logger used for per-cycle debug events.
func WithLogger(logger logrus.FieldLogger) ControlOption {
	return func(c *ControlPlane) {
		c.logger = logger
	}
}

// WithTracer attaches a cycle tracer.
func WithTracer(tracer Tracer) ControlOption {
	return func(c *ControlPlane) {
		c.tracer = tracer
	}
}

// WithStrictChecks makes Tick panic when a cycle's inputs break the caller
// contract (see CycleInputs.Validate).
func WithStrictChecks() ControlOption {
	return func(c *ControlPlane) {
		c.strict = true
	}
}

// ControlPlane evaluates the branch prediction, hazard detection,
// forwarding and PC correction units once per clock cycle.
//
// The branch predictor is owned by the caller and passed in, so several
// control planes never share hidden state.
type ControlPlane struct {
	predictor      *BranchPredictor
	hazardUnit     *HazardUnit
	forwardingUnit *ForwardingUnit
	pcCorrection   *PCCorrectionUnit

	logger logrus.FieldLogger
	tracer Tracer
	strict bool

	// Statistics
	stats Statistics
}

// NewControlPlane creates a control plane around the given predictor.
func NewControlPlane(predictor *BranchPredictor, opts ...ControlOption) *ControlPlane {
	c := &ControlPlane{
		predictor:      predictor,
		hazardUnit:     NewHazardUnit(),
		forwardingUnit: NewForwardingUnit(),
		pcCorrection:   NewPCCorrectionUnit(),
		logger:         discardLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Predictor returns the branch predictor driven by this control plane.
func (c *ControlPlane) Predictor() *BranchPredictor {
	return c.predictor
}

// Cycle returns the number of the next cycle to be evaluated.
func (c *ControlPlane) Cycle() uint64 {
	return c.stats.Cycles
}

// Tick evaluates one clock cycle. Predictions read the predictor state left
// by the previous cycle; this cycle's resolutions are committed at the end,
// at the clock edge.
func (c *ControlPlane) Tick(in *CycleInputs) CycleOutputs {
	if c.strict {
		if err := in.Validate(); err != nil {
			panic(err)
		}
	}

	out := CycleOutputs{}

	for s := Slot1; s <= Slot2; s++ {
		out.Predictions[s] = c.predictor.Predict(s, in.Slot(s).Fetch.PC)
	}

	out.Hazards = c.hazardUnit.Detect(in)
	out.Forwarding = c.forwardingUnit.Detect(in)
	out.CorrectedPC = c.pcCorrection.Correct(in)

	c.predictor.Commit(in.Resolutions())

	cycle := c.stats.Cycles
	c.record(cycle, in, &out)
	if c.tracer != nil {
		c.tracer.TraceCycle(cycle, in, &out)
	}

	return out
}

// record updates statistics and emits debug events.
func (c *ControlPlane) record(cycle uint64, in *CycleInputs, out *CycleOutputs) {
	c.stats.Cycles++

	h := out.Hazards
	if h.AnyStall() {
		c.stats.Stalls++
	}
	for p := Slot1; p <= Slot2; p++ {
		for q := Slot1; q <= Slot2; q++ {
			if h.Stall(p, q) {
				c.stats.StallSignals[p][q]++
				c.logger.WithFields(logrus.Fields{
					"cycle":    cycle,
					"producer": p.String(),
					"consumer": q.String(),
					"reg":      in.Slot(p).Execute.WriteReg,
				}).Debug("load-use stall")
			}
		}
	}

	if h.FlushIFID1 {
		c.stats.Flushes++
	}
	if h.FlushMEM2 {
		c.stats.MemFlushes++
	}
	for s := Slot1; s <= Slot2; s++ {
		if !h.UseCorrectedPC(s) {
			continue
		}
		c.stats.Redirects[s]++
		b := in.Slot(s).Memory.Branch
		c.logger.WithFields(logrus.Fields{
			"cycle":     cycle,
			"slot":      s.String(),
			"pc":        b.PC,
			"predicted": b.Predicted,
			"taken":     b.Taken,
			"corrected": out.CorrectedPC[s],
		}).Debug("branch mispredicted")
	}

	f := out.Forwarding
	for _, sel := range []ForwardSource{f.ForwardA1, f.ForwardB1, f.ForwardA2, f.ForwardB2} {
		if int(sel) < len(c.stats.Forwards) {
			c.stats.Forwards[sel]++
		}
	}
	if f.ForwardBranchA {
		c.stats.BranchForwards++
	}
	if f.ForwardBranchB {
		c.stats.BranchForwards++
	}
}

// Stats returns the control-plane statistics.
func (c *ControlPlane) Stats() Statistics {
	return c.stats
}

// Reset clears the predictor and all statistics.
func (c *ControlPlane) Reset() {
	c.predictor.Reset()
	c.stats = Statistics{}
}
