// Package core provides the cycle-level model of the dual-issue control
// plane. It owns a branch predictor and a control plane and replays
// scenarios against them.
package core

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/dualsim/timing/config"
	"github.com/sarchlab/dualsim/timing/pipeline"
	"github.com/sarchlab/dualsim/timing/scenario"
)

// Stats holds performance statistics for the core.
type Stats struct {
	// Control holds per-cycle stall, flush, redirect and forward counts.
	Control pipeline.Statistics
	// Predictor holds branch resolution counts.
	Predictor pipeline.BranchPredictorStats
	// Mismatches is the number of expected outputs that disagreed.
	Mismatches uint64
}

// Result is the outcome of one scenario replay.
type Result struct {
	Name       string
	Cycles     uint64
	Mismatches []scenario.Mismatch
	Stats      Stats
}

// Passed reports whether every expectation held.
func (r Result) Passed() bool {
	return len(r.Mismatches) == 0
}

// Option is a functional option for configuring the Core.
type Option func(*Core)

// WithLogger sets the logger of the core and its control plane.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Core) {
		c.logger = logger
	}
}

// WithTracer attaches a per-cycle tracer to the control plane.
func WithTracer(tracer pipeline.Tracer) Option {
	return func(c *Core) {
		c.tracer = tracer
	}
}

// WithStrictChecks makes every cycle validate its inputs.
func WithStrictChecks() Option {
	return func(c *Core) {
		c.strict = true
	}
}

// Core represents the control plane of a dual-issue pipeline together with
// the branch predictor it drives.
type Core struct {
	// ControlPlane is the underlying per-cycle control logic.
	ControlPlane *pipeline.ControlPlane

	predictor *pipeline.BranchPredictor
	logger    logrus.FieldLogger
	tracer    pipeline.Tracer
	strict    bool

	mismatches uint64
}

// NewCore creates a new Core with a predictor built from bpConfig.
func NewCore(bpConfig pipeline.BranchPredictorConfig, opts ...Option) *Core {
	c := &Core{
		predictor: pipeline.NewBranchPredictor(bpConfig),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		c.logger = l
	}

	cpOpts := []pipeline.ControlOption{pipeline.WithLogger(c.logger)}
	if c.tracer != nil {
		cpOpts = append(cpOpts, pipeline.WithTracer(c.tracer))
	}
	if c.strict {
		cpOpts = append(cpOpts, pipeline.WithStrictChecks())
	}
	c.ControlPlane = pipeline.NewControlPlane(c.predictor, cpOpts...)

	return c
}

// NewCoreFromConfig creates a Core from a run configuration. Options are
// applied after the configuration.
func NewCoreFromConfig(cfg *config.Config, opts ...Option) *Core {
	if cfg.Strict {
		opts = append([]Option{WithStrictChecks()}, opts...)
	}
	return NewCore(cfg.BranchPredictor(), opts...)
}

// Predictor returns the branch predictor owned by the core.
func (c *Core) Predictor() *pipeline.BranchPredictor {
	return c.predictor
}

// Cycle returns the number of cycles evaluated so far.
func (c *Core) Cycle() uint64 {
	return c.ControlPlane.Cycle()
}

// Tick evaluates one cycle.
func (c *Core) Tick(in *pipeline.CycleInputs) pipeline.CycleOutputs {
	return c.ControlPlane.Tick(in)
}

// RunCycles drives the same inputs for the specified number of cycles and
// returns the outputs of the last one.
func (c *Core) RunCycles(in *pipeline.CycleInputs, cycles uint64) pipeline.CycleOutputs {
	var out pipeline.CycleOutputs
	for i := uint64(0); i < cycles; i++ {
		out = c.Tick(in)
	}
	return out
}

// Run replays a scenario from the core's current state and checks every
// expectation it carries.
func (c *Core) Run(sc *scenario.Scenario) Result {
	start := c.Cycle()
	result := Result{Name: sc.Name}

	for i := range sc.Steps {
		step := &sc.Steps[i]
		in := step.Inputs()

		for r := 0; r < step.Count(); r++ {
			cycle := c.Cycle()
			out := c.Tick(in)

			for _, m := range step.Expect.Check(cycle, &out) {
				c.logger.WithFields(logrus.Fields{
					"scenario": sc.Name,
					"cycle":    m.Cycle,
					"signal":   m.Signal,
					"want":     m.Want,
					"got":      m.Got,
				}).Warn("unexpected output")
				result.Mismatches = append(result.Mismatches, m)
			}
		}
	}

	c.mismatches += uint64(len(result.Mismatches))
	result.Cycles = c.Cycle() - start
	result.Stats = c.Stats()

	c.logger.WithFields(logrus.Fields{
		"scenario":   sc.Name,
		"cycles":     result.Cycles,
		"mismatches": len(result.Mismatches),
	}).Info("scenario finished")

	return result
}

// Stats returns performance statistics for the core.
func (c *Core) Stats() Stats {
	return Stats{
		Control:    c.ControlPlane.Stats(),
		Predictor:  c.predictor.Stats(),
		Mismatches: c.mismatches,
	}
}

// Reset clears all core state.
func (c *Core) Reset() {
	c.ControlPlane.Reset()
	c.mismatches = 0
}
