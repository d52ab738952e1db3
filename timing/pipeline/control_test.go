package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/sarchlab/dualsim/timing/pipeline"
)

type recordedCycle struct {
	cycle uint64
	out   pipeline.CycleOutputs
}

type fakeTracer struct {
	cycles []recordedCycle
}

func (t *fakeTracer) TraceCycle(cycle uint64, in *pipeline.CycleInputs, out *pipeline.CycleOutputs) {
	t.cycles = append(t.cycles, recordedCycle{cycle: cycle, out: *out})
}

var _ = Describe("ControlPlane", func() {
	var (
		bp *pipeline.BranchPredictor
		cp *pipeline.ControlPlane
		in *pipeline.CycleInputs
	)

	BeforeEach(func() {
		bp = pipeline.NewBranchPredictor(pipeline.DefaultBranchPredictorConfig())
		cp = pipeline.NewControlPlane(bp)
		in = &pipeline.CycleInputs{}
	})

	resolve := func(s pipeline.Slot, pc uint64, taken bool, target uint64) {
		in.Slot(s).Memory.Branch = pipeline.BranchOutcome{
			IsBranch: true,
			Taken:    taken,
			PC:       pc,
			PCPlus:   pc + 1,
			Target:   target,
		}
	}

	It("should expose its predictor", func() {
		Expect(cp.Predictor()).To(BeIdenticalTo(bp))
	})

	It("should predict from the state before this cycle's resolutions", func() {
		bp.Resolve(pipeline.Slot1, 0x40, true, 0x80)

		// Second taken outcome arrives while 0x40 is being fetched again.
		in.Slot(pipeline.Slot1).Fetch.PC = 0x40
		resolve(pipeline.Slot1, 0x40, true, 0x80)

		out := cp.Tick(in)
		Expect(out.Predictions[pipeline.Slot1].Taken).To(BeFalse())

		in.Clear()
		in.Slot(pipeline.Slot1).Fetch.PC = 0x40
		out = cp.Tick(in)
		Expect(out.Predictions[pipeline.Slot1].Taken).To(BeTrue())
		Expect(out.Predictions[pipeline.Slot1].Target).To(Equal(uint64(0x80)))
	})

	It("should train a loop branch across cycles", func() {
		var last pipeline.CycleOutputs
		for i := 0; i < 3; i++ {
			in.Clear()
			in.Slot(pipeline.Slot2).Fetch.PC = 0x100
			if i < 2 {
				resolve(pipeline.Slot2, 0x100, true, 0x10)
			}
			last = cp.Tick(in)
		}

		Expect(last.Predictions[pipeline.Slot2].Taken).To(BeTrue())
		Expect(last.Predictions[pipeline.Slot2].Target).To(Equal(uint64(0x10)))
		Expect(cp.Cycle()).To(Equal(uint64(3)))
	})

	It("should drive hazards, forwarding and corrected PCs together", func() {
		s1 := in.Slot(pipeline.Slot1)
		s2 := in.Slot(pipeline.Slot2)

		s1.Execute = pipeline.ExecuteSignals{WriteReg: 5, RegWrite: true, MemRead: true}
		s2.Decode.Rs = 5
		s2.Execute.Rs = 9
		s1.Writeback = pipeline.WritebackSignals{WriteReg: 9, RegWrite: true}
		resolve(pipeline.Slot1, 0x20, true, 0x60)

		out := cp.Tick(in)

		Expect(out.Hazards.Stall12).To(BeTrue())
		Expect(out.Hazards.CPCSignal1).To(BeTrue())
		Expect(out.Hazards.FlushMEM2).To(BeTrue())
		Expect(out.Forwarding.ForwardA2).To(Equal(pipeline.ForwardWritebackOther))
		Expect(out.CorrectedPC[pipeline.Slot1]).To(Equal(uint64(0x60)))
		Expect(out.CorrectedPC[pipeline.Slot2]).To(Equal(uint64(0)))
	})

	Describe("Statistics", func() {
		It("should count stalls, flushes, redirects and forwards", func() {
			s1 := in.Slot(pipeline.Slot1)
			s1.Execute = pipeline.ExecuteSignals{Rs: 3, WriteReg: 4, RegWrite: true, MemRead: true}
			s1.Decode.Rt = 4
			s1.Memory = pipeline.MemorySignals{WriteReg: 3, RegWrite: true}
			resolve(pipeline.Slot2, 0x30, true, 0x90)
			cp.Tick(in)

			in.Clear()
			cp.Tick(in)

			stats := cp.Stats()
			Expect(stats.Cycles).To(Equal(uint64(2)))
			Expect(stats.Stalls).To(Equal(uint64(1)))
			Expect(stats.StallSignals[pipeline.Slot1][pipeline.Slot1]).To(Equal(uint64(1)))
			Expect(stats.Flushes).To(Equal(uint64(1)))
			Expect(stats.MemFlushes).To(Equal(uint64(0)))
			Expect(stats.Redirects[pipeline.Slot2]).To(Equal(uint64(1)))
			Expect(stats.Forwards[pipeline.ForwardMemOwn]).To(Equal(uint64(1)))
			Expect(stats.Forwards[pipeline.ForwardNone]).To(Equal(uint64(7)))
			Expect(stats.StallRate()).To(Equal(50.0))
			Expect(stats.FlushRate()).To(Equal(50.0))
		})

		It("should count branch-path forwards per operand", func() {
			in.Slot(pipeline.Slot1).Memory = pipeline.MemorySignals{WriteReg: 6, RegWrite: true}
			m2 := &in.Slot(pipeline.Slot2).Memory
			m2.Rs = 6
			m2.Rt = 6
			m2.Branch.IsBranch = true

			cp.Tick(in)
			Expect(cp.Stats().BranchForwards).To(Equal(uint64(2)))
		})

		It("should report zero rates before any cycle", func() {
			Expect(cp.Stats().StallRate()).To(Equal(0.0))
			Expect(cp.Stats().FlushRate()).To(Equal(0.0))
		})

		It("should clear statistics and predictor state on reset", func() {
			resolve(pipeline.Slot1, 0x8, true, 0x20)
			cp.Tick(in)
			cp.Tick(in)
			Expect(bp.Counter(0x8)).To(Equal(pipeline.WeaklyTaken))

			cp.Reset()

			Expect(cp.Stats()).To(Equal(pipeline.Statistics{}))
			Expect(bp.Counter(0x8)).To(Equal(pipeline.StronglyNotTaken))
			Expect(bp.Stats()).To(Equal(pipeline.BranchPredictorStats{}))
		})
	})

	Describe("Tracing", func() {
		It("should hand every cycle to the tracer in order", func() {
			tracer := &fakeTracer{}
			cp = pipeline.NewControlPlane(bp, pipeline.WithTracer(tracer))

			resolve(pipeline.Slot1, 0x10, true, 0x50)
			cp.Tick(in)
			in.Clear()
			cp.Tick(in)

			Expect(tracer.cycles).To(HaveLen(2))
			Expect(tracer.cycles[0].cycle).To(Equal(uint64(0)))
			Expect(tracer.cycles[0].out.Hazards.CPCSignal1).To(BeTrue())
			Expect(tracer.cycles[1].cycle).To(Equal(uint64(1)))
			Expect(tracer.cycles[1].out.Hazards.AnyFlush()).To(BeFalse())
		})
	})

	Describe("Logging", func() {
		It("should log stalls and mispredictions at debug level", func() {
			logger, hook := test.NewNullLogger()
			logger.SetLevel(logrus.DebugLevel)
			cp = pipeline.NewControlPlane(bp, pipeline.WithLogger(logger))

			in.Slot(pipeline.Slot2).Execute = pipeline.ExecuteSignals{
				WriteReg: 7, RegWrite: true, MemRead: true,
			}
			in.Slot(pipeline.Slot2).Decode.Rs = 7
			resolve(pipeline.Slot1, 0x44, true, 0x88)
			cp.Tick(in)

			entries := hook.AllEntries()
			Expect(entries).To(HaveLen(2))

			Expect(entries[0].Message).To(Equal("load-use stall"))
			Expect(entries[0].Level).To(Equal(logrus.DebugLevel))
			Expect(entries[0].Data).To(HaveKeyWithValue("producer", "2"))
			Expect(entries[0].Data).To(HaveKeyWithValue("consumer", "2"))
			Expect(entries[0].Data).To(HaveKeyWithValue("reg", uint8(7)))

			Expect(entries[1].Message).To(Equal("branch mispredicted"))
			Expect(entries[1].Data).To(HaveKeyWithValue("slot", "1"))
			Expect(entries[1].Data).To(HaveKeyWithValue("corrected", uint64(0x88)))
		})

		It("should stay quiet above debug level", func() {
			logger, hook := test.NewNullLogger()
			logger.SetLevel(logrus.InfoLevel)
			cp = pipeline.NewControlPlane(bp, pipeline.WithLogger(logger))

			resolve(pipeline.Slot1, 0x44, true, 0x88)
			cp.Tick(in)

			Expect(hook.AllEntries()).To(BeEmpty())
		})
	})

	Describe("Strict checks", func() {
		It("should panic on an out-of-range register", func() {
			cp = pipeline.NewControlPlane(bp, pipeline.WithStrictChecks())
			in.Slot(pipeline.Slot2).Decode.Rt = 32

			Expect(func() { cp.Tick(in) }).To(Panic())
		})

		It("should accept in-range registers", func() {
			cp = pipeline.NewControlPlane(bp, pipeline.WithStrictChecks())
			in.Slot(pipeline.Slot2).Decode.Rt = 31

			Expect(func() { cp.Tick(in) }).NotTo(Panic())
		})

		It("should tolerate out-of-range registers without strict checks", func() {
			in.Slot(pipeline.Slot1).Execute = pipeline.ExecuteSignals{
				WriteReg: 40, RegWrite: true, MemRead: true,
			}
			in.Slot(pipeline.Slot1).Decode.Rs = 40

			out := cp.Tick(in)
			Expect(out.Hazards.Stall11).To(BeTrue())
		})
	})
})

var _ = Describe("CycleInputs validation", func() {
	It("should accept a zero cycle", func() {
		in := &pipeline.CycleInputs{}
		Expect(in.Validate()).To(Succeed())
	})

	It("should name the offending field", func() {
		in := &pipeline.CycleInputs{}
		in.Slot(pipeline.Slot2).Memory.WriteReg = 33

		err := in.Validate()
		Expect(err).To(MatchError(pipeline.ErrRegisterOutOfRange))
		Expect(err.Error()).To(ContainSubstring("slot 2 memory.write_reg = 33"))
	})

	It("should reject a resolution from an unknown slot", func() {
		r := pipeline.Resolution{Slot: pipeline.Slot(2), PC: 4}
		Expect(r.Validate()).To(MatchError(pipeline.ErrInvalidSlot))

		r.Slot = pipeline.Slot2
		Expect(r.Validate()).To(Succeed())
	})

	It("should list resolutions in slot order", func() {
		in := &pipeline.CycleInputs{}
		in.Slot(pipeline.Slot2).Memory.Branch = pipeline.BranchOutcome{IsBranch: true, PC: 2}
		in.Slot(pipeline.Slot1).Memory.Branch = pipeline.BranchOutcome{IsBranch: true, PC: 1, Taken: true}

		events := in.Resolutions()
		Expect(events).To(HaveLen(2))
		Expect(events[0].Slot).To(Equal(pipeline.Slot1))
		Expect(events[0].Taken).To(BeTrue())
		Expect(events[1].PC).To(Equal(uint64(2)))
	})
})
