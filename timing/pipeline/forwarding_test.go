package pipeline_test

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/dualsim/timing/pipeline"
)

var _ = Describe("ForwardingUnit", func() {
	var (
		fu *pipeline.ForwardingUnit
		in *pipeline.CycleInputs
	)

	BeforeEach(func() {
		fu = pipeline.NewForwardingUnit()
		in = &pipeline.CycleInputs{}
	})

	s1 := func() *pipeline.SlotSignals { return in.Slot(pipeline.Slot1) }
	s2 := func() *pipeline.SlotSignals { return in.Slot(pipeline.Slot2) }

	Describe("Execute-stage selectors", func() {
		It("should select the register file with no producers", func() {
			s1().Execute.Rs = 5
			s1().Execute.Rt = 6

			result := fu.Detect(in)
			Expect(result).To(Equal(pipeline.ForwardingResult{}))
		})

		It("should forward from this lane's memory stage", func() {
			s1().Execute.Rs = 5
			s1().Memory.WriteReg = 5
			s1().Memory.RegWrite = true

			result := fu.Detect(in)
			Expect(result.ForwardA1).To(Equal(pipeline.ForwardMemOwn))
			Expect(result.ForwardB1).To(Equal(pipeline.ForwardNone))
		})

		It("should forward from the other lane's memory stage", func() {
			s1().Execute.Rt = 7
			s2().Memory.WriteReg = 7
			s2().Memory.RegWrite = true

			result := fu.Detect(in)
			Expect(result.ForwardB1).To(Equal(pipeline.ForwardMemOther))
		})

		It("should forward from this lane's writeback stage", func() {
			s2().Execute.Rs = 9
			s2().Writeback.WriteReg = 9
			s2().Writeback.RegWrite = true

			result := fu.Detect(in)
			Expect(result.ForwardA2).To(Equal(pipeline.ForwardWritebackOwn))
		})

		It("should forward from the other lane's writeback stage", func() {
			s2().Execute.Rt = 10
			s1().Writeback.WriteReg = 10
			s1().Writeback.RegWrite = true

			result := fu.Detect(in)
			Expect(result.ForwardB2).To(Equal(pipeline.ForwardWritebackOther))
		})

		It("should see slot 1's memory stage as the other lane from slot 2", func() {
			s1().Memory.WriteReg = 4
			s1().Memory.RegWrite = true
			s1().Execute.Rs = 4
			s2().Execute.Rs = 4

			result := fu.Detect(in)
			Expect(result.ForwardA1).To(Equal(pipeline.ForwardMemOwn))
			Expect(result.ForwardA2).To(Equal(pipeline.ForwardMemOther))
		})

		It("should prefer the memory stage over writeback", func() {
			s1().Execute.Rs = 5
			s1().Memory.WriteReg = 5
			s1().Memory.RegWrite = true
			s1().Writeback.WriteReg = 5
			s1().Writeback.RegWrite = true

			Expect(fu.Detect(in).ForwardA1).To(Equal(pipeline.ForwardMemOwn))
		})

		It("should prefer this lane over the other at the same stage", func() {
			s2().Execute.Rt = 3
			s1().Memory.WriteReg = 3
			s1().Memory.RegWrite = true
			s2().Memory.WriteReg = 3
			s2().Memory.RegWrite = true

			Expect(fu.Detect(in).ForwardB2).To(Equal(pipeline.ForwardMemOwn))
		})

		It("should prefer the other lane's memory stage over this lane's writeback", func() {
			s1().Execute.Rs = 8
			s2().Memory.WriteReg = 8
			s2().Memory.RegWrite = true
			s1().Writeback.WriteReg = 8
			s1().Writeback.RegWrite = true

			Expect(fu.Detect(in).ForwardA1).To(Equal(pipeline.ForwardMemOther))
		})

		It("should skip a matching producer that does not write", func() {
			s1().Execute.Rs = 5
			s1().Memory.WriteReg = 5
			s1().Writeback.WriteReg = 5
			s1().Writeback.RegWrite = true

			Expect(fu.Detect(in).ForwardA1).To(Equal(pipeline.ForwardWritebackOwn))
		})

		It("should not take the other lane's memory stage over an idle writer of the same register", func() {
			s1().Execute.Rs = 5
			s1().Memory.WriteReg = 5
			s2().Memory.WriteReg = 5
			s2().Memory.RegWrite = true

			Expect(fu.Detect(in).ForwardA1).To(Equal(pipeline.ForwardNone))
		})

		It("should not take the other lane's writeback over an idle writer of the same register", func() {
			s1().Execute.Rs = 7
			s1().Writeback.WriteReg = 7
			s2().Writeback.WriteReg = 7
			s2().Writeback.RegWrite = true

			Expect(fu.Detect(in).ForwardA1).To(Equal(pipeline.ForwardNone))
		})

		It("should not fall through to writeback when the other memory stage is blocked", func() {
			s2().Execute.Rt = 9
			s2().Memory.WriteReg = 9
			s1().Memory.WriteReg = 9
			s1().Memory.RegWrite = true
			s2().Writeback.WriteReg = 9
			s2().Writeback.RegWrite = true

			Expect(fu.Detect(in).ForwardB2).To(Equal(pipeline.ForwardNone))
		})

		It("should never forward register 0", func() {
			s1().Memory.RegWrite = true
			s2().Memory.RegWrite = true
			s1().Writeback.RegWrite = true
			s2().Writeback.RegWrite = true

			result := fu.Detect(in)
			Expect(result).To(Equal(pipeline.ForwardingResult{}))
		})

		It("should select both operands independently", func() {
			s1().Execute.Rs = 5
			s1().Execute.Rt = 6
			s1().Memory.WriteReg = 5
			s1().Memory.RegWrite = true
			s2().Writeback.WriteReg = 6
			s2().Writeback.RegWrite = true

			a, b := fu.Detect(in).Operands(pipeline.Slot1)
			Expect(a).To(Equal(pipeline.ForwardMemOwn))
			Expect(b).To(Equal(pipeline.ForwardWritebackOther))
		})
	})

	Describe("Branch-path forwarding", func() {
		BeforeEach(func() {
			s2().Memory.Branch.IsBranch = true
			s1().Memory.WriteReg = 12
			s1().Memory.RegWrite = true
		})

		It("should forward into the branch's rs", func() {
			s2().Memory.Rs = 12

			result := fu.Detect(in)
			Expect(result.ForwardBranchA).To(BeTrue())
			Expect(result.ForwardBranchB).To(BeFalse())
		})

		It("should forward into both operands", func() {
			s2().Memory.Rs = 12
			s2().Memory.Rt = 12

			a, b := fu.DetectBranchForwarding(in)
			Expect(a).To(BeTrue())
			Expect(b).To(BeTrue())
		})

		It("should not forward when slot 2 holds no branch", func() {
			s2().Memory.Branch.IsBranch = false
			s2().Memory.Rs = 12

			a, b := fu.DetectBranchForwarding(in)
			Expect(a).To(BeFalse())
			Expect(b).To(BeFalse())
		})

		It("should not forward when slot 1 does not write", func() {
			s1().Memory.RegWrite = false
			s2().Memory.Rs = 12

			a, _ := fu.DetectBranchForwarding(in)
			Expect(a).To(BeFalse())
		})

		It("should not forward register 0", func() {
			s1().Memory.WriteReg = 0

			a, b := fu.DetectBranchForwarding(in)
			Expect(a).To(BeFalse())
			Expect(b).To(BeFalse())
		})
	})

	Describe("Randomized inputs", func() {
		It("should pick the first writer unless an idle same-register writer blocks it", func() {
			rng := rand.New(rand.NewSource(7))
			bit := func() bool { return rng.Intn(2) == 1 }
			// A small register range makes collisions common.
			reg := func() uint8 { return uint8(rng.Intn(4)) }

			writes := func(regWrite bool, w, r uint8) bool {
				return regWrite && w != 0 && w == r
			}
			idle := func(regWrite bool, w, r uint8) bool {
				return w != r || !regWrite
			}

			oracle := func(r uint8, own, other *pipeline.SlotSignals) pipeline.ForwardSource {
				m1, m2 := own.Memory, other.Memory
				w1, w2 := own.Writeback, other.Writeback
				memIdle := idle(m1.RegWrite, m1.WriteReg, r) && idle(m2.RegWrite, m2.WriteReg, r)

				switch {
				case writes(m1.RegWrite, m1.WriteReg, r):
					return pipeline.ForwardMemOwn
				case writes(m2.RegWrite, m2.WriteReg, r) && m1.WriteReg != r:
					return pipeline.ForwardMemOther
				case writes(w1.RegWrite, w1.WriteReg, r) && memIdle:
					return pipeline.ForwardWritebackOwn
				case writes(w2.RegWrite, w2.WriteReg, r) && memIdle && w1.WriteReg != r:
					return pipeline.ForwardWritebackOther
				default:
					return pipeline.ForwardNone
				}
			}

			for i := 0; i < 10000; i++ {
				in.Clear()
				for _, s := range []*pipeline.SlotSignals{s1(), s2()} {
					s.Execute.Rs = reg()
					s.Execute.Rt = reg()
					s.Memory.Rs = reg()
					s.Memory.Rt = reg()
					s.Memory.WriteReg = reg()
					s.Memory.RegWrite = bit()
					s.Writeback.WriteReg = reg()
					s.Writeback.RegWrite = bit()
				}
				s2().Memory.Branch.IsBranch = bit()

				result := fu.Detect(in)

				Expect(result.ForwardA1).To(Equal(oracle(s1().Execute.Rs, s1(), s2())))
				Expect(result.ForwardB1).To(Equal(oracle(s1().Execute.Rt, s1(), s2())))
				Expect(result.ForwardA2).To(Equal(oracle(s2().Execute.Rs, s2(), s1())))
				Expect(result.ForwardB2).To(Equal(oracle(s2().Execute.Rt, s2(), s1())))

				m1 := s1().Memory
				branch := s2().Memory.Branch.IsBranch
				Expect(result.ForwardBranchA).To(Equal(
					branch && writes(m1.RegWrite, m1.WriteReg, s2().Memory.Rs)))
				Expect(result.ForwardBranchB).To(Equal(
					branch && writes(m1.RegWrite, m1.WriteReg, s2().Memory.Rt)))
			}
		})
	})
})

var _ = Describe("SelectOperand", func() {
	src := pipeline.OperandSources{
		RegFile:        10,
		MemOwn:         20,
		MemOther:       30,
		WritebackOwn:   40,
		WritebackOther: 50,
	}

	DescribeTable("should route the selected source",
		func(sel pipeline.ForwardSource, want uint64) {
			Expect(pipeline.SelectOperand(sel, src)).To(Equal(want))
		},
		Entry("register file", pipeline.ForwardNone, uint64(10)),
		Entry("memory own", pipeline.ForwardMemOwn, uint64(20)),
		Entry("memory other", pipeline.ForwardMemOther, uint64(30)),
		Entry("writeback own", pipeline.ForwardWritebackOwn, uint64(40)),
		Entry("writeback other", pipeline.ForwardWritebackOther, uint64(50)),
		Entry("undefined code", pipeline.ForwardSource(5), uint64(0)),
		Entry("undefined code 7", pipeline.ForwardSource(7), uint64(0)),
	)

	It("should name every select code", func() {
		Expect(pipeline.ForwardMemOther.String()).To(Equal("mem-other"))
		Expect(pipeline.ForwardSource(9).String()).To(Equal("forward(9)"))
	})
})
