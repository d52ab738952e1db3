package benchmarks

import (
	"github.com/sarchlab/dualsim/timing/pipeline"
	"github.com/sarchlab/dualsim/timing/scenario"
)

// GetMicrobenchmarks returns the standard set of control-plane
// microbenchmarks. Each one targets a single predictor or hazard behavior.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		loopBranch(),
		alternatingBranch(),
		nestedLoops(),
		aliasedLoops(),
		sharedBranchBothSlots(),
		manyBranches(),
		loadUseChain(),
		forwardingMix(),
	}
}

// GetCoreBenchmarks returns a minimal set for quick validation.
func GetCoreBenchmarks() []Benchmark {
	return []Benchmark{
		loopBranch(),
		aliasedLoops(),
		loadUseChain(),
	}
}

// 1. Loop Branch - a single backward branch, 64 iterations
func loopBranch() Benchmark {
	return Benchmark{
		Name:        "loop_branch",
		Description: "one loop branch taken 63 times then not taken - measures warm-up",
		Stream:      loopStream(pipeline.Slot1, 0x40, 0x10, 64),
	}
}

// 2. Alternating Branch - worst case for a 2-bit counter
func alternatingBranch() Benchmark {
	events := make([]BranchEvent, 0, 64)
	for i := 0; i < 64; i++ {
		events = append(events, BranchEvent{
			Slot: pipeline.Slot2, PC: 0x80, Target: 0x20, Taken: i%2 == 0,
		})
	}
	return Benchmark{
		Name:        "alternating_branch",
		Description: "taken/not-taken alternation in slot 2 - measures hysteresis",
		Stream:      events,
	}
}

// 3. Nested Loops - an inner loop of 8 inside an outer loop of 8
func nestedLoops() Benchmark {
	var events []BranchEvent
	for outer := 0; outer < 8; outer++ {
		events = append(events, loopStream(pipeline.Slot1, 0x30, 0x20, 8)...)
		events = append(events, BranchEvent{
			Slot: pipeline.Slot2, PC: 0x31, Target: 0x10, Taken: outer < 7,
		})
	}
	return Benchmark{
		Name:        "nested_loops",
		Description: "8x8 nested loops split across slots - inner exit mispredicts",
		Stream:      events,
	}
}

// 4. Aliased Loops - two loops whose addresses share a direct-mapped entry
func aliasedLoops() Benchmark {
	return Benchmark{
		Name:        "aliased_loops",
		Description: "two interleaved loops 1024 apart - measures finite-table conflicts",
		Stream: interleave(
			loopStream(pipeline.Slot1, 0x100, 0x80, 32),
			loopStream(pipeline.Slot2, 0x100+1024, 0x480, 32),
		),
	}
}

// 5. Shared Branch - the same address fetched in both slots
func sharedBranchBothSlots() Benchmark {
	return Benchmark{
		Name:        "shared_branch",
		Description: "one branch address issued in both slots - measures shared-table training",
		Stream: interleave(
			loopStream(pipeline.Slot1, 0x200, 0x180, 32),
			loopStream(pipeline.Slot2, 0x200, 0x180, 32),
		),
	}
}

// 6. Many Branches - 256 distinct always-taken branches, visited 4 times
func manyBranches() Benchmark {
	var events []BranchEvent
	for round := 0; round < 4; round++ {
		for i := uint64(0); i < 256; i++ {
			events = append(events, BranchEvent{
				Slot:   pipeline.Slot(i % 2),
				PC:     0x1000 + i*4,
				Target: 0x1000 + i*4 + 64,
				Taken:  true,
			})
		}
	}
	return Benchmark{
		Name:        "many_branches",
		Description: "256 distinct taken branches - measures table capacity",
		Stream:      events,
	}
}

func expectTrue() *bool {
	v := true
	return &v
}

func expectForward(f pipeline.ForwardSource) *uint8 {
	v := uint8(f)
	return &v
}

// 7. Load-Use Chain - each slot loads the register the other lane reads
func loadUseChain() Benchmark {
	load := func(reg uint8) pipeline.ExecuteSignals {
		return pipeline.ExecuteSignals{WriteReg: reg, RegWrite: true, MemRead: true}
	}

	return Benchmark{
		Name:        "load_use_chain",
		Description: "loads consumed in the next decode group - measures stall signals",
		Scenario: &scenario.Scenario{
			Name: "load_use_chain",
			Steps: []scenario.Step{
				{
					Repeat: 8,
					Slot1: pipeline.SlotSignals{
						Decode:  pipeline.DecodeSignals{Rs: 5},
						Execute: load(5),
					},
					Expect: &scenario.Expect{Stall11: expectTrue()},
				},
				{
					Repeat: 8,
					Slot1: pipeline.SlotSignals{
						Decode:  pipeline.DecodeSignals{Rt: 6},
						Execute: load(5),
					},
					Slot2: pipeline.SlotSignals{
						Decode:  pipeline.DecodeSignals{Rs: 5},
						Execute: load(6),
					},
					Expect: &scenario.Expect{Stall12: expectTrue(), Stall21: expectTrue()},
				},
				{Repeat: 8},
			},
		},
	}
}

// 8. Forwarding Mix - every forward source in turn
func forwardingMix() Benchmark {
	mem := func(reg uint8) pipeline.MemorySignals {
		return pipeline.MemorySignals{WriteReg: reg, RegWrite: true}
	}
	wb := func(reg uint8) pipeline.WritebackSignals {
		return pipeline.WritebackSignals{WriteReg: reg, RegWrite: true}
	}

	return Benchmark{
		Name:        "forwarding_mix",
		Description: "producers in every stage and lane - measures operand selection",
		Scenario: &scenario.Scenario{
			Name: "forwarding_mix",
			Steps: []scenario.Step{
				{
					Repeat: 4,
					Slot1: pipeline.SlotSignals{
						Execute:   pipeline.ExecuteSignals{Rs: 1, Rt: 2},
						Memory:    mem(1),
						Writeback: wb(2),
					},
					Expect: &scenario.Expect{
						ForwardA1: expectForward(pipeline.ForwardMemOwn),
						ForwardB1: expectForward(pipeline.ForwardWritebackOwn),
					},
				},
				{
					Repeat: 4,
					Slot1: pipeline.SlotSignals{
						Memory:    mem(3),
						Writeback: wb(4),
					},
					Slot2: pipeline.SlotSignals{
						Execute: pipeline.ExecuteSignals{Rs: 3, Rt: 4},
					},
					Expect: &scenario.Expect{
						ForwardA2: expectForward(pipeline.ForwardMemOther),
						ForwardB2: expectForward(pipeline.ForwardWritebackOther),
					},
				},
				{
					Repeat: 4,
					Slot1: pipeline.SlotSignals{Memory: mem(7)},
					Slot2: pipeline.SlotSignals{
						Memory: pipeline.MemorySignals{
							Rs: 7, Rt: 7,
							Branch: pipeline.BranchOutcome{IsBranch: true, PC: 0x50, PCPlus: 0x51},
						},
					},
					Expect: &scenario.Expect{
						ForwardBranchA: expectTrue(),
						ForwardBranchB: expectTrue(),
					},
				},
			},
		},
	}
}
