package benchmarks

import (
	"github.com/sarchlab/dualsim/timing/core"
	"github.com/sarchlab/dualsim/timing/pipeline"
)

// resolveDepth is the number of cycles between fetch and the memory stage,
// where a branch resolves.
const resolveDepth = 3

// BranchEvent is one dynamic branch of a stream.
type BranchEvent struct {
	// Slot is the lane the branch is fetched in.
	Slot   pipeline.Slot
	PC     uint64
	Target uint64
	Taken  bool
}

type inflight struct {
	event     BranchEvent
	predicted bool
}

// streamDriver feeds a branch stream through a core. Each cycle every lane
// fetches the next branch assigned to it, and the prediction made at fetch
// travels with the branch until it resolves resolveDepth cycles later.
// Mispredictions are counted but do not squash younger branches.
type streamDriver struct {
	core   *core.Core
	stream []BranchEvent
	next   int

	// latches[s][d] is the branch d+1 cycles past fetch in lane s.
	latches [pipeline.NumSlots][resolveDepth]*inflight
}

func newStreamDriver(c *core.Core, stream []BranchEvent) *streamDriver {
	return &streamDriver{core: c, stream: stream}
}

// fetch pops the events for this cycle: at most one per lane, in stream
// order, with slot 1 never younger than slot 2. Events naming an unknown
// lane are dropped.
func (d *streamDriver) fetch() [pipeline.NumSlots]*inflight {
	var group [pipeline.NumSlots]*inflight
	for d.next < len(d.stream) {
		e := d.stream[d.next]
		if !e.Slot.Valid() {
			d.next++
			continue
		}
		if group[e.Slot] != nil || (e.Slot == pipeline.Slot1 && group[pipeline.Slot2] != nil) {
			break
		}
		group[e.Slot] = &inflight{event: e}
		d.next++
	}
	return group
}

func (d *streamDriver) drained() bool {
	if d.next < len(d.stream) {
		return false
	}
	for s := range d.latches {
		for _, b := range d.latches[s] {
			if b != nil {
				return false
			}
		}
	}
	return true
}

// step evaluates one cycle.
func (d *streamDriver) step() {
	in := &pipeline.CycleInputs{}
	fetched := d.fetch()

	for s := pipeline.Slot1; s <= pipeline.Slot2; s++ {
		sig := in.Slot(s)
		if f := fetched[s]; f != nil {
			sig.Fetch.PC = f.event.PC
		}
		if m := d.latches[s][resolveDepth-1]; m != nil {
			sig.Memory.Branch = pipeline.BranchOutcome{
				IsBranch:  true,
				Predicted: m.predicted,
				Taken:     m.event.Taken,
				PC:        m.event.PC,
				PCPlus:    m.event.PC + 1,
				Target:    m.event.Target,
			}
		}
	}

	out := d.core.Tick(in)

	for s := pipeline.Slot1; s <= pipeline.Slot2; s++ {
		if f := fetched[s]; f != nil {
			f.predicted = out.Predictions[s].Taken
		}
		copy(d.latches[s][1:], d.latches[s][:resolveDepth-1])
		d.latches[s][0] = fetched[s]
	}
}

// run drives the whole stream and drains the pipeline.
func (d *streamDriver) run() {
	for !d.drained() {
		d.step()
	}
}

// loopStream returns iterations of a backward loop branch in one lane:
// taken every time except the last.
func loopStream(slot pipeline.Slot, pc, target uint64, iterations int) []BranchEvent {
	events := make([]BranchEvent, 0, iterations)
	for i := 0; i < iterations; i++ {
		events = append(events, BranchEvent{
			Slot:   slot,
			PC:     pc,
			Target: target,
			Taken:  i < iterations-1,
		})
	}
	return events
}

// interleave merges streams round-robin.
func interleave(streams ...[]BranchEvent) []BranchEvent {
	var merged []BranchEvent
	for i := 0; ; i++ {
		added := false
		for _, s := range streams {
			if i < len(s) {
				merged = append(merged, s[i])
				added = true
			}
		}
		if !added {
			return merged
		}
	}
}
