// Package trace writes a per-cycle log of the control plane's decisions.
//
// Each cycle is one block. The header line carries slot 1's fetch PC in the
// "cycle: N, PC: P" form read by existing cycle-log parsers; slot 2's PC
// follows on its own line:
//
//	CYCLE_START
//	cycle: 3, PC: 16
//	PC2: 17
//	predict1: taken=1 target=4 known=1
//	predict2: taken=0 target=18 known=0
//	stall: 11=0 21=0 12=1 22=0
//	flush: ifid1=0 ex=0 mem2=0
//	cpc1: use=0 pc=0
//	cpc2: use=0 pc=0
//	forward: a1=0 b1=1 a2=0 b2=3 ba=0 bb=0
//	CYCLE_END
package trace

import (
	"bufio"
	"fmt"
	"io"

	"github.com/sarchlab/dualsim/timing/pipeline"
)

const (
	blockStart = "CYCLE_START"
	blockEnd   = "CYCLE_END"
)

// Writer implements pipeline.Tracer on top of an io.Writer. Output is
// buffered; call Flush when done.
type Writer struct {
	w   *bufio.Writer
	err error
}

// NewWriter creates a trace writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func bit(b bool) int {
	if b {
		return 1
	}
	return 0
}

// TraceCycle writes one cycle block. After the first write error all
// further cycles are dropped; the error is reported by Flush.
func (t *Writer) TraceCycle(cycle uint64, in *pipeline.CycleInputs, out *pipeline.CycleOutputs) {
	if t.err != nil {
		return
	}

	h := out.Hazards
	f := out.Forwarding

	t.printf("%s\n", blockStart)
	t.printf("cycle: %d, PC: %d\n", cycle, in.Slot(pipeline.Slot1).Fetch.PC)
	t.printf("PC2: %d\n", in.Slot(pipeline.Slot2).Fetch.PC)
	for s := pipeline.Slot1; s <= pipeline.Slot2; s++ {
		p := out.Predictions[s]
		t.printf("predict%s: taken=%d target=%d known=%d\n",
			s, bit(p.Taken), p.Target, bit(p.TargetKnown))
	}
	t.printf("stall: 11=%d 21=%d 12=%d 22=%d\n",
		bit(h.Stall11), bit(h.Stall21), bit(h.Stall12), bit(h.Stall22))
	t.printf("flush: ifid1=%d ex=%d mem2=%d\n",
		bit(h.FlushIFID1), bit(h.FlushEX), bit(h.FlushMEM2))
	for s := pipeline.Slot1; s <= pipeline.Slot2; s++ {
		t.printf("cpc%s: use=%d pc=%d\n", s, bit(h.UseCorrectedPC(s)), out.CorrectedPC[s])
	}
	t.printf("forward: a1=%d b1=%d a2=%d b2=%d ba=%d bb=%d\n",
		f.ForwardA1, f.ForwardB1, f.ForwardA2, f.ForwardB2,
		bit(f.ForwardBranchA), bit(f.ForwardBranchB))
	t.printf("%s\n", blockEnd)
}

func (t *Writer) printf(format string, args ...interface{}) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintf(t.w, format, args...)
}

// Flush writes buffered output and returns the first error seen.
func (t *Writer) Flush() error {
	if t.err != nil {
		return t.err
	}
	t.err = t.w.Flush()
	return t.err
}
