package pipeline

import (
	"github.com/pkg/errors"
)

var (
	// ErrRegisterOutOfRange is returned for register numbers >= NumRegisters.
	ErrRegisterOutOfRange = errors.New("register number out of range")
	// ErrInvalidSlot is returned for a slot other than Slot1 or Slot2.
	ErrInvalidSlot = errors.New("invalid slot")
)

// Validate checks the caller contract for one cycle: every register number
// must name one of the NumRegisters architectural registers. The control
// units themselves are total and never call it.
func (in *CycleInputs) Validate() error {
	for s := Slot1; s <= Slot2; s++ {
		sig := in.Slot(s)
		regs := []struct {
			name string
			reg  uint8
		}{
			{"decode.rs", sig.Decode.Rs},
			{"decode.rt", sig.Decode.Rt},
			{"execute.rs", sig.Execute.Rs},
			{"execute.rt", sig.Execute.Rt},
			{"execute.write_reg", sig.Execute.WriteReg},
			{"memory.rs", sig.Memory.Rs},
			{"memory.rt", sig.Memory.Rt},
			{"memory.write_reg", sig.Memory.WriteReg},
			{"writeback.write_reg", sig.Writeback.WriteReg},
		}
		for _, r := range regs {
			if r.reg >= NumRegisters {
				return errors.Wrapf(ErrRegisterOutOfRange,
					"slot %v %s = %d", s, r.name, r.reg)
			}
		}
	}
	return nil
}

// Validate checks that the resolution names a valid slot.
func (r Resolution) Validate() error {
	if !r.Slot.Valid() {
		return errors.Wrapf(ErrInvalidSlot, "resolution at pc %d: slot %d", r.PC, int(r.Slot))
	}
	return nil
}
