// Package scenario loads YAML stimulus files for the control plane.
//
// A scenario is a list of cycle records. Each record gives the signals of
// both slots, an optional repeat count, and optional expected outputs:
//
//	name: load-use
//	cycles:
//	  - slot1:
//	      execute: {write_reg: 5, reg_write: true, mem_read: true}
//	      decode: {rs: 5}
//	    expect:
//	      stall11: true
//	  - repeat: 3
package scenario

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/sarchlab/dualsim/timing/pipeline"
)

var (
	// ErrEmptyScenario is returned for a scenario without cycles.
	ErrEmptyScenario = errors.New("scenario has no cycles")
	// ErrInvalidRepeat is returned for a negative repeat count.
	ErrInvalidRepeat = errors.New("invalid repeat count")
)

// Step is one cycle record, applied Repeat times.
type Step struct {
	// Repeat is the number of consecutive cycles driven with these
	// signals. Zero means once.
	Repeat int `yaml:"repeat"`

	Slot1 pipeline.SlotSignals `yaml:"slot1"`
	Slot2 pipeline.SlotSignals `yaml:"slot2"`

	// Expect is checked on every repetition.
	Expect *Expect `yaml:"expect"`
}

// Count returns how many cycles the step drives.
func (s *Step) Count() int {
	if s.Repeat == 0 {
		return 1
	}
	return s.Repeat
}

// Inputs returns the cycle inputs of the step.
func (s *Step) Inputs() *pipeline.CycleInputs {
	in := &pipeline.CycleInputs{}
	*in.Slot(pipeline.Slot1) = s.Slot1
	*in.Slot(pipeline.Slot2) = s.Slot2
	return in
}

// Scenario is a named sequence of cycle records.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Steps       []Step `yaml:"cycles"`
}

// Cycles returns the total number of cycles the scenario drives.
func (sc *Scenario) Cycles() int {
	total := 0
	for i := range sc.Steps {
		total += sc.Steps[i].Count()
	}
	return total
}

// Validate checks the structure of the scenario. Register ranges are left
// to the control plane's strict mode.
func (sc *Scenario) Validate() error {
	if len(sc.Steps) == 0 {
		return errors.Wrapf(ErrEmptyScenario, "scenario %q", sc.Name)
	}
	for i := range sc.Steps {
		if sc.Steps[i].Repeat < 0 {
			return errors.Wrapf(ErrInvalidRepeat, "step %d: repeat = %d", i, sc.Steps[i].Repeat)
		}
	}
	return nil
}

// Parse decodes a scenario from YAML. Unknown keys are rejected.
func Parse(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	sc := &Scenario{}
	if err := dec.Decode(sc); err != nil {
		if err == io.EOF {
			return nil, ErrEmptyScenario
		}
		return nil, errors.Wrap(err, "failed to parse scenario")
	}

	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

// Load reads a scenario file. A scenario without a name takes the file
// path as its name.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read scenario file")
	}

	sc, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "scenario %s", path)
	}
	if sc.Name == "" {
		sc.Name = path
	}
	return sc, nil
}
