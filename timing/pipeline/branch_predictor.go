package pipeline

import "fmt"

// Counter is a 2-bit saturating branch counter.
type Counter uint8

const (
	// StronglyNotTaken is the reset state.
	StronglyNotTaken Counter = iota
	// WeaklyNotTaken predicts not taken.
	WeaklyNotTaken
	// WeaklyTaken predicts taken.
	WeaklyTaken
	// StronglyTaken predicts taken.
	StronglyTaken
)

// Taken returns the prediction bit, the counter's MSB.
func (c Counter) Taken() bool {
	return c >= WeaklyTaken
}

// Next returns the counter after one resolved branch, clamped at both ends.
func (c Counter) Next(taken bool) Counter {
	if taken {
		if c < StronglyTaken {
			return c + 1
		}
		return c
	}
	if c > StronglyNotTaken {
		return c - 1
	}
	return c
}

func (c Counter) String() string {
	switch c {
	case StronglyNotTaken:
		return "strongly-not-taken"
	case WeaklyNotTaken:
		return "weakly-not-taken"
	case WeaklyTaken:
		return "weakly-taken"
	case StronglyTaken:
		return "strongly-taken"
	default:
		return fmt.Sprintf("counter(%d)", uint8(c))
	}
}

// BranchPredictorConfig holds configuration for the branch predictor.
type BranchPredictorConfig struct {
	// Table selects how entries are stored. Default is TableIdeal.
	Table TableKind
	// Entries is the capacity of finite tables. Must be a power of 2 for
	// set-associative tables. Default is 1024.
	Entries int
	// Associativity is the number of ways of a set-associative table.
	// 1 gives a direct-mapped table. Default is 1.
	Associativity int
}

// DefaultBranchPredictorConfig returns a default configuration.
func DefaultBranchPredictorConfig() BranchPredictorConfig {
	return BranchPredictorConfig{
		Table:         TableIdeal,
		Entries:       1024,
		Associativity: 1,
	}
}

// BranchPredictorStats holds statistics for the branch predictor.
// Every field is counted at resolution time, so predictions stay free of
// side effects.
type BranchPredictorStats struct {
	// Resolutions is the total number of resolved branches.
	Resolutions uint64
	// SlotResolutions splits Resolutions by the resolving slot.
	SlotResolutions [NumSlots]uint64
	// Correct is the number of resolutions the table predicted correctly.
	Correct uint64
	// Mispredictions is the number of incorrect predictions.
	Mispredictions uint64
	// BTBHits counts taken resolutions whose target was already stored.
	BTBHits uint64
	// BTBMisses counts taken resolutions that found no stored target.
	BTBMisses uint64
}

// Accuracy returns the prediction accuracy as a percentage.
func (s BranchPredictorStats) Accuracy() float64 {
	if s.Resolutions == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Resolutions) * 100
}

// MispredictionRate returns the misprediction rate as a percentage.
func (s BranchPredictorStats) MispredictionRate() float64 {
	if s.Resolutions == 0 {
		return 0
	}
	return float64(s.Mispredictions) / float64(s.Resolutions) * 100
}

// BTBHitRate returns the BTB hit rate as a percentage.
func (s BranchPredictorStats) BTBHitRate() float64 {
	total := s.BTBHits + s.BTBMisses
	if total == 0 {
		return 0
	}
	return float64(s.BTBHits) / float64(total) * 100
}

// Prediction represents a branch prediction result.
type Prediction struct {
	// Taken indicates whether the branch is predicted to be taken.
	Taken bool
	// Target is the predicted target: the BTB entry on a hit, the
	// fall-through address on a miss.
	Target uint64
	// TargetKnown indicates whether Target came from the BTB.
	TargetKnown bool
}

// Resolution is a branch outcome reported by the memory stage. It is the
// only input that mutates predictor state.
type Resolution struct {
	Slot   Slot
	PC     uint64
	Taken  bool
	Target uint64
}

// BranchPredictor implements a 2-bit saturating counter (bimodal) predictor
// with a Branch Target Buffer (BTB). Both slots share one table keyed by
// fetch address.
//
// The predictor has a single owner. Callers that model a clock edge read
// with Predict during the cycle and apply the cycle's outcomes with Commit,
// so resolutions of cycle N become visible to predictions of cycle N+1.
type BranchPredictor struct {
	table  predictorTable
	config BranchPredictorConfig

	// Statistics
	stats BranchPredictorStats
}

// NewBranchPredictor creates a new branch predictor with the given
// configuration. Zero fields take their defaults.
func NewBranchPredictor(config BranchPredictorConfig) *BranchPredictor {
	defaults := DefaultBranchPredictorConfig()
	if config.Table == "" {
		config.Table = defaults.Table
	}
	if config.Entries == 0 {
		config.Entries = defaults.Entries
	}
	if config.Associativity == 0 {
		config.Associativity = defaults.Associativity
	}

	return &BranchPredictor{
		table:  newPredictorTable(config),
		config: config,
	}
}

// Config returns the predictor configuration.
func (bp *BranchPredictor) Config() BranchPredictorConfig {
	return bp.config
}

// Predict makes a branch prediction for the instruction fetched at pc in
// the given slot. It never modifies predictor state.
func (bp *BranchPredictor) Predict(slot Slot, pc uint64) Prediction {
	e, ok := bp.table.lookup(pc)
	if !ok {
		// Reset default: strongly not taken, fall through.
		return Prediction{Target: pc + 1}
	}

	pred := Prediction{
		Taken:  e.counter.Taken(),
		Target: pc + 1,
	}
	if e.targetValid {
		pred.Target = e.target
		pred.TargetKnown = true
	}
	return pred
}

// Counter returns the current counter state for pc.
func (bp *BranchPredictor) Counter(pc uint64) Counter {
	e, _ := bp.table.lookup(pc)
	return e.counter
}

// Resolve updates the predictor with one branch outcome immediately.
func (bp *BranchPredictor) Resolve(slot Slot, pc uint64, taken bool, target uint64) {
	bp.Commit([]Resolution{{Slot: slot, PC: pc, Taken: taken, Target: target}})
}

// Commit applies one cycle's resolutions. Every update is computed from the
// state before the cycle and then written in slot order, so when both slots
// resolve the same address in one cycle the slot 2 write wins.
func (bp *BranchPredictor) Commit(events []Resolution) {
	if len(events) == 0 {
		return
	}

	updates := make([]tableEntry, len(events))
	for i, r := range events {
		updates[i] = bp.nextEntry(r)
	}

	for i, r := range events {
		bp.table.store(r.PC, updates[i])
	}
}

// nextEntry computes the entry for r.PC after resolution r and records
// statistics against the current state.
func (bp *BranchPredictor) nextEntry(r Resolution) tableEntry {
	e, _ := bp.table.lookup(r.PC)

	bp.stats.Resolutions++
	if r.Slot.Valid() {
		bp.stats.SlotResolutions[r.Slot]++
	}
	if e.counter.Taken() == r.Taken {
		bp.stats.Correct++
	} else {
		bp.stats.Mispredictions++
	}

	// Update 2-bit saturating counter
	e.counter = e.counter.Next(r.Taken)

	// Update BTB if branch was taken; a not-taken outcome keeps the target.
	if r.Taken {
		if e.targetValid {
			bp.stats.BTBHits++
		} else {
			bp.stats.BTBMisses++
		}
		e.target = r.Target
		e.targetValid = true
	}

	return e
}

// Stats returns the branch predictor statistics.
func (bp *BranchPredictor) Stats() BranchPredictorStats {
	return bp.stats
}

// Reset clears all predictor state and statistics. Every address predicts
// strongly not taken with a BTB miss afterwards.
func (bp *BranchPredictor) Reset() {
	bp.table.reset()
	bp.stats = BranchPredictorStats{}
}
