package pipeline

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// TableKind selects how the branch predictor stores its entries.
//
// Every organization is tagged with the full fetch address. An address that
// is not in the table predicts from the reset default (strongly not taken,
// BTB miss), so aliasing between distinct addresses can only cost an
// eviction, never a borrowed prediction.
type TableKind string

const (
	// TableIdeal is an unbounded map with no eviction.
	TableIdeal TableKind = "ideal"
	// TableSetAssociative indexes sets by the low-order address bits and
	// replaces the least recently resolved way. With one way it is a
	// direct-mapped table where the last writer wins.
	TableSetAssociative TableKind = "set-associative"
	// TableLRU is a fully associative table that evicts the least recently
	// resolved address.
	TableLRU TableKind = "lru"
)

// tableEntry is one predictor entry: the counter and the BTB target.
type tableEntry struct {
	counter     Counter
	target      uint64
	targetValid bool
}

// predictorTable stores entries keyed by fetch address. lookup must not
// change replacement state.
type predictorTable interface {
	lookup(pc uint64) (tableEntry, bool)
	store(pc uint64, e tableEntry)
	reset()
}

func newPredictorTable(config BranchPredictorConfig) predictorTable {
	switch config.Table {
	case TableIdeal:
		return newIdealTable()
	case TableSetAssociative:
		return newSetAssocTable(config.Entries, config.Associativity)
	case TableLRU:
		return newLRUTable(config.Entries)
	default:
		panic(fmt.Sprintf("pipeline: unknown predictor table %q", config.Table))
	}
}

// idealTable never evicts.
type idealTable struct {
	entries map[uint64]tableEntry
}

func newIdealTable() *idealTable {
	return &idealTable{entries: make(map[uint64]tableEntry)}
}

func (t *idealTable) lookup(pc uint64) (tableEntry, bool) {
	e, ok := t.entries[pc]
	return e, ok
}

func (t *idealTable) store(pc uint64, e tableEntry) {
	t.entries[pc] = e
}

func (t *idealTable) reset() {
	t.entries = make(map[uint64]tableEntry)
}

// setAssocTable keeps tags in an Akita cache directory with one-address
// blocks; entry data is indexed by (setID * associativity + wayID).
type setAssocTable struct {
	directory     *akitacache.DirectoryImpl
	entries       []tableEntry
	associativity int
}

func newSetAssocTable(numEntries, associativity int) *setAssocTable {
	if associativity <= 0 {
		associativity = 1
	}
	numSets := numEntries / associativity
	if numSets == 0 {
		numSets = 1
	}

	return &setAssocTable{
		directory: akitacache.NewDirectory(
			numSets,
			associativity,
			1,
			akitacache.NewLRUVictimFinder(),
		),
		entries:       make([]tableEntry, numSets*associativity),
		associativity: associativity,
	}
}

func (t *setAssocTable) index(block *akitacache.Block) int {
	return block.SetID*t.associativity + block.WayID
}

func (t *setAssocTable) lookup(pc uint64) (tableEntry, bool) {
	block := t.directory.Lookup(0, pc)
	if block == nil || !block.IsValid {
		return tableEntry{}, false
	}
	return t.entries[t.index(block)], true
}

func (t *setAssocTable) store(pc uint64, e tableEntry) {
	block := t.directory.Lookup(0, pc)
	if block == nil || !block.IsValid {
		block = t.directory.FindVictim(pc)
		if block == nil {
			return
		}
		block.Tag = pc
		block.IsValid = true
	}

	t.entries[t.index(block)] = e
	t.directory.Visit(block)
}

func (t *setAssocTable) reset() {
	t.directory.Reset()
	for i := range t.entries {
		t.entries[i] = tableEntry{}
	}
}

// lruTable is fully associative. Peek keeps lookups out of the recency
// order, so only resolutions refresh an entry.
type lruTable struct {
	cache *lru.Cache
}

func newLRUTable(size int) *lruTable {
	cache, err := lru.New(size)
	if err != nil {
		panic(fmt.Sprintf("pipeline: lru predictor table: %v", err))
	}
	return &lruTable{cache: cache}
}

func (t *lruTable) lookup(pc uint64) (tableEntry, bool) {
	v, ok := t.cache.Peek(pc)
	if !ok {
		return tableEntry{}, false
	}
	return v.(tableEntry), true
}

func (t *lruTable) store(pc uint64, e tableEntry) {
	t.cache.Add(pc, e)
}

func (t *lruTable) reset() {
	t.cache.Purge()
}
