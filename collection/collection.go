// Package collection implements Fluent's typed tuple stores: tables,
// scratches, channels, stdin, stdout, and periodics (spec.md §3, §4.1).
//
// Each kind is grounded on the corresponding header in
// _examples/original_source/src/collections/*.h, translated from C++
// template classes into Go structs operating on tuple.Tuple ([]any) plus a
// tuple.Schema recorded at construction, per the "tagged variants plus
// run-time shape checks" design note.
package collection

import (
	"fmt"

	"fluent/tuple"
)

// Kind enumerates the six collection kinds named by spec.md §3. It is
// exhaustive; lattice collections are an out-of-core extension point (see
// SPEC_FULL.md §7, Open Question 3) and are not represented here.
type Kind int

const (
	KindTable Kind = iota
	KindScratch
	KindChannel
	KindStdin
	KindStdout
	KindPeriodic
)

func (k Kind) String() string {
	switch k {
	case KindTable:
		return "table"
	case KindScratch:
		return "scratch"
	case KindChannel:
		return "channel"
	case KindStdin:
		return "stdin"
	case KindStdout:
		return "stdout"
	case KindPeriodic:
		return "periodic"
	default:
		return "unknown"
	}
}

// LocalTupleId uniquely identifies an occurrence of a tuple in a collection
// at a moment: (collection_name, hash, logical_time_inserted), per spec.md
// §3.
type LocalTupleId struct {
	Collection   string
	Hash         uint64
	TimeInserted int64
}

// TupleIds is the per-tuple bookkeeping attached to every tuple residing in
// a collection: the content hash plus every logical time at which this
// tuple value was inserted. Ported from
// original_source/src/collections/collection_tuple_ids.h.
type TupleIds struct {
	Hash  uint64
	Times map[int64]struct{}
}

// newTupleIds starts the bookkeeping for a tuple first inserted at time t.
func newTupleIds(hash uint64, t int64) *TupleIds {
	return &TupleIds{Hash: hash, Times: map[int64]struct{}{t: {}}}
}

// Merge records an additional insertion time for the same tuple value,
// asserting (per spec.md §4.1 tick semantics) that the hash matches; a
// mismatch is an invariant break and panics.
func (ti *TupleIds) Merge(hash uint64, t int64) {
	if ti.Hash != hash {
		panic(fmt.Sprintf("collection: hash mismatch merging tuple ids: have %d, got %d", ti.Hash, hash))
	}
	ti.Times[t] = struct{}{}
}

// Entry pairs a tuple with its bookkeeping, as returned by Get().
type Entry struct {
	Tuple tuple.Tuple
	Ids   *TupleIds
}

// Collection is the common surface every collection kind exposes: name,
// declared columns, a snapshot read, and the per-tick lifecycle hook.
type Collection interface {
	Name() string
	ColumnNames() []string
	Schema() tuple.Schema
	Kind() Kind
	// Get returns every tuple currently resident, in a stable order:
	// sorted by the string form of tuple.Key, which compares columns as
	// text (int64 10 sorts before 2), not by numeric value.
	Get() []Entry
	// Tick applies deferred writes (tables) or clears transient state
	// (everything else) and returns the tuples removed during the tick,
	// for the lineage sink to record as deletions.
	Tick() []tuple.Tuple
}

// checkArity panics if t does not match schema's arity; every write
// primitive calls it up front, once per tuple written.
func checkArity(schema tuple.Schema, t tuple.Tuple) {
	if len(t) != schema.Arity() {
		panic(fmt.Sprintf("collection: tuple arity %d does not match schema arity %d", len(t), schema.Arity()))
	}
}
