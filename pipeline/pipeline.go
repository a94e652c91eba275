// Package pipeline implements Fluent's lazy relational-algebra combinators
// (spec.md §4.2): a single-pass, tuple-at-a-time stream parameterized by a
// runtime Schema, in the spirit of the original's template-based iterable →
// map/filter/project/cross/hash-join/group-by chain
// (original_source/src/ra/*.h, not kept verbatim here but mirrored stage by
// stage).
package pipeline

import (
	"sort"

	"fluent/collection"
	"fluent/tuple"
)

// Provenanced pairs a tuple produced by a pipeline stage with the set of
// LocalTupleIds it was derived from, used to emit derived-lineage events
// (spec.md §4.3). An empty Provenance means the tuple has no collection
// source (e.g. a literal Iterable).
type Provenanced struct {
	Tuple      tuple.Tuple
	Provenance []collection.LocalTupleId
}

// Stage is a lazily composed relational-algebra expression. ForEach drives
// the stage exactly once, in the underlying container's iteration order;
// stages are side-effect-free themselves, matching spec.md §4.2's "the
// pipeline itself is side-effect-free; effects come from the rule's write
// step".
type Stage interface {
	Schema() tuple.Schema
	ForEach(yield func(Provenanced))
}

// Iterable wraps an externally supplied, already-materialized slice of
// tuples with no provenance; this is for literal seed data (e.g. bootstrap
// rules), not collection reads.
func Iterable(schema tuple.Schema, items []tuple.Tuple) Stage {
	return &iterableStage{schema: schema, items: items}
}

type iterableStage struct {
	schema tuple.Schema
	items  []tuple.Tuple
}

func (s *iterableStage) Schema() tuple.Schema { return s.schema }
func (s *iterableStage) ForEach(yield func(Provenanced)) {
	for _, t := range s.items {
		yield(Provenanced{Tuple: t})
	}
}

// FromCollection cursors over a collection's current tuples, carrying each
// tuple's own LocalTupleId (using the earliest recorded insertion time) as
// provenance, per spec.md §4.3: "simple iterable/collection cursors carry
// the source tuple's own LocalTupleId".
func FromCollection(c collection.Collection) Stage {
	return &collectionStage{c: c}
}

type collectionStage struct {
	c collection.Collection
}

func (s *collectionStage) Schema() tuple.Schema { return s.c.Schema() }
func (s *collectionStage) ForEach(yield func(Provenanced)) {
	for _, e := range s.c.Get() {
		yield(Provenanced{
			Tuple:      e.Tuple,
			Provenance: []collection.LocalTupleId{{Collection: s.c.Name(), Hash: e.Ids.Hash, TimeInserted: earliestTime(e.Ids)}},
		})
	}
}

func earliestTime(ids *collection.TupleIds) int64 {
	first := true
	var min int64
	for when := range ids.Times {
		if first || when < min {
			min = when
			first = false
		}
	}
	return min
}

// FromMetaCollection cursors over (tuple, LocalTupleId) pairs, one per
// insertion time the tuple is known under, for rules whose lineage needs to
// distinguish each occurrence (spec.md §4.2's meta-collection(C)).
func FromMetaCollection(c collection.Collection) Stage {
	return &metaCollectionStage{c: c}
}

type metaCollectionStage struct {
	c collection.Collection
}

func (s *metaCollectionStage) Schema() tuple.Schema { return s.c.Schema() }
func (s *metaCollectionStage) ForEach(yield func(Provenanced)) {
	for _, e := range s.c.Get() {
		times := make([]int64, 0, len(e.Ids.Times))
		for when := range e.Ids.Times {
			times = append(times, when)
		}
		sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
		for _, when := range times {
			yield(Provenanced{
				Tuple:      e.Tuple,
				Provenance: []collection.LocalTupleId{{Collection: s.c.Name(), Hash: e.Ids.Hash, TimeInserted: when}},
			})
		}
	}
}

// Map applies f to every input tuple, producing outSchema-shaped output.
// Provenance passes through unchanged.
func Map(in Stage, outSchema tuple.Schema, f func(tuple.Tuple) tuple.Tuple) Stage {
	return &mapStage{in: in, schema: outSchema, f: f}
}

type mapStage struct {
	in     Stage
	schema tuple.Schema
	f      func(tuple.Tuple) tuple.Tuple
}

func (s *mapStage) Schema() tuple.Schema { return s.schema }
func (s *mapStage) ForEach(yield func(Provenanced)) {
	s.in.ForEach(func(p Provenanced) {
		yield(Provenanced{Tuple: s.f(p.Tuple), Provenance: p.Provenance})
	})
}

// Filter retains tuples for which p holds. Provenance passes through on
// tuples that survive and is dropped (with the tuple) on tuples that don't.
func Filter(in Stage, p func(tuple.Tuple) bool) Stage {
	return &filterStage{in: in, p: p}
}

type filterStage struct {
	in Stage
	p  func(tuple.Tuple) bool
}

func (s *filterStage) Schema() tuple.Schema { return s.in.Schema() }
func (s *filterStage) ForEach(yield func(Provenanced)) {
	s.in.ForEach(func(p Provenanced) {
		if s.p(p.Tuple) {
			yield(p)
		}
	})
}

// Project reorders/selects columns by index; indices out of range panic when
// the stage is constructed (via Schema.Project), before any tuple flows,
// matching spec.md §4.2's "statically enforced" range check as closely as a
// runtime shape check can.
func Project(in Stage, indices ...int) Stage {
	return &projectStage{in: in, schema: in.Schema().Project(indices...), indices: indices}
}

type projectStage struct {
	in      Stage
	schema  tuple.Schema
	indices []int
}

func (s *projectStage) Schema() tuple.Schema { return s.schema }
func (s *projectStage) ForEach(yield func(Provenanced)) {
	s.in.ForEach(func(p Provenanced) {
		yield(Provenanced{Tuple: p.Tuple.Project(s.indices...), Provenance: p.Provenance})
	})
}

// Cross computes the Cartesian product of left and right, output columns
// Cols_L ++ Cols_R. Per spec.md §4.2 the right side is materialized once
// per left tuple: right is re-driven via ForEach for every left tuple
// rather than cached once and replayed, since Stage is a single-pass
// cursor.
func Cross(left, right Stage) Stage {
	return &crossStage{left: left, right: right, schema: left.Schema().Concat(right.Schema())}
}

type crossStage struct {
	left, right Stage
	schema      tuple.Schema
}

func (s *crossStage) Schema() tuple.Schema { return s.schema }
func (s *crossStage) ForEach(yield func(Provenanced)) {
	s.left.ForEach(func(l Provenanced) {
		s.right.ForEach(func(r Provenanced) {
			yield(Provenanced{
				Tuple:      l.Tuple.Concat(r.Tuple),
				Provenance: unionProvenance(l.Provenance, r.Provenance),
			})
		})
	})
}

// HashJoin is an equi-join: it builds a multi-map of the right side keyed
// on the right-key projection, then streams left, emitting Cols_L ++ Cols_R
// for every matching right row.
func HashJoin(left Stage, leftKeys []int, right Stage, rightKeys []int) Stage {
	return &hashJoinStage{
		left: left, right: right,
		leftKeys: leftKeys, rightKeys: rightKeys,
		schema: left.Schema().Concat(right.Schema()),
	}
}

type hashJoinStage struct {
	left, right         Stage
	leftKeys, rightKeys []int
	schema              tuple.Schema
}

func (s *hashJoinStage) Schema() tuple.Schema { return s.schema }
func (s *hashJoinStage) ForEach(yield func(Provenanced)) {
	buckets := make(map[string][]Provenanced)
	s.right.ForEach(func(r Provenanced) {
		key := tuple.Key(r.Tuple.Project(s.rightKeys...))
		buckets[key] = append(buckets[key], r)
	})
	s.left.ForEach(func(l Provenanced) {
		key := tuple.Key(l.Tuple.Project(s.leftKeys...))
		for _, r := range buckets[key] {
			yield(Provenanced{
				Tuple:      l.Tuple.Concat(r.Tuple),
				Provenance: unionProvenance(l.Provenance, r.Provenance),
			})
		}
	})
}

func unionProvenance(a, b []collection.LocalTupleId) []collection.LocalTupleId {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	out := make([]collection.LocalTupleId, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}
