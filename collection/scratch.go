package collection

import "fluent/tuple"

// Scratch holds tuples for a single tick only: Merge inserts immediately,
// and Tick empties the collection, per spec.md §3 and
// original_source/src/collections/scratch.h.
type Scratch struct {
	name   string
	schema tuple.Schema
	ts     map[string]*tableEntry
}

// NewScratch constructs an empty scratch.
func NewScratch(name string, schema tuple.Schema) *Scratch {
	return &Scratch{name: name, schema: schema, ts: make(map[string]*tableEntry)}
}

func (s *Scratch) Name() string          { return s.name }
func (s *Scratch) ColumnNames() []string { return s.schema.Names }
func (s *Scratch) Schema() tuple.Schema  { return s.schema }
func (s *Scratch) Kind() Kind            { return KindScratch }

func (s *Scratch) Get() []Entry { return sortedEntries(s.ts) }

// Merge inserts t immediately into the scratch.
func (s *Scratch) Merge(t tuple.Tuple, hash uint64, logicalTime int64) {
	checkArity(s.schema, t)
	mergeInto(s.ts, t, hash, logicalTime)
}

// Tick empties the scratch, returning everything it held.
func (s *Scratch) Tick() []tuple.Tuple {
	out := make([]tuple.Tuple, 0, len(s.ts))
	for _, e := range s.ts {
		out = append(out, e.tuple)
	}
	s.ts = make(map[string]*tableEntry)
	return out
}
