package pipeline

import (
	"sort"

	"fluent/collection"
	"fluent/tuple"
)

// AggKind enumerates the aggregates spec.md §4.2 names: count, sum,
// average, min/max, and set-collect.
type AggKind int

const (
	Count AggKind = iota
	Sum
	Average
	Min
	Max
	Collect
)

// Aggregate specifies one non-key column an output column is computed
// from, and how.
type Aggregate struct {
	// Column is the input-schema column index this aggregate consumes.
	// Ignored by Count, which consumes no column.
	Column  int
	Kind    AggKind
	OutName string
}

func (a Aggregate) outType(in tuple.Schema) tuple.ColumnType {
	switch a.Kind {
	case Count:
		return tuple.Int64
	case Sum, Average:
		return tuple.Float64
	case Min, Max:
		return in.Types[a.Column]
	case Collect:
		return tuple.String
	default:
		return tuple.String
	}
}

type aggState struct {
	count    int64
	sum      float64
	min, max any
	haveMM   bool
	collect  []any
}

func (a Aggregate) zero() *aggState { return &aggState{} }

func (a Aggregate) accumulate(st *aggState, t tuple.Tuple) {
	st.count++
	if a.Kind == Count {
		return
	}
	v := t[a.Column]
	switch a.Kind {
	case Sum, Average:
		st.sum += toFloat(v)
	case Min:
		if !st.haveMM || less(v, st.min) {
			st.min = v
			st.haveMM = true
		}
	case Max:
		if !st.haveMM || less(st.max, v) {
			st.max = v
			st.haveMM = true
		}
	case Collect:
		st.collect = append(st.collect, v)
	}
}

func (a Aggregate) finish(st *aggState) any {
	switch a.Kind {
	case Count:
		return st.count
	case Sum:
		return st.sum
	case Average:
		if st.count == 0 {
			return 0.0
		}
		return st.sum / float64(st.count)
	case Min:
		return st.min
	case Max:
		return st.max
	case Collect:
		return st.collect
	default:
		return nil
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}

func less(a, b any) bool {
	switch x := a.(type) {
	case int64:
		return x < b.(int64)
	case float64:
		return x < b.(float64)
	case string:
		return x < b.(string)
	default:
		return false
	}
}

// GroupBy partitions in by the keys projection, accumulating each
// aggregate over every group's non-key columns. On exhaustion it yields one
// tuple per key: key columns followed by each aggregate's final value.
// Provenance for an emitted group unions every contributing input tuple's
// provenance, per spec.md §4.3.
func GroupBy(in Stage, keys []int, aggs ...Aggregate) Stage {
	schema := in.Schema().Project(keys...)
	names := append([]string(nil), schema.Names...)
	types := append([]tuple.ColumnType(nil), schema.Types...)
	for _, a := range aggs {
		names = append(names, a.OutName)
		types = append(types, a.outType(in.Schema()))
	}
	return &groupByStage{
		in: in, keys: keys, aggs: aggs,
		schema: tuple.NewSchema(names, types),
	}
}

type groupByStage struct {
	in     Stage
	keys   []int
	aggs   []Aggregate
	schema tuple.Schema
}

func (s *groupByStage) Schema() tuple.Schema { return s.schema }

type groupBucket struct {
	keyTuple   tuple.Tuple
	states     []*aggState
	provenance []collection.LocalTupleId
}

func (s *groupByStage) ForEach(yield func(Provenanced)) {
	order := make([]string, 0)
	buckets := make(map[string]*groupBucket)

	// An empty key list is a global aggregate: spec.md §8's "Counter loop"
	// property requires count(t) over an empty t to yield a single row
	// with count 0, not zero rows, so the whole-input group is seeded up
	// front rather than only created when a tuple arrives for it.
	if len(s.keys) == 0 {
		b := &groupBucket{keyTuple: tuple.Tuple{}}
		for _, a := range s.aggs {
			b.states = append(b.states, a.zero())
		}
		key := tuple.Key(tuple.Tuple{})
		buckets[key] = b
		order = append(order, key)
	}

	s.in.ForEach(func(p Provenanced) {
		key := tuple.Key(p.Tuple.Project(s.keys...))
		b, ok := buckets[key]
		if !ok {
			b = &groupBucket{keyTuple: p.Tuple.Project(s.keys...)}
			for _, a := range s.aggs {
				b.states = append(b.states, a.zero())
			}
			buckets[key] = b
			order = append(order, key)
		}
		for i, a := range s.aggs {
			a.accumulate(b.states[i], p.Tuple)
		}
		b.provenance = unionProvenance(b.provenance, p.Provenance)
	})

	sort.Strings(order)
	for _, key := range order {
		b := buckets[key]
		out := b.keyTuple.Clone()
		for i, a := range s.aggs {
			out = append(out, a.finish(b.states[i]))
		}
		yield(Provenanced{Tuple: out, Provenance: b.provenance})
	}
}
