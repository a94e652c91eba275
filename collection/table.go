package collection

import (
	"sort"

	"fluent/tuple"
)

// Table is the only collection kind that survives across ticks (spec.md
// §3). Merge is visible immediately; DeferMerge/DeferDelete queue into side
// maps applied at Tick, per original_source/src/collections/table.h.
type Table struct {
	name    string
	schema  tuple.Schema
	ts      map[string]*tableEntry
	deferMg map[string]*tableEntry
	deferDl map[string]*tableEntry
}

type tableEntry struct {
	tuple tuple.Tuple
	ids   *TupleIds
}

// NewTable constructs an empty table with the given name and schema.
func NewTable(name string, schema tuple.Schema) *Table {
	return &Table{
		name:    name,
		schema:  schema,
		ts:      make(map[string]*tableEntry),
		deferMg: make(map[string]*tableEntry),
		deferDl: make(map[string]*tableEntry),
	}
}

func (t *Table) Name() string            { return t.name }
func (t *Table) ColumnNames() []string   { return t.schema.Names }
func (t *Table) Schema() tuple.Schema    { return t.schema }
func (t *Table) Kind() Kind              { return KindTable }

// Get returns the table's current contents, ordered by tuple key.
func (t *Table) Get() []Entry {
	return sortedEntries(t.ts)
}

// Merge inserts t immediately, merging insertion times if the tuple value
// is already present (spec.md §3 invariant 1).
func (table *Table) Merge(t tuple.Tuple, hash uint64, logicalTime int64) {
	checkArity(table.schema, t)
	mergeInto(table.ts, t, hash, logicalTime)
}

// DeferMerge queues t to be merged at the next Tick.
func (table *Table) DeferMerge(t tuple.Tuple, hash uint64, logicalTime int64) {
	checkArity(table.schema, t)
	mergeInto(table.deferMg, t, hash, logicalTime)
}

// DeferDelete queues t to be removed at the next Tick.
func (table *Table) DeferDelete(t tuple.Tuple, hash uint64, logicalTime int64) {
	checkArity(table.schema, t)
	mergeInto(table.deferDl, t, hash, logicalTime)
}

// Tick applies the pending deferred merges and deletes, returning the
// tuples that were removed for the lineage sink to record.
func (t *Table) Tick() []tuple.Tuple {
	for key, pending := range t.deferMg {
		if existing, ok := t.ts[key]; ok {
			existing.ids.Merge(pending.ids.Hash, firstTime(pending.ids))
			for when := range pending.ids.Times {
				existing.ids.Times[when] = struct{}{}
			}
		} else {
			t.ts[key] = pending
		}
	}

	var deleted []tuple.Tuple
	for key, pending := range t.deferDl {
		if existing, ok := t.ts[key]; ok {
			if existing.ids.Hash != pending.ids.Hash {
				panic("collection: hash mismatch on deferred delete")
			}
			deleted = append(deleted, existing.tuple)
			delete(t.ts, key)
		}
	}

	t.deferMg = make(map[string]*tableEntry)
	t.deferDl = make(map[string]*tableEntry)
	return deleted
}

func mergeInto(m map[string]*tableEntry, t tuple.Tuple, hash uint64, logicalTime int64) {
	key := tuple.Key(t)
	if existing, ok := m[key]; ok {
		existing.ids.Merge(hash, logicalTime)
		return
	}
	m[key] = &tableEntry{tuple: t, ids: newTupleIds(hash, logicalTime)}
}

func firstTime(ids *TupleIds) int64 {
	for when := range ids.Times {
		return when
	}
	return 0
}

func sortedEntries(m map[string]*tableEntry) []Entry {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Entry, len(keys))
	for i, k := range keys {
		e := m[k]
		out[i] = Entry{Tuple: e.tuple, Ids: e.ids}
	}
	return out
}
