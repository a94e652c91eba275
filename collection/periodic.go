package collection

import (
	"time"

	"fluent/tuple"
)

var periodicSchema = tuple.NewSchema([]string{"id", "time"}, []tuple.ColumnType{tuple.Int64, tuple.Int64})

// Periodic is a two-column collection (id, time_point) that only the
// scheduler writes to, at firing time; rules never call Merge on it
// directly. Ported from original_source/src/collections/periodic.h.
type Periodic struct {
	name   string
	period time.Duration
	nextID int64
	ts     map[string]*tableEntry
}

// NewPeriodic constructs a periodic firing every period.
func NewPeriodic(name string, period time.Duration) *Periodic {
	return &Periodic{name: name, period: period, ts: make(map[string]*tableEntry)}
}

func (p *Periodic) Name() string          { return p.name }
func (p *Periodic) ColumnNames() []string { return periodicSchema.Names }
func (p *Periodic) Schema() tuple.Schema  { return periodicSchema }
func (p *Periodic) Kind() Kind            { return KindPeriodic }
func (p *Periodic) Get() []Entry          { return sortedEntries(p.ts) }

// Period returns the firing interval.
func (p *Periodic) Period() time.Duration { return p.period }

// GetAndIncrementID returns a fresh monotonic id for this periodic's next
// firing, then advances the counter.
func (p *Periodic) GetAndIncrementID() int64 {
	id := p.nextID
	p.nextID++
	return id
}

// Merge is called only by the scheduler when a deadline fires: it inserts
// (id, timePoint) at the current logical time.
func (p *Periodic) Merge(id int64, timePoint int64, hash uint64, logicalTime int64) {
	mergeInto(p.ts, tuple.Tuple{id, timePoint}, hash, logicalTime)
}

func (p *Periodic) Tick() []tuple.Tuple {
	out := make([]tuple.Tuple, 0, len(p.ts))
	for _, e := range p.ts {
		out = append(out, e.tuple)
	}
	p.ts = make(map[string]*tableEntry)
	return out
}
