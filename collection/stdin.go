package collection

import "fluent/tuple"

var stdinSchema = tuple.NewSchema([]string{"line"}, []tuple.ColumnType{tuple.String})

// Stdin holds terminal input lines received since the last tick, ported
// from original_source/src/collections/stdin.h.
type Stdin struct {
	ts map[string]*tableEntry
}

// NewStdin constructs an empty stdin collection.
func NewStdin() *Stdin { return &Stdin{ts: make(map[string]*tableEntry)} }

func (s *Stdin) Name() string          { return "stdin" }
func (s *Stdin) ColumnNames() []string { return stdinSchema.Names }
func (s *Stdin) Schema() tuple.Schema  { return stdinSchema }
func (s *Stdin) Kind() Kind            { return KindStdin }
func (s *Stdin) Get() []Entry          { return sortedEntries(s.ts) }

// Receive inserts a single terminal line, called by the scheduler's receive
// phase for each line read from the terminal.
func (s *Stdin) Receive(line string, hash uint64, logicalTime int64) {
	mergeInto(s.ts, tuple.Tuple{line}, hash, logicalTime)
}

func (s *Stdin) Tick() []tuple.Tuple {
	out := make([]tuple.Tuple, 0, len(s.ts))
	for _, e := range s.ts {
		out = append(out, e.tuple)
	}
	s.ts = make(map[string]*tableEntry)
	return out
}
