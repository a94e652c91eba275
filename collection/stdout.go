package collection

import (
	"fmt"
	"io"

	"fluent/tuple"
)

var stdoutSchema = tuple.NewSchema([]string{"line"}, []tuple.ColumnType{tuple.String})

// Stdout prints its single string column immediately on Merge, or buffers
// for printing at Tick on DeferMerge, ported from
// original_source/src/collections/stdout.h.
type Stdout struct {
	w       io.Writer
	pending []tuple.Tuple
}

// NewStdout constructs a stdout collection writing to w.
func NewStdout(w io.Writer) *Stdout { return &Stdout{w: w} }

func (s *Stdout) Name() string          { return "stdout" }
func (s *Stdout) ColumnNames() []string { return stdoutSchema.Names }
func (s *Stdout) Schema() tuple.Schema  { return stdoutSchema }
func (s *Stdout) Kind() Kind            { return KindStdout }
func (s *Stdout) Get() []Entry          { return nil }

// Merge prints t's single column immediately.
func (s *Stdout) Merge(t tuple.Tuple, hash uint64, logicalTime int64) error {
	checkArity(stdoutSchema, t)
	line, ok := t[0].(string)
	if !ok {
		return fmt.Errorf("collection: stdout column is not a string")
	}
	_, err := fmt.Fprintln(s.w, line)
	return err
}

// DeferMerge buffers t for printing at the next Tick.
func (s *Stdout) DeferMerge(t tuple.Tuple, hash uint64, logicalTime int64) {
	checkArity(stdoutSchema, t)
	s.pending = append(s.pending, t)
}

// Tick prints every buffered line and clears the buffer.
func (s *Stdout) Tick() []tuple.Tuple {
	for _, t := range s.pending {
		fmt.Fprintln(s.w, t[0])
	}
	s.pending = nil
	return nil
}
