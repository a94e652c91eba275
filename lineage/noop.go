package lineage

import "fluent/tuple"

// NoopSink discards every call. Useful for tests and for running a node
// without a lineage store configured.
type NoopSink struct{}

func (NoopSink) Init() error { return nil }
func (NoopSink) AddCollection(string, string, []string, []tuple.ColumnType) error { return nil }
func (NoopSink) AddRule(int, bool, string) error                                  { return nil }
func (NoopSink) InsertTuple(string, int64, tuple.Tuple) error                      { return nil }
func (NoopSink) DeleteTuple(string, int64, tuple.Tuple) error                      { return nil }
func (NoopSink) AddDerivedLineage(string, uint64, int, bool, string, uint64, int64) error {
	return nil
}
func (NoopSink) AddNetworkedLineage(string, int64, string, uint64, int64) error { return nil }
func (NoopSink) Exec(string, ...any) error                                     { return nil }

var _ Sink = NoopSink{}
