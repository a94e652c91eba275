package scheduler

import (
	"context"
	"testing"

	"fluent/collection"
	"fluent/lineage"
	"fluent/pipeline"
	"fluent/rule"
	"fluent/tuple"
)

func numsSchema() tuple.Schema {
	return tuple.NewSchema([]string{"n"}, []tuple.ColumnType{tuple.Int64})
}

func TestBootstrapRunsOnceAndPopulatesTable(t *testing.T) {
	nums := collection.NewTable("nums", numsSchema())
	collections := map[string]collection.Collection{"nums": nums}

	registry := rule.NewRegistry()
	seed := pipeline.Iterable(numsSchema(), []tuple.Tuple{{int64(1)}, {int64(2)}})
	registry.AddBootstrap("nums", rule.Merge, seed, "nums <= consts")

	sink := lineage.NewRecordingSink()
	s := New("node-1", collections, registry, nil, nil, sink)

	if err := s.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if got := len(nums.Get()); got != 2 {
		t.Fatalf("expected 2 tuples in nums, got %d", got)
	}
	if got := len(sink.Inserts); got != 2 {
		t.Fatalf("expected 2 recorded inserts, got %d", got)
	}
}

func TestBootstrapIsNoopWithoutBootstrapRules(t *testing.T) {
	nums := collection.NewTable("nums", numsSchema())
	collections := map[string]collection.Collection{"nums": nums}
	s := New("node-1", collections, rule.NewRegistry(), nil, nil, lineage.NewRecordingSink())

	if err := s.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if got := len(nums.Get()); got != 0 {
		t.Fatalf("expected empty table, got %d entries", got)
	}
}

func TestSteadyRuleRecordsDerivedLineage(t *testing.T) {
	nums := collection.NewTable("nums", numsSchema())
	nums.Merge(tuple.Tuple{int64(21)}, tuple.Hash(tuple.Tuple{int64(21)}), 0)

	doubled := collection.NewTable("doubled", numsSchema())
	collections := map[string]collection.Collection{"nums": nums, "doubled": doubled}

	registry := rule.NewRegistry()
	stage := pipeline.Map(pipeline.FromCollection(nums), numsSchema(), func(in tuple.Tuple) tuple.Tuple {
		return tuple.Tuple{in[0].(int64) * 2}
	})
	registry.AddSteady("doubled", rule.Merge, stage, "doubled <= nums map double")

	sink := lineage.NewRecordingSink()
	s := New("node-1", collections, registry, nil, nil, sink)

	if err := s.tickPhase(); err != nil {
		t.Fatalf("tickPhase: %v", err)
	}

	entries := doubled.Get()
	if len(entries) != 1 || entries[0].Tuple[0].(int64) != 42 {
		t.Fatalf("expected doubled to contain (42), got %v", entries)
	}
	if len(sink.Derived) != 1 {
		t.Fatalf("expected 1 derived lineage event, got %d", len(sink.Derived))
	}
	if sink.Derived[0].SrcName != "nums" || sink.Derived[0].TgtName != "doubled" {
		t.Fatalf("unexpected derived lineage event: %+v", sink.Derived[0])
	}
}

// TestCounterLoopSelfReferentialCount reproduces spec.md §8's "Counter
// loop": a table t(x:int) with the self-referential rule t <= count(t),
// ticked three times from empty. Since t <= count(t) reads t's pre-tick
// state and a global count(t) always emits one row (even over zero input
// tuples), each tick appends exactly one new value to t.
func TestCounterLoopSelfReferentialCount(t *testing.T) {
	schema := numsSchema()
	tbl := collection.NewTable("t", schema)
	collections := map[string]collection.Collection{"t": tbl}

	registry := rule.NewRegistry()
	stage := pipeline.GroupBy(pipeline.FromCollection(tbl), nil, pipeline.Aggregate{Kind: pipeline.Count, OutName: "x"})
	countAsInt64 := pipeline.Map(stage, schema, func(t tuple.Tuple) tuple.Tuple {
		return tuple.Tuple{t[0]}
	})
	registry.AddSteady("t", rule.Merge, countAsInt64, "t <= count(t)")

	sink := lineage.NewRecordingSink()
	s := New("node-1", collections, registry, nil, nil, sink)

	wantLen := []int{1, 2, 3}
	for tick, n := range wantLen {
		if err := s.tickPhase(); err != nil {
			t.Fatalf("tickPhase %d: %v", tick+1, err)
		}
		entries := tbl.Get()
		if len(entries) != n {
			t.Fatalf("tick %d: expected %d tuples in t, got %d: %v", tick+1, n, len(entries), entries)
		}
	}

	got := make(map[int64]bool)
	for _, e := range tbl.Get() {
		got[e.Tuple[0].(int64)] = true
	}
	for _, want := range []int64{0, 1, 2} {
		if !got[want] {
			t.Fatalf("expected t = {0,1,2} after 3 ticks, got %v", tbl.Get())
		}
	}
}

func TestTickPhaseClearsScratchAfterRule(t *testing.T) {
	doubled := collection.NewScratch("doubled", numsSchema())
	collections := map[string]collection.Collection{"doubled": doubled}
	registry := rule.NewRegistry()
	seed := pipeline.Iterable(numsSchema(), []tuple.Tuple{{int64(9)}})
	registry.AddSteady("doubled", rule.Merge, seed, "doubled <= consts")

	sink := lineage.NewRecordingSink()
	s := New("node-1", collections, registry, nil, nil, sink)

	if err := s.tickPhase(); err != nil {
		t.Fatalf("tickPhase: %v", err)
	}
	if got := len(doubled.Get()); got != 0 {
		t.Fatalf("expected scratch empty after tick, got %d entries", got)
	}
	if got := len(sink.Inserts); got != 2 {
		t.Fatalf("expected 1 insert + 1 delete recorded, got %d events", got)
	}
	if !sink.Inserts[1].Deleted {
		t.Fatalf("expected the scratch tuple's tick-clear recorded as a delete")
	}
}

func TestEphemeralChannelWriteRecordsImmediateDelete(t *testing.T) {
	schema := tuple.NewSchema([]string{"addr", "n"}, []tuple.ColumnType{tuple.Address, tuple.Int64})
	sent := &fakeAdapter{}
	ch, err := collection.NewChannel("out", schema, "node-1", sent)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	collections := map[string]collection.Collection{"out": ch}

	registry := rule.NewRegistry()
	seed := pipeline.Iterable(schema, []tuple.Tuple{{"tcp://remote:9999", int64(7)}})
	registry.AddSteady("out", rule.Merge, seed, "out <= consts")

	sink := lineage.NewRecordingSink()
	s := New("node-1", collections, registry, nil, nil, sink)

	if err := s.tickPhase(); err != nil {
		t.Fatalf("tickPhase: %v", err)
	}
	if len(sent.sent) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(sent.sent))
	}
	if len(sink.Inserts) != 2 || !sink.Inserts[1].Deleted {
		t.Fatalf("expected a paired insert+delete for the ephemeral channel write, got %+v", sink.Inserts)
	}
}

func TestReceivePhaseRoutesInboundToChannel(t *testing.T) {
	schema := tuple.NewSchema([]string{"addr", "n"}, []tuple.ColumnType{tuple.Address, tuple.Int64})
	adapter := &fakeAdapter{}
	ch, err := collection.NewChannel("in", schema, "node-2", adapter)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	collections := map[string]collection.Collection{"in": ch}

	adapter.inbound = append(adapter.inbound, [][]byte{
		[]byte("node-1"), []byte("in"), []byte("5"), []byte("99"),
	})

	sink := lineage.NewRecordingSink()
	s := New("node-2", collections, rule.NewRegistry(), adapter, nil, sink)

	if err := s.receivePhase(context.Background()); err != nil {
		t.Fatalf("receivePhase: %v", err)
	}

	entries := ch.Get()
	if len(entries) != 1 {
		t.Fatalf("expected 1 tuple received on channel, got %d", len(entries))
	}
	if entries[0].Tuple[0].(string) != "node-1" || entries[0].Tuple[1].(int64) != 99 {
		t.Fatalf("unexpected received tuple: %v", entries[0].Tuple)
	}
	if len(sink.Networked) != 1 {
		t.Fatalf("expected 1 networked lineage event, got %d", len(sink.Networked))
	}
}

func TestReceivePhaseDiscardsUnknownChannel(t *testing.T) {
	adapter := &fakeAdapter{}
	adapter.inbound = append(adapter.inbound, [][]byte{
		[]byte("node-1"), []byte("nonexistent"), []byte("5"), []byte("99"),
	})
	sink := lineage.NewRecordingSink()
	s := New("node-2", map[string]collection.Collection{}, rule.NewRegistry(), adapter, nil, sink)

	if err := s.receivePhase(context.Background()); err != nil {
		t.Fatalf("receivePhase: %v", err)
	}
	if len(sink.Networked) != 0 {
		t.Fatalf("expected no networked lineage event for an unknown channel, got %d", len(sink.Networked))
	}
}

// fakeAdapter is an in-memory transport.Adapter stand-in: Poll pops
// pre-queued inbound frame sets immediately and Send just records what was
// sent, with no real networking.
type fakeAdapter struct {
	inbound [][][]byte
	sent    []sentFrame
}

type sentFrame struct {
	address string
	frames  [][]byte
}

func (f *fakeAdapter) Send(address string, frames [][]byte) error {
	f.sent = append(f.sent, sentFrame{address: address, frames: frames})
	return nil
}

func (f *fakeAdapter) Poll(ctx context.Context, timeoutMillis int64) ([][]byte, bool, error) {
	if len(f.inbound) == 0 {
		return nil, false, nil
	}
	frames := f.inbound[0]
	f.inbound = f.inbound[1:]
	return frames, true, nil
}

func (f *fakeAdapter) Close() error { return nil }
