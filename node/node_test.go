package node

import (
	"context"
	"testing"
	"time"

	"fluent/collection"
	"fluent/lineage"
	"fluent/pipeline"
	"fluent/rule"
	"fluent/transport"
	"fluent/tuple"
)

func pingPongSchema() tuple.Schema {
	return tuple.NewSchema([]string{"addr", "x"}, []tuple.ColumnType{tuple.Address, tuple.Int64})
}

// TestPingPongRerouting reproduces spec.md §8's ping/pong scenario: two
// nodes each own a channel c(addr, x) and a rule that reroutes whatever
// arrives on c back to the peer, unchanged except for the address. One
// side is seeded with (peer_addr, 42); the exchange should keep bouncing
// indefinitely, and every tick should leave each node's channel empty.
func TestPingPongRerouting(t *testing.T) {
	adapterA, err := transport.NewSocketAdapter("127.0.0.1:0", time.Second)
	if err != nil {
		t.Fatalf("NewSocketAdapter A: %v", err)
	}
	defer adapterA.Close()
	adapterB, err := transport.NewSocketAdapter("127.0.0.1:0", time.Second)
	if err != nil {
		t.Fatalf("NewSocketAdapter B: %v", err)
	}
	defer adapterB.Close()

	addrA := adapterA.Addr()
	addrB := adapterB.Addr()
	schema := pingPongSchema()

	reroute := func(peerAddr string) func(map[string]collection.Collection) []RuleSpec {
		return func(cols map[string]collection.Collection) []RuleSpec {
			stage := pipeline.Map(pipeline.FromCollection(cols["c"]), schema, func(t tuple.Tuple) tuple.Tuple {
				return tuple.Tuple{peerAddr, t[1]}
			})
			return []RuleSpec{{Target: "c", Mode: rule.Merge, Pipeline: stage, Text: "c <= map(c, t -> (peer, t.x))"}}
		}
	}

	sinkA := lineage.NewRecordingSink()
	nodeA, err := NewBuilder("A", addrA, addrA, adapterA, sinkA).
		Channel("c", schema).
		RegisterBootstrapRules(func(cols map[string]collection.Collection) []RuleSpec {
			seed := pipeline.Iterable(schema, []tuple.Tuple{{addrB, int64(42)}})
			return []RuleSpec{{Target: "c", Mode: rule.Merge, Pipeline: seed, Text: "c <= consts"}}
		}).
		RegisterRules(reroute(addrB)).
		Build()
	if err != nil {
		t.Fatalf("build node A: %v", err)
	}

	sinkB := lineage.NewRecordingSink()
	nodeB, err := NewBuilder("B", addrB, addrB, adapterB, sinkB).
		Channel("c", schema).
		RegisterRules(reroute(addrA)).
		Build()
	if err != nil {
		t.Fatalf("build node B: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	errs := make(chan error, 2)
	go func() { errs <- nodeA.Run(ctx) }()
	go func() { errs <- nodeB.Run(ctx) }()

	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("node Run: %v", err)
		}
	}

	if len(sinkA.Networked) == 0 {
		t.Fatalf("expected node A to receive at least one networked message")
	}
	if len(sinkB.Networked) == 0 {
		t.Fatalf("expected node B to receive at least one networked message")
	}

	chA, _ := nodeA.Collection("c")
	if got := len(chA.Get()); got != 0 {
		t.Fatalf("expected node A's channel empty after its last tick, got %d entries", got)
	}
	chB, _ := nodeB.Collection("c")
	if got := len(chB.Get()); got != 0 {
		t.Fatalf("expected node B's channel empty after its last tick, got %d entries", got)
	}
}

// TestScratchDoesNotPersistAcrossBootstrap reproduces the "scratch does not
// persist" scenario: bootstrap-merging the same tuples into a table and a
// scratch leaves the table populated and the scratch empty after the
// bootstrap tick.
func TestScratchDoesNotPersistAcrossBootstrap(t *testing.T) {
	schema := tuple.NewSchema([]string{"x"}, []tuple.ColumnType{tuple.Int64})
	seedItems := []tuple.Tuple{{int64(1)}, {int64(2)}, {int64(3)}, {int64(4)}, {int64(5)}}

	sink := lineage.NewRecordingSink()
	n, err := NewBuilder("solo", "solo", "127.0.0.1:0", nil, sink).
		Table("t", schema).
		Scratch("s", schema).
		RegisterBootstrapRules(func(cols map[string]collection.Collection) []RuleSpec {
			return []RuleSpec{
				{Target: "t", Mode: rule.Merge, Pipeline: pipeline.Iterable(schema, seedItems), Text: "t <= consts"},
				{Target: "s", Mode: rule.Merge, Pipeline: pipeline.Iterable(schema, seedItems), Text: "s <= consts"},
			}
		}).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	sched := n.scheduler
	if err := sched.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	tbl, _ := n.Collection("t")
	if got := len(tbl.Get()); got != 5 {
		t.Fatalf("expected table to retain 5 tuples, got %d", got)
	}
	scr, _ := n.Collection("s")
	if got := len(scr.Get()); got != 0 {
		t.Fatalf("expected scratch empty after bootstrap tick, got %d", got)
	}
}

func TestBuilderRejectsDuplicateCollectionNames(t *testing.T) {
	schema := tuple.NewSchema([]string{"x"}, []tuple.ColumnType{tuple.Int64})
	_, err := NewBuilder("dup", "dup", "127.0.0.1:0", nil, lineage.NewRecordingSink()).
		Table("t", schema).
		Scratch("t", schema).
		Build()
	if err == nil {
		t.Fatalf("expected duplicate collection name to fail the build")
	}
}

func TestBuilderRejectsRuleTargetingUnknownCollection(t *testing.T) {
	schema := tuple.NewSchema([]string{"x"}, []tuple.ColumnType{tuple.Int64})
	_, err := NewBuilder("bad", "bad", "127.0.0.1:0", nil, lineage.NewRecordingSink()).
		Table("t", schema).
		RegisterRules(func(cols map[string]collection.Collection) []RuleSpec {
			return []RuleSpec{{Target: "nonexistent", Mode: rule.Merge, Pipeline: pipeline.Iterable(schema, nil), Text: "bad"}}
		}).
		Build()
	if err == nil {
		t.Fatalf("expected rule targeting an undeclared collection to fail the build")
	}
}
