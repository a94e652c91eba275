package main

import (
	"testing"

	"fluent/collection"
	"fluent/node"
	"fluent/pipeline"
	"fluent/rule"
	"fluent/tuple"
)

// applyRuleSpec drives one RuleSpec's pipeline against the in-memory Table
// standing in for its target, mirroring scheduler/write.go's Table case.
// Every target in this test is a Table (no transport involved), since this
// exercises kvstoreRules's pipeline arithmetic, not the network layer
// already covered by node's own tests.
func applyRuleSpec(t *testing.T, spec node.RuleSpec, targets map[string]*collection.Table) {
	t.Helper()
	target, ok := targets[spec.Target]
	if !ok {
		t.Fatalf("no such target table %q", spec.Target)
	}
	spec.Pipeline.ForEach(func(p pipeline.Provenanced) {
		h := tuple.Hash(p.Tuple)
		switch spec.Mode {
		case rule.Merge:
			target.Merge(p.Tuple, h, 0)
		case rule.DeferMerge:
			target.DeferMerge(p.Tuple, h, 0)
		case rule.DeferDelete:
			target.DeferDelete(p.Tuple, h, 0)
		default:
			t.Fatalf("unhandled rule mode %v", spec.Mode)
		}
	})
}

func newKvstoreTestTables() (cols map[string]collection.Collection, targets map[string]*collection.Table) {
	setRequest := collection.NewTable("set_request", setRequestSchema())
	getRequest := collection.NewTable("get_request", getRequestSchema())
	kvs := collection.NewTable("kvs", kvsSchema())
	setResponse := collection.NewTable("set_response", setResponseSchema())
	getResponse := collection.NewTable("get_response", getResponseSchema())

	cols = map[string]collection.Collection{
		"set_request": setRequest,
		"get_request": getRequest,
		"kvs":         kvs,
	}
	targets = map[string]*collection.Table{
		"kvs":          kvs,
		"set_response": setResponse,
		"get_response": getResponse,
	}
	return cols, targets
}

func runTick(t *testing.T, cols map[string]collection.Collection, targets map[string]*collection.Table) {
	t.Helper()
	for _, spec := range kvstoreRules(cols) {
		applyRuleSpec(t, spec, targets)
	}
	for _, tbl := range targets {
		tbl.Tick()
	}
}

func TestSetUpsertsIntoKvs(t *testing.T) {
	cols, targets := newKvstoreTestTables()
	setRequest := cols["set_request"].(*collection.Table)
	kvs := cols["kvs"].(*collection.Table)

	// A stale row already present for "k" must be replaced, not duplicated.
	kvs.Merge(tuple.Tuple{"k", "old"}, tuple.Hash(tuple.Tuple{"k", "old"}), 0)
	setRequest.Merge(
		tuple.Tuple{"client", "client", int64(1), "k", "new"},
		tuple.Hash(tuple.Tuple{"client", "client", int64(1), "k", "new"}),
		0,
	)

	runTick(t, cols, targets)

	entries := kvs.Get()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one row in kvs after upsert, got %d: %v", len(entries), entries)
	}
	if entries[0].Tuple[0].(string) != "k" || entries[0].Tuple[1].(string) != "new" {
		t.Fatalf("expected (k, new), got %v", entries[0].Tuple)
	}

	resp := targets["set_response"].Get()
	if len(resp) != 1 || resp[0].Tuple[0].(string) != "client" || resp[0].Tuple[1].(int64) != 1 {
		t.Fatalf("expected set_response (client, 1), got %v", resp)
	}
}

func TestSetOfNewKeyLeavesOtherKeysIntact(t *testing.T) {
	cols, targets := newKvstoreTestTables()
	setRequest := cols["set_request"].(*collection.Table)
	kvs := cols["kvs"].(*collection.Table)

	kvs.Merge(tuple.Tuple{"other", "v0"}, tuple.Hash(tuple.Tuple{"other", "v0"}), 0)
	setRequest.Merge(
		tuple.Tuple{"client", "client", int64(2), "k", "v"},
		tuple.Hash(tuple.Tuple{"client", "client", int64(2), "k", "v"}),
		0,
	)

	runTick(t, cols, targets)

	entries := kvs.Get()
	if len(entries) != 2 {
		t.Fatalf("expected both keys present, got %d: %v", len(entries), entries)
	}
}

func TestGetJoinsAgainstKvs(t *testing.T) {
	cols, targets := newKvstoreTestTables()
	getRequest := cols["get_request"].(*collection.Table)
	kvs := cols["kvs"].(*collection.Table)

	kvs.Merge(tuple.Tuple{"k", "v"}, tuple.Hash(tuple.Tuple{"k", "v"}), 0)
	getRequest.Merge(
		tuple.Tuple{"client", "client", int64(7), "k"},
		tuple.Hash(tuple.Tuple{"client", "client", int64(7), "k"}),
		0,
	)

	runTick(t, cols, targets)

	resp := targets["get_response"].Get()
	if len(resp) != 1 {
		t.Fatalf("expected exactly one get_response row, got %d: %v", len(resp), resp)
	}
	got := resp[0].Tuple
	if got[0].(string) != "client" || got[1].(int64) != 7 || got[2].(string) != "v" {
		t.Fatalf("expected (client, 7, v), got %v", got)
	}
}

func TestGetOfMissingKeyProducesNoResponse(t *testing.T) {
	cols, targets := newKvstoreTestTables()
	getRequest := cols["get_request"].(*collection.Table)

	getRequest.Merge(
		tuple.Tuple{"client", "client", int64(9), "missing"},
		tuple.Hash(tuple.Tuple{"client", "client", int64(9), "missing"}),
		0,
	)

	runTick(t, cols, targets)

	if resp := targets["get_response"].Get(); len(resp) != 0 {
		t.Fatalf("expected no get_response for a missing key, got %v", resp)
	}
}

func TestKvstoreRulesModesAndTargets(t *testing.T) {
	cols, _ := newKvstoreTestTables()
	specs := kvstoreRules(cols)
	if len(specs) != 4 {
		t.Fatalf("expected 4 rules, got %d", len(specs))
	}
	if specs[0].Target != "set_response" || specs[0].Mode != rule.Merge {
		t.Fatalf("expected rule 0 to merge into set_response, got %+v", specs[0])
	}
	if specs[1].Target != "kvs" || specs[1].Mode != rule.DeferDelete {
		t.Fatalf("expected rule 1 to defer-delete from kvs, got %+v", specs[1])
	}
	if specs[2].Target != "kvs" || specs[2].Mode != rule.DeferMerge {
		t.Fatalf("expected rule 2 to defer-merge into kvs, got %+v", specs[2])
	}
	if specs[3].Target != "get_response" || specs[3].Mode != rule.Merge {
		t.Fatalf("expected rule 3 to merge into get_response, got %+v", specs[3])
	}
}
