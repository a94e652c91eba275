package pipeline

import (
	"testing"

	"fluent/collection"
	"fluent/tuple"
)

func schemaXY() tuple.Schema {
	return tuple.NewSchema([]string{"x", "y"}, []tuple.ColumnType{tuple.Int64, tuple.Int64})
}

func collect(s Stage) []tuple.Tuple {
	var out []tuple.Tuple
	s.ForEach(func(p Provenanced) { out = append(out, p.Tuple) })
	return out
}

func TestMapTransformsEveryTuple(t *testing.T) {
	in := Iterable(schemaXY(), []tuple.Tuple{{int64(1), int64(2)}, {int64(3), int64(4)}})
	out := Map(in, schemaXY(), func(t tuple.Tuple) tuple.Tuple {
		return tuple.Tuple{t[0], t[1].(int64) * 10}
	})
	got := collect(out)
	if len(got) != 2 || got[0][1].(int64) != 20 || got[1][1].(int64) != 40 {
		t.Fatalf("unexpected map output: %v", got)
	}
}

func TestFilterDropsNonMatching(t *testing.T) {
	in := Iterable(schemaXY(), []tuple.Tuple{{int64(1), int64(2)}, {int64(3), int64(4)}})
	out := Filter(in, func(t tuple.Tuple) bool { return t[0].(int64) > int64(1) })
	got := collect(out)
	if len(got) != 1 || got[0][0].(int64) != 3 {
		t.Fatalf("unexpected filter output: %v", got)
	}
}

func TestProjectSelectsColumns(t *testing.T) {
	in := Iterable(schemaXY(), []tuple.Tuple{{int64(1), int64(2)}})
	out := Project(in, 1, 0)
	got := collect(out)
	if got[0][0].(int64) != 2 || got[0][1].(int64) != 1 {
		t.Fatalf("unexpected project output: %v", got)
	}
	if out.Schema().Names[0] != "y" || out.Schema().Names[1] != "x" {
		t.Fatalf("unexpected project schema: %v", out.Schema())
	}
}

func TestCrossProducesCartesianProduct(t *testing.T) {
	left := Iterable(tuple.NewSchema([]string{"a"}, []tuple.ColumnType{tuple.Int64}),
		[]tuple.Tuple{{int64(1)}, {int64(2)}})
	right := Iterable(tuple.NewSchema([]string{"b"}, []tuple.ColumnType{tuple.Int64}),
		[]tuple.Tuple{{int64(10)}, {int64(20)}})
	got := collect(Cross(left, right))
	if len(got) != 4 {
		t.Fatalf("expected 4 rows from 2x2 cross, got %d", len(got))
	}
}

func TestHashJoinMatchesOnKeys(t *testing.T) {
	left := Iterable(schemaXY(), []tuple.Tuple{{int64(1), int64(100)}, {int64(2), int64(200)}})
	right := Iterable(schemaXY(), []tuple.Tuple{{int64(1), int64(999)}})
	got := collect(HashJoin(left, []int{0}, right, []int{0}))
	if len(got) != 1 {
		t.Fatalf("expected 1 matching row, got %d", len(got))
	}
	if got[0][1].(int64) != 100 || got[0][3].(int64) != 999 {
		t.Fatalf("unexpected joined tuple: %v", got[0])
	}
}

func TestHashJoinProvenanceUnionsBothSides(t *testing.T) {
	leftSchema := tuple.NewSchema([]string{"k"}, []tuple.ColumnType{tuple.Int64})
	tbl := collection.NewTable("left_t", leftSchema)
	tup := tuple.Tuple{int64(1)}
	tbl.Merge(tup, tuple.Hash(tup), 0)

	rightTbl := collection.NewTable("right_t", leftSchema)
	rightTbl.Merge(tup, tuple.Hash(tup), 0)

	var provenance []collection.LocalTupleId
	HashJoin(FromCollection(tbl), []int{0}, FromCollection(rightTbl), []int{0}).ForEach(func(p Provenanced) {
		provenance = p.Provenance
	})
	if len(provenance) != 2 || provenance[0].Collection != "left_t" || provenance[1].Collection != "right_t" {
		t.Fatalf("expected provenance from both sides, left then right, got %v", provenance)
	}
}

func TestGroupBySumAndCount(t *testing.T) {
	schema := tuple.NewSchema([]string{"group", "amount"}, []tuple.ColumnType{tuple.String, tuple.Int64})
	in := Iterable(schema, []tuple.Tuple{
		{"a", int64(1)},
		{"a", int64(2)},
		{"b", int64(10)},
	})
	out := GroupBy(in, []int{0},
		Aggregate{Column: 1, Kind: Sum, OutName: "total"},
		Aggregate{Kind: Count, OutName: "n"},
	)
	got := collect(out)
	if len(got) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(got))
	}
	byGroup := map[string]tuple.Tuple{}
	for _, row := range got {
		byGroup[row[0].(string)] = row
	}
	if byGroup["a"][1].(float64) != 3 || byGroup["a"][2].(int64) != 2 {
		t.Fatalf("unexpected group a aggregates: %v", byGroup["a"])
	}
	if byGroup["b"][1].(float64) != 10 || byGroup["b"][2].(int64) != 1 {
		t.Fatalf("unexpected group b aggregates: %v", byGroup["b"])
	}
}

func TestGroupByWithNoKeysIsGlobalAggregate(t *testing.T) {
	schema := tuple.NewSchema([]string{"v"}, []tuple.ColumnType{tuple.Int64})

	empty := Iterable(schema, nil)
	got := collect(GroupBy(empty, nil, Aggregate{Kind: Count, OutName: "n"}))
	if len(got) != 1 || got[0][0].(int64) != 0 {
		t.Fatalf("expected a single (0) row for count() over an empty input, got %v", got)
	}

	in := Iterable(schema, []tuple.Tuple{{int64(1)}, {int64(2)}, {int64(3)}})
	got = collect(GroupBy(in, nil, Aggregate{Kind: Count, OutName: "n"}))
	if len(got) != 1 || got[0][0].(int64) != 3 {
		t.Fatalf("expected a single (3) row for count() over 3 rows, got %v", got)
	}
}

func TestGroupByMinMax(t *testing.T) {
	schema := tuple.NewSchema([]string{"group", "v"}, []tuple.ColumnType{tuple.String, tuple.Int64})
	in := Iterable(schema, []tuple.Tuple{
		{"a", int64(5)},
		{"a", int64(1)},
		{"a", int64(9)},
	})
	out := GroupBy(in, []int{0},
		Aggregate{Column: 1, Kind: Min, OutName: "lo"},
		Aggregate{Column: 1, Kind: Max, OutName: "hi"},
	)
	got := collect(out)
	if got[0][1].(int64) != 1 || got[0][2].(int64) != 9 {
		t.Fatalf("unexpected min/max: %v", got[0])
	}
}
