// Package lineage implements the lineage-sink contract of spec.md §4.6: a
// pluggable recorder of every tuple insertion, deletion, and derivation,
// plus black-box lineage registration for request/response pairs whose
// provenance the core cannot derive automatically.
package lineage

import (
	"fluent/tuple"
)

// Sink is the narrow interface the core calls against. Variants: a no-op
// sink and a relational-store sink (spec.md §4.6: "variants: no-op sink and
// a relational-store sink").
type Sink interface {
	Init() error
	AddCollection(name string, kind string, columnNames []string, columnTypes []tuple.ColumnType) error
	AddRule(ruleID int, isBootstrap bool, text string) error
	InsertTuple(collection string, logicalTime int64, t tuple.Tuple) error
	DeleteTuple(collection string, logicalTime int64, t tuple.Tuple) error
	AddDerivedLineage(srcName string, srcHash uint64, ruleID int, inserted bool, tgtName string, tgtHash uint64, logicalTime int64) error
	AddNetworkedLineage(srcNodeID string, srcTime int64, tgtName string, tgtHash uint64, tgtTime int64) error
	Exec(sql string, args ...any) error
}
