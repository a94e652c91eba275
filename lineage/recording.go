package lineage

import (
	"sync"

	"fluent/tuple"
)

// InsertEvent records one InsertTuple/DeleteTuple call.
type InsertEvent struct {
	Collection  string
	LogicalTime int64
	Tuple       tuple.Tuple
	Deleted     bool
}

// DerivedEvent records one AddDerivedLineage call.
type DerivedEvent struct {
	SrcName     string
	SrcHash     uint64
	RuleID      int
	Inserted    bool
	TgtName     string
	TgtHash     uint64
	LogicalTime int64
}

// NetworkedEvent records one AddNetworkedLineage call.
type NetworkedEvent struct {
	SrcNodeID string
	SrcTime   int64
	TgtName   string
	TgtHash   uint64
	TgtTime   int64
}

// RecordingSink accumulates every event in memory, for asserting the
// lineage-completeness property (spec.md §8 property 6) in tests.
type RecordingSink struct {
	mu         sync.Mutex
	Inserts    []InsertEvent
	Derived    []DerivedEvent
	Networked  []NetworkedEvent
	Collections []string
	Rules       []int
}

func NewRecordingSink() *RecordingSink { return &RecordingSink{} }

func (s *RecordingSink) Init() error { return nil }

func (s *RecordingSink) AddCollection(name string, kind string, columnNames []string, columnTypes []tuple.ColumnType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Collections = append(s.Collections, name)
	return nil
}

func (s *RecordingSink) AddRule(ruleID int, isBootstrap bool, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Rules = append(s.Rules, ruleID)
	return nil
}

func (s *RecordingSink) InsertTuple(collection string, logicalTime int64, t tuple.Tuple) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Inserts = append(s.Inserts, InsertEvent{Collection: collection, LogicalTime: logicalTime, Tuple: t})
	return nil
}

func (s *RecordingSink) DeleteTuple(collection string, logicalTime int64, t tuple.Tuple) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Inserts = append(s.Inserts, InsertEvent{Collection: collection, LogicalTime: logicalTime, Tuple: t, Deleted: true})
	return nil
}

func (s *RecordingSink) AddDerivedLineage(srcName string, srcHash uint64, ruleID int, inserted bool, tgtName string, tgtHash uint64, logicalTime int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Derived = append(s.Derived, DerivedEvent{srcName, srcHash, ruleID, inserted, tgtName, tgtHash, logicalTime})
	return nil
}

func (s *RecordingSink) AddNetworkedLineage(srcNodeID string, srcTime int64, tgtName string, tgtHash uint64, tgtTime int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Networked = append(s.Networked, NetworkedEvent{srcNodeID, srcTime, tgtName, tgtHash, tgtTime})
	return nil
}

func (s *RecordingSink) Exec(sql string, args ...any) error { return nil }

var _ Sink = (*RecordingSink)(nil)
