// Package scheduler drives a Fluent node's bootstrap tick and main
// receive/tick loop (spec.md §4.4): it owns logical time, the ordered
// bootstrap and steady rule sets, the periodic firing queue, and the
// transport adapter's inbound queue.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"fluent/collection"
	"fluent/lineage"
	"fluent/pipeline"
	"fluent/rule"
	"fluent/transport"
	"fluent/tuple"
)

// Scheduler executes a node's rule registry against its collections,
// routing inbound network frames and periodic firings, and recording every
// write with the lineage sink. Grounded on the receive-then-tick loop in
// original_source/src/fluent/fluent_executor.h's Run/Tick/Receive split.
type Scheduler struct {
	nodeID string

	clock LogicalClock
	pq    *PeriodicQueue

	rules *rule.Registry

	collections map[string]collection.Collection
	channels    map[string]*collection.Channel
	periodics   map[string]*collection.Periodic
	stdin       *collection.Stdin

	transport  transport.Adapter
	stdinLines <-chan string
	sink       lineage.Sink
}

// New constructs a Scheduler over collections, indexing channels and
// periodics by name and seeding the periodic queue. transport may be nil
// for a node with no channels; stdinLines may be nil if the node declares
// no stdin collection or doesn't wire one up.
func New(nodeID string, collections map[string]collection.Collection, rules *rule.Registry, tr transport.Adapter, stdinLines <-chan string, sink lineage.Sink) *Scheduler {
	s := &Scheduler{
		nodeID:      nodeID,
		rules:       rules,
		collections: collections,
		channels:    make(map[string]*collection.Channel),
		periodics:   make(map[string]*collection.Periodic),
		transport:   tr,
		stdinLines:  stdinLines,
		sink:        sink,
		pq:          NewPeriodicQueue(),
	}

	now := time.Now()
	for name, c := range collections {
		switch v := c.(type) {
		case *collection.Channel:
			s.channels[name] = v
		case *collection.Periodic:
			s.periodics[name] = v
			s.pq.Add(name, v.Period(), now)
		case *collection.Stdin:
			s.stdin = v
		}
	}
	return s
}

// Bootstrap runs every registered bootstrap rule once, then advances
// logical time and ticks every collection, per spec.md §4.4. It is a no-op
// if no bootstrap rules are registered.
func (s *Scheduler) Bootstrap() error {
	if len(s.rules.Bootstrap()) == 0 {
		return nil
	}
	for _, r := range s.rules.Bootstrap() {
		if err := s.executeRule(r); err != nil {
			return fmt.Errorf("scheduler: bootstrap rule %d: %w", r.ID, err)
		}
	}
	s.clock.Advance()
	s.tickAllCollections()
	return nil
}

// Run executes the main loop until ctx is cancelled: receive phase, then
// tick phase, repeating. There is no other form of shutdown (spec.md §4.4,
// §4.8: "cancellation: none at the language level").
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := s.receivePhase(ctx); err != nil {
			return err
		}
		if err := s.tickPhase(); err != nil {
			return err
		}
	}
}

// receivePhase advances logical time, polls the transport adapter with a
// timeout derived from the earliest pending periodic (capped at
// stdinPollMillis while terminal input is wired, so typed lines are not held
// behind an idle socket), routes any inbound message to its channel, drains
// one pending stdin line if present, and fires every periodic whose deadline
// has passed.
func (s *Scheduler) receivePhase(ctx context.Context) error {
	const stdinPollMillis = 50
	s.clock.Advance()

	if s.transport != nil {
		timeout := s.pollTimeoutMillis()
		if s.stdin != nil && s.stdinLines != nil && (timeout < 0 || timeout > stdinPollMillis) {
			timeout = stdinPollMillis
		}
		frames, ok, err := s.transport.Poll(ctx, timeout)
		if err != nil {
			return fmt.Errorf("scheduler: poll: %w", err)
		}
		if ok {
			s.handleInbound(frames)
		}
	}

	if s.stdin != nil && s.stdinLines != nil {
		select {
		case line, open := <-s.stdinLines:
			if open {
				now := s.clock.Now()
				t := tuple.Tuple{line}
				s.stdin.Receive(line, tuple.Hash(t), now)
				s.recordInsert(s.stdin.Name(), now, t)
			}
		default:
		}
	}

	s.pq.PopDue(time.Now(), func(name string) {
		p := s.periodics[name]
		id := p.GetAndIncrementID()
		now := s.clock.Now()
		t := tuple.Tuple{id, now}
		h := tuple.Hash(t)
		p.Merge(id, now, h, now)
		s.recordInsert(name, now, t)
	})

	return nil
}

// pollTimeoutMillis computes max(0, earliest_periodic_deadline - now), or
// -1 ("wait indefinitely") if no periodics are registered, per spec.md
// §4.4.
func (s *Scheduler) pollTimeoutMillis() int64 {
	deadline, ok := s.pq.EarliestDeadline()
	if !ok {
		return -1
	}
	wait := deadline.Sub(time.Now())
	if wait < 0 {
		wait = 0
	}
	return wait.Milliseconds()
}

// handleInbound decodes one inbound frame set and, if it names a known
// channel, inserts the reconstructed tuple and records the networked
// lineage link back to its remote origin (spec.md §4.4). Decode failures
// and unknown channel names are logged and the message is dropped, per
// spec.md §4.8's "most startup-time errors are fatal, steady-state record
// failures are surfaced but do not stop the scheduler".
func (s *Scheduler) handleInbound(frames [][]byte) {
	msg, err := transport.DecodeChannelMessage(frames)
	if err != nil {
		logrus.Warnf("scheduler: discarding malformed inbound message: %v", err)
		return
	}
	ch, ok := s.channels[msg.Channel]
	if !ok {
		logrus.Warnf("scheduler: discarding message for unknown channel %q", msg.Channel)
		return
	}

	schema := ch.Schema()
	payloadSchema := tuple.Schema{Names: schema.Names[1:], Types: schema.Types[1:]}
	payload, err := tuple.DecodeColumns(payloadSchema, msg.Columns)
	if err != nil {
		logrus.Warnf("scheduler: discarding unparseable message on channel %q: %v", msg.Channel, err)
		return
	}
	t := append(tuple.Tuple{msg.NodeID}, payload...)

	now := s.clock.Now()
	h := tuple.Hash(t)
	ch.NetworkInsert(t, h, now)
	if err := s.sink.AddNetworkedLineage(msg.NodeID, msg.LogicalTime, msg.Channel, h, now); err != nil {
		logrus.Warnf("scheduler: lineage sink AddNetworkedLineage failed: %v", err)
	}
	s.recordInsert(msg.Channel, now, t)
}

// tickPhase executes every steady rule in registration order, then
// advances logical time once more and ticks every collection, recording
// deletions.
func (s *Scheduler) tickPhase() error {
	for _, r := range s.rules.Steady() {
		if err := s.executeRule(r); err != nil {
			return fmt.Errorf("scheduler: steady rule %d: %w", r.ID, err)
		}
	}
	s.clock.Advance()
	s.tickAllCollections()
	return nil
}

// tickAllCollections ticks every collection and records each removed tuple
// as a deletion with the lineage sink.
func (s *Scheduler) tickAllCollections() {
	now := s.clock.Now()
	for name, c := range s.collections {
		for _, t := range c.Tick() {
			s.recordDelete(name, now, t)
		}
	}
}

// executeRule drives one rule's pipeline to completion, writing every
// produced tuple to its target collection and recording the rule's
// derived-lineage, insertion, and (for ephemeral targets) paired deletion
// events, per spec.md §4.3's execution algorithm.
func (s *Scheduler) executeRule(r rule.Rule) error {
	s.clock.Advance()
	lt := s.clock.Now()

	target, ok := s.collections[r.Target]
	if !ok {
		return fmt.Errorf("no such collection %q", r.Target)
	}

	var firstErr error
	r.Pipeline.ForEach(func(p pipeline.Provenanced) {
		if firstErr != nil {
			return
		}
		h := tuple.Hash(p.Tuple)
		inserted := r.Mode != rule.DeferDelete

		for _, src := range p.Provenance {
			if err := s.sink.AddDerivedLineage(src.Collection, src.Hash, r.ID, inserted, r.Target, h, lt); err != nil {
				logrus.Warnf("scheduler: lineage sink AddDerivedLineage failed: %v", err)
			}
		}

		ephemeral, err := applyWrite(target, r.Mode, p.Tuple, h, lt)
		if err != nil {
			firstErr = err
			return
		}

		if inserted {
			s.recordInsert(r.Target, lt, p.Tuple)
			if ephemeral {
				s.recordDelete(r.Target, lt, p.Tuple)
			}
		} else {
			s.recordDelete(r.Target, lt, p.Tuple)
		}
	})
	return firstErr
}

func (s *Scheduler) recordInsert(collectionName string, logicalTime int64, t tuple.Tuple) {
	if err := s.sink.InsertTuple(collectionName, logicalTime, t); err != nil {
		logrus.Warnf("scheduler: lineage sink InsertTuple failed: %v", err)
	}
}

func (s *Scheduler) recordDelete(collectionName string, logicalTime int64, t tuple.Tuple) {
	if err := s.sink.DeleteTuple(collectionName, logicalTime, t); err != nil {
		logrus.Warnf("scheduler: lineage sink DeleteTuple failed: %v", err)
	}
}
