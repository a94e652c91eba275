package collection

import (
	"fmt"

	"fluent/tuple"
)

// Sender is the narrow capability a Channel needs from the transport
// adapter: deliver a framed message to an address. Any transport.Adapter
// satisfies this structurally; collection never imports transport.
type Sender interface {
	Send(address string, frames [][]byte) error
}

// Channel is the collection kind whose Merge is a "send": spec.md §3, §4.1.
// Tuples pushed through Merge are serialized and handed to a Sender keyed on
// their first (address-typed) column; they are never retained. Tuples that
// arrive over the network are pushed in through NetworkInsert and are
// readable for the remainder of the tick, then cleared — ported from
// original_source/src/collections/channel.h, which keeps the same split
// between the write-side Merge (send, no storage) and the read-side
// Receive (store until Tick).
type Channel struct {
	name   string
	schema tuple.Schema
	nodeID string
	sender Sender
	ts     map[string]*tableEntry
}

// NewChannel constructs a channel. schema's first column must be
// tuple.Address-typed, per spec.md §3 invariant 6; otherwise NewChannel
// returns an error, which the node builder wraps as a configuration error.
func NewChannel(name string, schema tuple.Schema, nodeID string, sender Sender) (*Channel, error) {
	if schema.Arity() == 0 || schema.Types[0] != tuple.Address {
		return nil, fmt.Errorf("collection: channel %q must declare an address-typed first column", name)
	}
	return &Channel{name: name, schema: schema, nodeID: nodeID, sender: sender, ts: make(map[string]*tableEntry)}, nil
}

func (c *Channel) Name() string          { return c.name }
func (c *Channel) ColumnNames() []string { return c.schema.Names }
func (c *Channel) Schema() tuple.Schema  { return c.schema }
func (c *Channel) Kind() Kind            { return KindChannel }

// Get returns tuples that arrived over the network this tick.
func (c *Channel) Get() []Entry { return sortedEntries(c.ts) }

// Merge sends t to the address in its first column: frame 0 is this node's
// id, frame 1 is the channel name, frame 2 is logicalTime, and the
// remaining frames are t's columns after the address, per spec.md §4.5. The
// tuple is never stored.
func (c *Channel) Merge(t tuple.Tuple, hash uint64, logicalTime int64) error {
	checkArity(c.schema, t)
	addr, ok := t[0].(string)
	if !ok {
		return fmt.Errorf("collection: channel %q address column is not a string", c.name)
	}

	payload, err := tuple.EncodeColumns(tuple.Schema{Names: c.schema.Names[1:], Types: c.schema.Types[1:]}, t[1:])
	if err != nil {
		return fmt.Errorf("collection: channel %q encode: %w", c.name, err)
	}

	frames := make([][]byte, 0, 3+len(payload))
	frames = append(frames, []byte(c.nodeID), []byte(c.name), []byte(fmt.Sprintf("%d", logicalTime)))
	frames = append(frames, payload...)
	return c.sender.Send(addr, frames)
}

// NetworkInsert stores a tuple that arrived over the network, readable via
// Get() until the next Tick clears it.
func (c *Channel) NetworkInsert(t tuple.Tuple, hash uint64, logicalTime int64) {
	checkArity(c.schema, t)
	mergeInto(c.ts, t, hash, logicalTime)
}

// Tick clears every tuple this channel received during the tick.
func (c *Channel) Tick() []tuple.Tuple {
	out := make([]tuple.Tuple, 0, len(c.ts))
	for _, e := range c.ts {
		out = append(out, e.tuple)
	}
	c.ts = make(map[string]*tableEntry)
	return out
}
