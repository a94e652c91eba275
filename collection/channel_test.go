package collection

import (
	"testing"

	"fluent/tuple"
)

type fakeSender struct {
	addr   string
	frames [][]byte
	calls  int
}

func (f *fakeSender) Send(addr string, frames [][]byte) error {
	f.addr = addr
	f.frames = frames
	f.calls++
	return nil
}

func addrSchema(rest ...tuple.ColumnType) tuple.Schema {
	names := make([]string, 0, len(rest)+1)
	types := make([]tuple.ColumnType, 0, len(rest)+1)
	names = append(names, "addr")
	types = append(types, tuple.Address)
	for i, typ := range rest {
		names = append(names, "c"+string(rune('0'+i)))
		types = append(types, typ)
	}
	return tuple.NewSchema(names, types)
}

func TestChannelMergeSendsAndDoesNotRetain(t *testing.T) {
	sender := &fakeSender{}
	ch, err := NewChannel("c", addrSchema(tuple.Int64), "node-1", sender)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}

	tup := tuple.Tuple{"tcp://127.0.0.1:9999", int64(42)}
	if err := ch.Merge(tup, tuple.Hash(tup), 3); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if sender.calls != 1 {
		t.Fatalf("expected exactly one send, got %d", sender.calls)
	}
	if sender.addr != "tcp://127.0.0.1:9999" {
		t.Fatalf("sent to wrong address: %q", sender.addr)
	}
	if len(sender.frames) != 4 {
		t.Fatalf("expected 4 frames (node id, channel, time, column), got %d", len(sender.frames))
	}
	if len(ch.Get()) != 0 {
		t.Fatalf("merge must never retain the tuple")
	}
}

func TestChannelRejectsNonAddressFirstColumn(t *testing.T) {
	schema := tuple.NewSchema([]string{"x"}, []tuple.ColumnType{tuple.Int64})
	if _, err := NewChannel("c", schema, "node-1", &fakeSender{}); err == nil {
		t.Fatalf("expected error for non-address first column")
	}
}

func TestChannelNetworkInsertClearedAtTick(t *testing.T) {
	ch, err := NewChannel("c", addrSchema(tuple.Int64), "node-1", &fakeSender{})
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	tup := tuple.Tuple{"tcp://peer", int64(1)}
	ch.NetworkInsert(tup, tuple.Hash(tup), 0)
	if len(ch.Get()) != 1 {
		t.Fatalf("expected networked tuple visible before tick")
	}
	ch.Tick()
	if len(ch.Get()) != 0 {
		t.Fatalf("channel must be empty after Tick")
	}
}
