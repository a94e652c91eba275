// Package node assembles collections, rules, a transport adapter, and a
// lineage sink into a runnable Fluent node, via the staged Builder
// described in spec.md §4.7.
package node

import (
	"fmt"
	"io"
	"time"

	"fluent/collection"
	"fluent/internal/errs"
	"fluent/lineage"
	"fluent/pipeline"
	"fluent/rule"
	"fluent/scheduler"
	"fluent/transport"
	"fluent/tuple"
)

// RuleSpec is what a rule-registration callback returns for one rule:
// a target collection name, write mode, and pipeline, not yet assigned an
// id. The order RuleSpecs appear in a callback's returned slice determines
// execution order within a tick (spec.md §4.4, §7).
type RuleSpec struct {
	Target   string
	Mode     rule.Mode
	Pipeline pipeline.Stage
	Text     string
}

// Builder is Fluent's staged node constructor. spec.md §4.7 describes each
// `.table(...)`/`.scratch(...)`/... call as extending a type-level
// collection list; Go has no such list to grow at compile time, so the
// builder tracks declared names dynamically and rejects duplicates at
// Build, rather than rejecting them as a type error at each call site.
type Builder struct {
	name      string
	nodeID    string
	address   string
	transport transport.Adapter
	sink      lineage.Sink

	collections map[string]collection.Collection
	order       []string
	err         error

	bootstrapFns []func(map[string]collection.Collection) []RuleSpec
	rulesFns     []func(map[string]collection.Collection) []RuleSpec

	stdinLines <-chan string
}

// NewBuilder starts a staged construction for a node named name, identified
// on the wire as nodeID, listening on address, sending through tr, and
// recording lineage to sink.
func NewBuilder(name, nodeID, address string, tr transport.Adapter, sink lineage.Sink) *Builder {
	return &Builder{
		name:        name,
		nodeID:      nodeID,
		address:     address,
		transport:   tr,
		sink:        sink,
		collections: make(map[string]collection.Collection),
	}
}

func (b *Builder) declare(name string, c collection.Collection) {
	if b.err != nil {
		return
	}
	if _, exists := b.collections[name]; exists {
		b.err = errs.New(errs.Configuration, fmt.Sprintf("duplicate collection name %q", name))
		return
	}
	b.collections[name] = c
	b.order = append(b.order, name)
}

// Table declares a table collection.
func (b *Builder) Table(name string, schema tuple.Schema) *Builder {
	b.declare(name, collection.NewTable(name, schema))
	return b
}

// Scratch declares a scratch collection.
func (b *Builder) Scratch(name string, schema tuple.Schema) *Builder {
	b.declare(name, collection.NewScratch(name, schema))
	return b
}

// Channel declares a channel collection, wired to the builder's transport
// adapter for outbound sends.
func (b *Builder) Channel(name string, schema tuple.Schema) *Builder {
	if b.err != nil {
		return b
	}
	ch, err := collection.NewChannel(name, schema, b.nodeID, b.transport)
	if err != nil {
		b.err = errs.Wrap(errs.Configuration, err, "declare channel "+name)
		return b
	}
	b.declare(name, ch)
	return b
}

// Stdin declares the node's terminal-input collection.
func (b *Builder) Stdin() *Builder {
	b.declare("stdin", collection.NewStdin())
	return b
}

// Stdout declares the node's terminal-output collection, printing to w.
func (b *Builder) Stdout(w io.Writer) *Builder {
	b.declare("stdout", collection.NewStdout(w))
	return b
}

// Periodic declares a periodic firing every period.
func (b *Builder) Periodic(name string, period time.Duration) *Builder {
	b.declare(name, collection.NewPeriodic(name, period))
	return b
}

// Lattice is a declared but unimplemented extension point: lattice
// collections are out of core (spec.md §9 Open Question 3), so calling
// this always fails the build rather than silently substituting a table.
func (b *Builder) Lattice(name string) *Builder {
	if b.err != nil {
		return b
	}
	b.err = errs.New(errs.Configuration, fmt.Sprintf("lattice collection %q is not implemented", name))
	return b
}

// RegisterBootstrapRules binds a callback that receives every declared
// collection and returns the node's bootstrap rules.
func (b *Builder) RegisterBootstrapRules(f func(map[string]collection.Collection) []RuleSpec) *Builder {
	b.bootstrapFns = append(b.bootstrapFns, f)
	return b
}

// RegisterRules binds a callback that receives every declared collection
// and returns the node's steady-state rules.
func (b *Builder) RegisterRules(f func(map[string]collection.Collection) []RuleSpec) *Builder {
	b.rulesFns = append(b.rulesFns, f)
	return b
}

// WithStdinLines wires a channel of terminal-input lines into the receive
// phase; meaningless unless Stdin was also declared.
func (b *Builder) WithStdinLines(lines <-chan string) *Builder {
	b.stdinLines = lines
	return b
}

// Build validates the declared collections and rule specs, registers
// everything with the lineage sink (spec.md §4.6), and assembles a runnable
// Node.
func (b *Builder) Build() (*Node, error) {
	if b.err != nil {
		return nil, b.err
	}

	registry := rule.NewRegistry()
	for _, f := range b.bootstrapFns {
		for _, spec := range f(b.collections) {
			if _, ok := b.collections[spec.Target]; !ok {
				return nil, errs.New(errs.Configuration, fmt.Sprintf("bootstrap rule targets unknown collection %q", spec.Target))
			}
			registry.AddBootstrap(spec.Target, spec.Mode, spec.Pipeline, spec.Text)
		}
	}
	for _, f := range b.rulesFns {
		for _, spec := range f(b.collections) {
			if _, ok := b.collections[spec.Target]; !ok {
				return nil, errs.New(errs.Configuration, fmt.Sprintf("rule targets unknown collection %q", spec.Target))
			}
			registry.AddSteady(spec.Target, spec.Mode, spec.Pipeline, spec.Text)
		}
	}

	if err := b.sink.Init(); err != nil {
		return nil, errs.Wrap(errs.Sink, err, "init lineage sink")
	}
	for _, name := range b.order {
		c := b.collections[name]
		if err := b.sink.AddCollection(name, c.Kind().String(), c.ColumnNames(), c.Schema().Types); err != nil {
			return nil, errs.Wrap(errs.Sink, err, "register collection "+name)
		}
	}
	for _, r := range registry.Bootstrap() {
		if err := b.sink.AddRule(r.ID, true, r.Text); err != nil {
			return nil, errs.Wrap(errs.Sink, err, "register bootstrap rule")
		}
	}
	for _, r := range registry.Steady() {
		if err := b.sink.AddRule(r.ID, false, r.Text); err != nil {
			return nil, errs.Wrap(errs.Sink, err, "register rule")
		}
	}

	sched := scheduler.New(b.nodeID, b.collections, registry, b.transport, b.stdinLines, b.sink)
	return &Node{
		name:        b.name,
		nodeID:      b.nodeID,
		address:     b.address,
		collections: b.collections,
		transport:   b.transport,
		sink:        b.sink,
		scheduler:   sched,
	}, nil
}
