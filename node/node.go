package node

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"fluent/collection"
	"fluent/lineage"
	"fluent/scheduler"
	"fluent/transport"
)

// Node is a fully assembled Fluent node: its declared collections, the
// transport adapter they send through, the lineage sink recording every
// write, and the scheduler driving bootstrap and the main loop.
type Node struct {
	name    string
	nodeID  string
	address string

	collections map[string]collection.Collection
	transport   transport.Adapter
	sink        lineage.Sink
	scheduler   *scheduler.Scheduler
}

func (n *Node) Name() string    { return n.name }
func (n *Node) NodeID() string  { return n.nodeID }
func (n *Node) Address() string { return n.address }

// Collection returns a declared collection by name.
func (n *Node) Collection(name string) (collection.Collection, bool) {
	c, ok := n.collections[name]
	return c, ok
}

// Run executes the node's bootstrap tick, then its main receive/tick loop
// until ctx is cancelled. An errgroup bounds the scheduler goroutine's
// lifetime against a second goroutine that closes the transport adapter on
// cancellation, so Run returns only once both have stopped. Context
// cancellation (including a deadline) is this Go port's substitute for
// process exit (spec.md §4.4, §5: "no in-band shutdown"), not an error.
func (n *Node) Run(ctx context.Context) error {
	if err := n.scheduler.Bootstrap(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return n.scheduler.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		if n.transport != nil {
			_ = n.transport.Close()
		}
		return nil
	})
	err := g.Wait()
	// Once ctx is done, an error from the scheduler (e.g. a send on a socket
	// the cancellation just closed) is part of shutdown, not a failure.
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
