package transport

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/sirupsen/logrus"
)

// PubSubAdapter is an alternate Adapter backed by libp2p pubsub: each
// channel name is a topic, Send publishes to it, and every topic this node
// has joined via Subscribe feeds Poll's inbound channel. Grounded on
// _examples' core/network.go (NewNode/Broadcast/Subscribe, mDNS discovery)
// and core/peer_management.go (per-topic subscription bookkeeping).
type PubSubAdapter struct {
	host   host.Host
	pubsub *pubsub.PubSub
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
	subs   map[string]*pubsub.Subscription

	inbound chan [][]byte
}

// NewPubSubAdapter creates a libp2p host listening on listenAddr, joins
// gossipsub, and starts mDNS discovery tagged discoveryTag.
func NewPubSubAdapter(listenAddr, discoveryTag string) (*PubSubAdapter, error) {
	ctx, cancel := context.WithCancel(context.Background())

	h, err := libp2p.New(libp2p.ListenAddrStrings(listenAddr))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("transport: create libp2p host: %w", err)
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("transport: create gossipsub: %w", err)
	}

	a := &PubSubAdapter{
		host:    h,
		pubsub:  ps,
		ctx:     ctx,
		cancel:  cancel,
		topics:  make(map[string]*pubsub.Topic),
		subs:    make(map[string]*pubsub.Subscription),
		inbound: make(chan [][]byte, 64),
	}

	mdns.NewMdnsService(h, discoveryTag, mdnsNotifee{host: h})
	return a, nil
}

// mdnsNotifee connects to peers discovered via mDNS, mirroring
// core/network.go's Node.HandlePeerFound (connect, skip self, ignore
// already-known peers — simplified here since PubSubAdapter doesn't track
// a peer table the way the teacher's Node does).
type mdnsNotifee struct{ host host.Host }

func (n mdnsNotifee) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == n.host.ID() {
		return
	}
	if err := n.host.Connect(context.Background(), info); err != nil {
		logrus.Warnf("transport: failed to connect to discovered peer %s: %v", info.ID, err)
	}
}

func (a *PubSubAdapter) topicFor(name string) (*pubsub.Topic, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t, ok := a.topics[name]; ok {
		return t, nil
	}
	t, err := a.pubsub.Join(name)
	if err != nil {
		return nil, fmt.Errorf("transport: join topic %s: %w", name, err)
	}
	a.topics[name] = t
	return t, nil
}

// Subscribe joins name's topic and begins feeding its messages into Poll's
// inbound channel. Fluent channel collections that receive on a topic must
// call this once at node startup.
func (a *PubSubAdapter) Subscribe(name string) error {
	t, err := a.topicFor(name)
	if err != nil {
		return err
	}
	a.mu.Lock()
	if _, ok := a.subs[name]; ok {
		a.mu.Unlock()
		return nil
	}
	sub, err := t.Subscribe()
	if err != nil {
		a.mu.Unlock()
		return fmt.Errorf("transport: subscribe %s: %w", name, err)
	}
	a.subs[name] = sub
	a.mu.Unlock()

	go func() {
		for {
			msg, err := sub.Next(a.ctx)
			if err != nil {
				logrus.Debugf("transport: subscription %s ended: %v", name, err)
				return
			}
			frames, err := readMessage(bytes.NewReader(msg.Data))
			if err != nil {
				logrus.Warnf("transport: discarding malformed pubsub message on %s: %v", name, err)
				continue
			}
			select {
			case a.inbound <- frames:
			case <-a.ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Send publishes frames, framed the same way as SocketAdapter, to the
// topic named by the channel-name frame (frames[1]); address is used only
// in error messages, so every subscriber of that topic receives the message.
func (a *PubSubAdapter) Send(address string, frames [][]byte) error {
	if len(frames) < 2 {
		return fmt.Errorf("transport: publish to %s: missing channel-name frame", address)
	}
	t, err := a.topicFor(string(frames[1]))
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := writeMessage(&buf, frames); err != nil {
		return err
	}
	if err := t.Publish(a.ctx, buf.Bytes()); err != nil {
		return fmt.Errorf("transport: publish %s: %w", address, err)
	}
	return nil
}

func (a *PubSubAdapter) Poll(ctx context.Context, timeoutMillis int64) ([][]byte, bool, error) {
	return pollChannel(ctx, a.inbound, timeoutMillis)
}

func (a *PubSubAdapter) Close() error {
	a.cancel()
	return a.host.Close()
}

var _ Adapter = (*PubSubAdapter)(nil)
