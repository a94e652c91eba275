package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// SocketAdapter is the default Adapter: a length-prefixed framed TCP socket
// cache (spec.md §4.5), grounded on the teacher's Dialer/ConnPool shape
// (_examples' core/connection_pool.go) but simplified per spec.md §5: the
// cache never evicts, since sockets live for the run's lifetime.
type SocketAdapter struct {
	dialTimeout time.Duration

	mu    sync.Mutex
	conns map[string]net.Conn
	dial  singleflight.Group

	listener net.Listener
	inbound  chan [][]byte

	closeOnce sync.Once
	closed    chan struct{}
}

// NewSocketAdapter binds listenAddr and begins accepting inbound framed
// connections in the background. The accept loop and each connection's
// read loop only ever push complete frames into an internal channel; they
// never touch a collection or rule (spec.md §6 concurrency note).
func NewSocketAdapter(listenAddr string, dialTimeout time.Duration) (*SocketAdapter, error) {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", listenAddr, err)
	}
	a := &SocketAdapter{
		dialTimeout: dialTimeout,
		conns:       make(map[string]net.Conn),
		listener:    ln,
		inbound:     make(chan [][]byte, 64),
		closed:      make(chan struct{}),
	}
	go a.acceptLoop()
	return a, nil
}

func (a *SocketAdapter) acceptLoop() {
	for {
		conn, err := a.listener.Accept()
		if err != nil {
			select {
			case <-a.closed:
				return
			default:
				logrus.Warnf("transport: accept failed: %v", err)
				return
			}
		}
		go a.readLoop(conn)
	}
}

func (a *SocketAdapter) readLoop(conn net.Conn) {
	defer conn.Close()
	for {
		frames, err := readMessage(conn)
		if err != nil {
			if err.Error() != "EOF" {
				logrus.Debugf("transport: connection closed: %v", err)
			}
			return
		}
		select {
		case a.inbound <- frames:
		case <-a.closed:
			return
		}
	}
}

func (a *SocketAdapter) connFor(address string) (net.Conn, error) {
	a.mu.Lock()
	if c, ok := a.conns[address]; ok {
		a.mu.Unlock()
		return c, nil
	}
	a.mu.Unlock()

	v, err, _ := a.dial.Do(address, func() (any, error) {
		a.mu.Lock()
		if c, ok := a.conns[address]; ok {
			a.mu.Unlock()
			return c, nil
		}
		a.mu.Unlock()

		dialer := &net.Dialer{Timeout: a.dialTimeout}
		conn, err := dialer.DialContext(context.Background(), "tcp", address)
		if err != nil {
			return nil, fmt.Errorf("transport: dial %s: %w", address, err)
		}
		a.mu.Lock()
		a.conns[address] = conn
		a.mu.Unlock()
		return conn, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(net.Conn), nil
}

// Addr returns the address this adapter is listening on, suitable for
// other nodes' Send calls.
func (a *SocketAdapter) Addr() string {
	return a.listener.Addr().String()
}

// Send opens and caches the outbound socket for address on first use, per
// spec.md §4.5.
func (a *SocketAdapter) Send(address string, frames [][]byte) error {
	conn, err := a.connFor(address)
	if err != nil {
		return err
	}
	if err := writeMessage(conn, frames); err != nil {
		return fmt.Errorf("transport: send to %s: %w", address, err)
	}
	return nil
}

// Poll blocks for at most timeoutMillis waiting for one inbound message.
func (a *SocketAdapter) Poll(ctx context.Context, timeoutMillis int64) ([][]byte, bool, error) {
	return pollChannel(ctx, a.inbound, timeoutMillis)
}

func (a *SocketAdapter) Close() error {
	a.closeOnce.Do(func() {
		close(a.closed)
	})
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range a.conns {
		_ = c.Close()
	}
	return a.listener.Close()
}

var _ Adapter = (*SocketAdapter)(nil)
