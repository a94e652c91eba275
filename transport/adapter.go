// Package transport implements the Fluent transport adapter contract of
// spec.md §4.5: outbound send with a lazily-populated socket cache, and an
// inbound poll/receive pair the scheduler drives with a timeout computed
// from the earliest pending periodic.
package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// Adapter is the transport contract the scheduler depends on. Send opens
// and caches the socket for address on first use and never evicts it
// (spec.md §4.5, §5 "grow-only... no eviction"). Poll blocks for at most
// timeout waiting for one inbound message; ok is false on timeout.
type Adapter interface {
	Send(address string, frames [][]byte) error
	Poll(ctx context.Context, timeoutMillis int64) (frames [][]byte, ok bool, err error)
	Close() error
}

// writeMessage frames a multipart message as a frame count followed by one
// uint32 length prefix + payload per frame (spec.md §4.5's "multipart
// message"), mirroring the length-prefixed wire shape §6 specifies.
func writeMessage(w io.Writer, frames [][]byte) error {
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(frames)))
	if _, err := w.Write(countBuf[:]); err != nil {
		return fmt.Errorf("transport: write frame count: %w", err)
	}
	for _, f := range frames {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(f)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return fmt.Errorf("transport: write frame length: %w", err)
		}
		if _, err := w.Write(f); err != nil {
			return fmt.Errorf("transport: write frame: %w", err)
		}
	}
	return nil
}

// pollChannel implements the common Poll shape shared by SocketAdapter and
// PubSubAdapter: wait at most timeoutMillis for one message on inbound, or
// indefinitely if timeoutMillis is negative.
func pollChannel(ctx context.Context, inbound <-chan [][]byte, timeoutMillis int64) ([][]byte, bool, error) {
	if timeoutMillis < 0 {
		select {
		case frames := <-inbound:
			return frames, true, nil
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
	timer := time.NewTimer(time.Duration(timeoutMillis) * time.Millisecond)
	defer timer.Stop()
	select {
	case frames := <-inbound:
		return frames, true, nil
	case <-timer.C:
		return nil, false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func readMessage(r io.Reader) ([][]byte, error) {
	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, err
	}
	count := binary.BigEndian.Uint32(countBuf[:])
	frames := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, fmt.Errorf("transport: read frame %d length: %w", i, err)
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("transport: read frame %d body: %w", i, err)
		}
		frames = append(frames, buf)
	}
	return frames, nil
}
