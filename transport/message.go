package transport

import (
	"fmt"
	"strconv"
)

// ChannelMessage is the decoded shape of spec.md §4.5's channel frame
// sequence: [node id, channel name, logical time, columns...].
type ChannelMessage struct {
	NodeID      string
	Channel     string
	LogicalTime int64
	Columns     [][]byte
}

// DecodeChannelMessage parses raw inbound frames into a ChannelMessage.
// Codec failures here are the spec's "Codec" error kind: the caller logs
// and drops the message rather than treating it as fatal (spec.md §4.8).
func DecodeChannelMessage(frames [][]byte) (ChannelMessage, error) {
	if len(frames) < 3 {
		return ChannelMessage{}, fmt.Errorf("transport: expected at least 3 frames, got %d", len(frames))
	}
	logicalTime, err := strconv.ParseInt(string(frames[2]), 10, 64)
	if err != nil {
		return ChannelMessage{}, fmt.Errorf("transport: parse logical time %q: %w", frames[2], err)
	}
	return ChannelMessage{
		NodeID:      string(frames[0]),
		Channel:     string(frames[1]),
		LogicalTime: logicalTime,
		Columns:     frames[3:],
	}, nil
}
