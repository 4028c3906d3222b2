package core

import (
	"errors"

	"github.com/dkeye/meetrelay/internal/domain"
)

var (
	// ErrBackpressure means the peer's send queue is full.
	ErrBackpressure = errors.New("send queue full")
	ErrClosed       = errors.New("connection closed")
)

// Frame is one encoded control payload, without the length prefix.
type Frame []byte

// SignalConnection abstracts the reliable channel of one peer.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend queues the frame without blocking on the network.
	TrySend(Frame) error
	Close()
}

// Delivery is the outcome of one send in a broadcast or unicast.
type Delivery struct {
	Peer domain.PeerID
	Err  error
}

// Failed returns the deliveries that did not go through.
func Failed(ds []Delivery) []Delivery {
	var out []Delivery
	for _, d := range ds {
		if d.Err != nil {
			out = append(out, d)
		}
	}
	return out
}
