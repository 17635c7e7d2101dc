package comm

import (
	"errors"
)

var (
	ErrClosed           = errors.New("comm: endpoint closed")
	ErrSequenceMismatch = errors.New("comm: collective sequence mismatch")
	ErrPeerRange        = errors.New("comm: peer out of range")
	ErrPeerDown         = errors.New("comm: link to peer is down")
	ErrMalformedFrame   = errors.New("comm: malformed frame")
)

// Kind tags the collective a frame belongs to.
type Kind uint8

const (
	KindBarrier Kind = iota + 1
	KindGather
	KindBroadcast
	KindExchange
	KindHandshake
)

func (k Kind) String() string {
	switch k {
	case KindBarrier:
		return "barrier"
	case KindGather:
		return "gather"
	case KindBroadcast:
		return "broadcast"
	case KindExchange:
		return "exchange"
	case KindHandshake:
		return "handshake"
	}
	return "unknown"
}

// A Frame is one message between two hosts. Seq is the sender's collective sequence number;
// hosts run the same collectives in the same order, so a receiver expects its own number.
type Frame struct {
	Kind    Kind
	From    uint32
	Seq     uint64
	Payload []byte
}

// A Link moves frames between hosts. Delivered frames go to the receiving endpoint's inbox for
// the sender, preserving per-sender order.
type Link interface {
	Send(to uint32, f Frame) error
	Close() error
}
