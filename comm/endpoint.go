package comm

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ScottSallinen/dgsync/utils"
)

const inboxSize = 1024

// Endpoint is one host's view of the cluster. Collectives on an endpoint must be called
// from one goroutine at a time, in the same order on every host.
type Endpoint struct {
	id      uint32
	n       uint32
	link    Link
	inbox   []chan Frame // Indexed by sending host.
	seq     uint64
	metrics *Metrics
	log     zerolog.Logger

	closeOnce sync.Once
	closed    chan struct{}
	cause     error // Why the endpoint closed; nil after a plain Close.

	down     []chan struct{} // Closed once the link to that host is gone.
	downOnce []sync.Once
	downErr  []error
}

func newEndpoint(id, n uint32, metrics *Metrics) *Endpoint {
	e := &Endpoint{
		id:      id,
		n:       n,
		inbox:   make([]chan Frame, n),
		metrics: metrics,
		log:     utils.HostLogger(id),
		closed:  make(chan struct{}),

		down:     make([]chan struct{}, n),
		downOnce: make([]sync.Once, n),
		downErr:  make([]error, n),
	}
	for i := range e.inbox {
		e.inbox[i] = make(chan Frame, inboxSize)
		e.down[i] = make(chan struct{})
	}
	return e
}

func (e *Endpoint) ID() uint32 {
	return e.id
}

func (e *Endpoint) NumHosts() uint32 {
	return e.n
}

func (e *Endpoint) Metrics() *Metrics {
	return e.metrics
}

func (e *Endpoint) Close() error {
	return e.Abort(nil)
}

// Closes the endpoint; collectives blocked on it, or started later, fail with ErrClosed wrapping
// cause. Peers see their link to this host go down.
func (e *Endpoint) Abort(cause error) error {
	var err error
	e.closeOnce.Do(func() {
		e.cause = cause
		close(e.closed)
		if e.link != nil {
			err = e.link.Close()
		}
	})
	return err
}

func (e *Endpoint) closedErr() error {
	if e.cause != nil {
		return fmt.Errorf("%w: %w", ErrClosed, e.cause)
	}
	return ErrClosed
}

// The link to host h is gone. Frames already delivered from h can still be received; waiting
// for more fails with ErrPeerDown.
func (e *Endpoint) peerDown(h uint32, cause error) {
	e.downOnce[h].Do(func() {
		e.downErr[h] = cause
		close(e.down[h])
	})
}

// Hands an arriving frame to the inbox of its sender.
func (e *Endpoint) deliver(f Frame) error {
	if f.From >= e.n {
		return fmt.Errorf("frame from host %d of %d: %w", f.From, e.n, ErrPeerRange)
	}
	select {
	case e.inbox[f.From] <- f:
		return nil
	case <-e.closed:
		return e.closedErr()
	}
}

// Starts the next collective; all frames of this collective carry the returned number.
func (e *Endpoint) begin(kind Kind) uint64 {
	e.seq++
	e.metrics.collective(kind)
	return e.seq
}

func (e *Endpoint) send(to uint32, kind Kind, seq uint64, payload []byte) error {
	if to >= e.n || to == e.id {
		return fmt.Errorf("send to host %d from %d of %d: %w", to, e.id, e.n, ErrPeerRange)
	}
	select {
	case <-e.closed:
		return e.closedErr()
	default:
	}
	select {
	case <-e.down[to]:
		return e.downError(to)
	default:
	}
	f := Frame{Kind: kind, From: e.id, Seq: seq, Payload: payload}
	if err := e.link.Send(to, f); err != nil {
		return fmt.Errorf("send %s to host %d: %w", kind, to, err)
	}
	e.metrics.sent(kind, len(payload))
	return nil
}

func (e *Endpoint) downError(h uint32) error {
	if err := e.downErr[h]; err != nil {
		return fmt.Errorf("host %d: %w: %w", h, ErrPeerDown, err)
	}
	return fmt.Errorf("host %d: %w", h, ErrPeerDown)
}

func (e *Endpoint) recv(ctx context.Context, from uint32, kind Kind, seq uint64) ([]byte, error) {
	if from >= e.n || from == e.id {
		return nil, fmt.Errorf("receive from host %d on %d of %d: %w", from, e.id, e.n, ErrPeerRange)
	}
	select {
	case f := <-e.inbox[from]:
		return e.accept(f, from, kind, seq)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.closed:
		return nil, e.closedErr()
	case <-e.down[from]:
		// The peer may have sent this frame before its link went down.
		select {
		case f := <-e.inbox[from]:
			return e.accept(f, from, kind, seq)
		default:
			return nil, e.downError(from)
		}
	}
}

func (e *Endpoint) accept(f Frame, from uint32, kind Kind, seq uint64) ([]byte, error) {
	if f.Kind != kind || f.Seq != seq {
		return nil, fmt.Errorf("host %d expected %s #%d from host %d, got %s #%d: %w",
			e.id, kind, seq, from, f.Kind, f.Seq, ErrSequenceMismatch)
	}
	e.metrics.received(kind, len(f.Payload))
	return f.Payload, nil
}
