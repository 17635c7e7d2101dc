package comm

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ScottSallinen/dgsync/utils"
)

// Blocks until every host has entered the barrier.
func (e *Endpoint) Barrier(ctx context.Context) error {
	_, err := e.allToAll(ctx, KindBarrier, nil)
	return err
}

// Every host contributes one payload; every host gets all of them, indexed by host.
func (e *Endpoint) AllGather(ctx context.Context, payload []byte) ([][]byte, error) {
	return e.allToAll(ctx, KindGather, payload)
}

func (e *Endpoint) allToAll(ctx context.Context, kind Kind, payload []byte) ([][]byte, error) {
	seq := e.begin(kind)
	out := make([][]byte, e.n)
	out[e.id] = payload
	for p := uint32(0); p < e.n; p++ {
		if p != e.id {
			if err := e.send(p, kind, seq, payload); err != nil {
				return nil, err
			}
		}
	}
	for p := uint32(0); p < e.n; p++ {
		if p != e.id {
			b, err := e.recv(ctx, p, kind, seq)
			if err != nil {
				return nil, err
			}
			out[p] = b
		}
	}
	return out, nil
}

// root's payload is returned on every host; the payload of other hosts is ignored.
func (e *Endpoint) Broadcast(ctx context.Context, root uint32, payload []byte) ([]byte, error) {
	if root >= e.n {
		return nil, fmt.Errorf("broadcast root %d of %d: %w", root, e.n, ErrPeerRange)
	}
	seq := e.begin(KindBroadcast)
	if e.id != root {
		return e.recv(ctx, root, KindBroadcast, seq)
	}
	for p := uint32(0); p < e.n; p++ {
		if p != e.id {
			if err := e.send(p, KindBroadcast, seq, payload); err != nil {
				return nil, err
			}
		}
	}
	return payload, nil
}

// Sparse point to point exchange: sends every payload of sends to its host, then receives one
// payload from each host of recvFrom. Hosts must agree pairwise: a sends to b exactly when b
// lists a in recvFrom. Results are indexed by host; hosts not in recvFrom are nil.
func (e *Endpoint) Exchange(ctx context.Context, sends map[uint32][]byte, recvFrom []uint32) ([][]byte, error) {
	seq := e.begin(KindExchange)
	out := make([][]byte, e.n)

	g, gctx := errgroup.WithContext(ctx)
	for to, payload := range sends {
		g.Go(func() error {
			return e.send(to, KindExchange, seq, payload)
		})
	}
	for _, from := range recvFrom {
		g.Go(func() (err error) {
			out[from], err = e.recv(gctx, from, KindExchange, seq)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Combines v across hosts. Contributions are folded in host order, so every host computes
// the identical result even for non-associative floating point rounding.
func AllReduce[T any](ctx context.Context, e *Endpoint, v T, combine func(a, b T) T) (T, error) {
	parts, err := e.AllGather(ctx, utils.AppendValues(nil, v))
	if err != nil {
		return v, err
	}
	var acc T
	for h, b := range parts {
		vals, _, ok := utils.ReadValues[T](b, 1)
		if !ok {
			return v, fmt.Errorf("all-reduce: short contribution of %d bytes from host %d", len(b), h)
		}
		if h == 0 {
			acc = vals[0]
		} else {
			acc = combine(acc, vals[0])
		}
	}
	return acc, nil
}
