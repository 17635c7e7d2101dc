package comm

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/ScottSallinen/dgsync/utils"
)

type TCPConfig struct {
	ID          uint32
	Addrs       []string // Listen address of every host, indexed by host id.
	Compression Compression
	DialTimeout time.Duration
	Registerer  prometheus.Registerer
}

type tcpLink struct {
	ln      net.Listener
	conns   []net.Conn
	readers []*bufio.Reader
	wmu   []sync.Mutex
	codec *codec
}

// Connects to every other host of cfg.Addrs. Host i dials the hosts below it and accepts
// the hosts above it, so each pair shares one connection.
func DialMesh(ctx context.Context, cfg TCPConfig) (*Endpoint, error) {
	n := uint32(len(cfg.Addrs))
	if cfg.ID >= n {
		return nil, fmt.Errorf("host %d with %d addresses: %w", cfg.ID, n, ErrPeerRange)
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	c, err := newCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}
	e := newEndpoint(cfg.ID, n, NewMetrics(cfg.Registerer, cfg.ID))
	link := &tcpLink{conns: make([]net.Conn, n), readers: make([]*bufio.Reader, n), wmu: make([]sync.Mutex, n), codec: c}
	e.link = link

	var lc net.ListenConfig
	if link.ln, err = lc.Listen(ctx, "tcp", cfg.Addrs[cfg.ID]); err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Addrs[cfg.ID], err)
	}

	if tl, ok := link.ln.(*net.TCPListener); ok {
		tl.SetDeadline(time.Now().Add(cfg.DialTimeout)) // Bounds Accept.
	}
	dctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	g, gctx := errgroup.WithContext(dctx)

	g.Go(func() error {
		for accepted := cfg.ID + 1; accepted < n; accepted++ {
			conn, err := link.ln.Accept()
			if err != nil {
				return fmt.Errorf("accept: %w", err)
			}
			r := bufio.NewReaderSize(conn, 1<<16)
			f, err := link.readFrame(r)
			if err != nil || f.Kind != KindHandshake || f.From <= cfg.ID || f.From >= n || link.conns[f.From] != nil {
				conn.Close()
				return fmt.Errorf("bad handshake from %s (%v)", conn.RemoteAddr(), err)
			}
			link.conns[f.From], link.readers[f.From] = conn, r
		}
		return nil
	})
	for peer := uint32(0); peer < cfg.ID; peer++ {
		g.Go(func() error {
			conn, err := dialRetry(gctx, cfg.Addrs[peer])
			if err != nil {
				return err
			}
			link.conns[peer], link.readers[peer] = conn, bufio.NewReaderSize(conn, 1<<16)
			return link.writeFrame(peer, Frame{Kind: KindHandshake, From: cfg.ID})
		})
	}
	if err := g.Wait(); err != nil {
		link.Close()
		return nil, fmt.Errorf("mesh setup of host %d: %w", cfg.ID, err)
	}

	for peer, r := range link.readers {
		if r != nil {
			go link.readLoop(e, uint32(peer), r)
		}
	}
	e.log.Info().Msg("Connected to " + utils.V(n-1) + " peers, compression " + cfg.Compression.String())
	return e, nil
}

func dialRetry(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	for attempt := 0; ; attempt++ {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		utils.BackOff(attempt)
	}
}

// Delivers the frames of peer until its connection ends, then takes the peer down.
func (l *tcpLink) readLoop(e *Endpoint, peer uint32, r *bufio.Reader) {
	err := l.deliverFrom(e, peer, r)
	select {
	case <-e.closed:
		return
	default:
	}
	if errors.Is(err, io.EOF) {
		e.log.Debug().Msg("Host " + utils.V(peer) + " closed its connection")
	} else {
		e.log.Error().Err(err).Msg("Connection to host " + utils.V(peer) + " failed")
	}
	e.peerDown(peer, err)
}

func (l *tcpLink) deliverFrom(e *Endpoint, peer uint32, r *bufio.Reader) error {
	for {
		f, err := l.readFrame(r)
		if err != nil {
			return err
		}
		if f.From != peer {
			return fmt.Errorf("frame claims host %d on the connection of host %d: %w", f.From, peer, ErrMalformedFrame)
		}
		if err := e.deliver(f); err != nil {
			return err
		}
	}
}

func (l *tcpLink) Send(to uint32, f Frame) error {
	return l.writeFrame(to, f)
}

// Frames go on the wire as size delimited protobuf messages.
func (l *tcpLink) writeFrame(to uint32, f Frame) error {
	body, flags := l.codec.compress(f.Payload)
	msg := appendFrame(make([]byte, 0, len(body)+32), f, flags, body)
	buf := protowire.AppendVarint(make([]byte, 0, protowire.SizeVarint(uint64(len(msg)))+len(msg)), uint64(len(msg)))
	buf = append(buf, msg...)

	l.wmu[to].Lock()
	defer l.wmu[to].Unlock()
	_, err := l.conns[to].Write(buf)
	return err
}

func (l *tcpLink) readFrame(r *bufio.Reader) (Frame, error) {
	size, err := binary.ReadUvarint(r)
	if err != nil {
		return Frame{}, err
	}
	if size > math.MaxInt32 {
		return Frame{}, fmt.Errorf("frame of %d bytes: %w", size, ErrMalformedFrame)
	}
	msg := make([]byte, size)
	if _, err := io.ReadFull(r, msg); err != nil {
		return Frame{}, fmt.Errorf("frame body: %w", err)
	}
	f, flags, body, err := parseFrame(msg)
	if err != nil {
		return Frame{}, err
	}
	if f.Payload, err = l.codec.decompress(flags, body); err != nil {
		return Frame{}, err
	}
	return f, nil
}

func (l *tcpLink) Close() error {
	var errs []error
	if l.ln != nil {
		errs = append(errs, l.ln.Close())
	}
	for _, c := range l.conns {
		if c != nil {
			errs = append(errs, c.Close())
		}
	}
	l.codec.close()
	return errors.Join(errs...)
}
