package comm

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// In-process link; every host of the cluster lives in this process.
type localLink struct {
	self  uint32
	peers []*Endpoint
}

func (l *localLink) Send(to uint32, f Frame) error {
	// The receiver owns the payload after delivery.
	f.Payload = append([]byte(nil), f.Payload...)
	return l.peers[to].deliver(f)
}

// Closing a host takes its link down on every peer, as a dropped connection would.
func (l *localLink) Close() error {
	for h, p := range l.peers {
		if uint32(h) != l.self {
			p.peerDown(l.self, fmt.Errorf("host %d closed", l.self))
		}
	}
	return nil
}

// Creates n connected endpoints, one per host. reg may be nil.
func NewLocalCluster(n uint32, reg prometheus.Registerer) []*Endpoint {
	peers := make([]*Endpoint, n)
	for i := uint32(0); i < n; i++ {
		peers[i] = newEndpoint(i, n, NewMetrics(reg, i))
		peers[i].link = &localLink{self: i, peers: peers}
	}
	return peers
}
