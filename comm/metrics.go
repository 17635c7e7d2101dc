package comm

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Transport counters of one endpoint, labelled by collective kind.
type Metrics struct {
	FramesSent    *prometheus.CounterVec
	BytesSent     *prometheus.CounterVec
	BytesReceived *prometheus.CounterVec
	Collectives   *prometheus.CounterVec
}

// Creates the endpoint counters, registering them on reg if it is not nil.
func NewMetrics(reg prometheus.Registerer, host uint32) *Metrics {
	labels := prometheus.Labels{"host": strconv.FormatUint(uint64(host), 10)}
	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "dgsync",
			Subsystem:   "comm",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, []string{"kind"})
	}
	m := &Metrics{
		FramesSent:    counter("frames_sent_total", "Frames sent to other hosts."),
		BytesSent:     counter("bytes_sent_total", "Payload bytes sent to other hosts, before compression."),
		BytesReceived: counter("bytes_received_total", "Payload bytes received from other hosts."),
		Collectives:   counter("collectives_total", "Collective operations started."),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.FramesSent, m.BytesSent, m.BytesReceived, m.Collectives} {
			if err := reg.Register(c); err != nil {
				log.Warn().Err(err).Msg("Failed to register comm metrics for host " + labels["host"])
			}
		}
	}
	return m
}

func (m *Metrics) sent(kind Kind, n int) {
	m.FramesSent.WithLabelValues(kind.String()).Inc()
	m.BytesSent.WithLabelValues(kind.String()).Add(float64(n))
}

func (m *Metrics) received(kind Kind, n int) {
	m.BytesReceived.WithLabelValues(kind.String()).Add(float64(n))
}

func (m *Metrics) collective(kind Kind) {
	m.Collectives.WithLabelValues(kind.String()).Inc()
}
