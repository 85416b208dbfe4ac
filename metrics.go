package abd

import "github.com/VictoriaMetrics/metrics"

// Metrics groups the counters/histograms this package exports. Grounded on
// R2Northstar-Atlas's pkg/api/api0/metrics.go: a plain struct of
// *metrics.Counter/*metrics.Histogram fields registered on a private
// *metrics.Set, rather than the package-global metrics registry.
type Metrics struct {
	set *metrics.Set

	PacketsSent     *metrics.Counter
	PacketsReceived *metrics.Counter
	Kicks           *metrics.Counter
	OpenSockets     *metrics.Counter
	PayloadSize     *metrics.Histogram
}

// NewMetrics registers a fresh metric set. Callers that don't want metrics
// at all can simply pass a nil *Metrics everywhere — every call site in
// this package nil-checks before touching it.
func NewMetrics() *Metrics {
	set := metrics.NewSet()
	return &Metrics{
		set:             set,
		PacketsSent:     set.NewCounter("abd_packets_sent_total"),
		PacketsReceived: set.NewCounter("abd_packets_received_total"),
		Kicks:           set.NewCounter("abd_transport_kicks_total"),
		OpenSockets:     set.NewCounter("abd_open_sockets"),
		PayloadSize:     set.NewHistogram("abd_payload_size_bytes"),
	}
}

// Set exposes the underlying *metrics.Set so the admin control server can
// serve it on /metrics.
func (m *Metrics) Set() *metrics.Set { return m.set }
