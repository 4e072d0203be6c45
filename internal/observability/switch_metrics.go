// Package observability exports the switch's scheduling decisions as
// Prometheus metrics.
package observability

import (
	"fmt"
	"io"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/inference-sim/qswitch-sim/sim/protocol"
)

var _ protocol.Recorder = (*SwitchCollector)(nil)

// SwitchCollector counts scheduling decisions and run outcomes. It implements
// protocol.Recorder, so it can be installed on every node of a network.
type SwitchCollector struct {
	gatherer prometheus.Gatherer

	RegisteredLinks *prometheus.CounterVec
	ExpiredLinks    prometheus.Counter
	EvictedLinks    *prometheus.CounterVec
	Connects        *prometheus.CounterVec
	BlockedArrivals *prometheus.CounterVec
	GroupFidelity   prometheus.Histogram
	RunCapacity     prometheus.Gauge
}

// NewSwitchCollector registers the switch metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
// Registering twice against the same registry reuses the existing metrics.
func NewSwitchCollector(reg prometheus.Registerer) (*SwitchCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	registered, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qswitch_links_registered_total",
		Help: "Links registered by the memory managers, labeled by node.",
	}, []string{"node"}), "qswitch_links_registered_total")
	if err != nil {
		return nil, err
	}
	expired, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "qswitch_links_expired_total",
		Help: "Links discarded at the switch by the decoherence cutoff.",
	}), "qswitch_links_expired_total")
	if err != nil {
		return nil, err
	}
	evicted, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qswitch_links_evicted_total",
		Help: "Links discarded to respect the per-leaf buffer size, labeled by the node that held them.",
	}, []string{"node"}), "qswitch_links_evicted_total")
	if err != nil {
		return nil, err
	}
	connects, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qswitch_connects_total",
		Help: "Connect operations performed by the switch, labeled by the number of links consumed.",
	}, []string{"size"}), "qswitch_connects_total")
	if err != nil {
		return nil, err
	}
	blocked, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qswitch_blocked_arrivals_total",
		Help: "Pairs dropped because a reserved slot was still occupied, labeled by leaf.",
	}, []string{"leaf"}), "qswitch_blocked_arrivals_total")
	if err != nil {
		return nil, err
	}
	fidelity, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "qswitch_group_fidelity",
		Help:    "Fidelity of every collected group with the GHZ state.",
		Buckets: prometheus.LinearBuckets(0.5, 0.05, 11),
	}), "qswitch_group_fidelity")
	if err != nil {
		return nil, err
	}
	capacity, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "qswitch_run_capacity",
		Help: "Collected groups per simulated second in the last run.",
	}), "qswitch_run_capacity")
	if err != nil {
		return nil, err
	}

	return &SwitchCollector{
		gatherer:        gatherer,
		RegisteredLinks: registered,
		ExpiredLinks:    expired,
		EvictedLinks:    evicted,
		Connects:        connects,
		BlockedArrivals: blocked,
		GroupFidelity:   fidelity,
		RunCapacity:     capacity,
	}, nil
}

// LinkRegistered implements protocol.Recorder.
func (c *SwitchCollector) LinkRegistered(node string) {
	c.RegisteredLinks.WithLabelValues(node).Inc()
}

// LinksExpired implements protocol.Recorder.
func (c *SwitchCollector) LinksExpired(n int) {
	c.ExpiredLinks.Add(float64(n))
}

// LinksEvicted implements protocol.Recorder.
func (c *SwitchCollector) LinksEvicted(node string, n int) {
	c.EvictedLinks.WithLabelValues(node).Add(float64(n))
}

// Connected implements protocol.Recorder.
func (c *SwitchCollector) Connected(size int) {
	c.Connects.WithLabelValues(strconv.Itoa(size)).Inc()
}

// ArrivalBlocked implements protocol.Recorder.
func (c *SwitchCollector) ArrivalBlocked(leaf string) {
	c.BlockedArrivals.WithLabelValues(leaf).Inc()
}

// ObserveRun records the fidelities and the capacity of a finished run.
func (c *SwitchCollector) ObserveRun(fidelities []float64, capacity float64) {
	for _, f := range fidelities {
		c.GroupFidelity.Observe(f)
	}
	c.RunCapacity.Set(capacity)
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SwitchCollector) Gatherer() prometheus.Gatherer {
	return c.gatherer
}

// WriteText writes every gathered metric family in the Prometheus text format.
func (c *SwitchCollector) WriteText(w io.Writer) error {
	families, err := c.gatherer.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("writing %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
