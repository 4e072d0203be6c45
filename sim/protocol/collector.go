package protocol

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/qswitch-sim/sim"
	"github.com/inference-sim/qswitch-sim/sim/memory"
	"github.com/inference-sim/qswitch-sim/sim/qmem"
)

// Result is the outcome of collecting one link group.
type Result struct {
	Time          int64
	Fidelity      float64
	NodesInvolved []string
}

// Collector turns the switch's link groups into fidelity results. Each
// non-empty group is collected a fixed delay after it was signalled, modelling
// the classical message that tells the leaves their corrections: the leaf
// halves are taken out of the leaf memories, corrected, and compared with the
// GHZ state.
type Collector struct {
	engine     *sim.Engine
	switchName string
	leaves     map[string]*LeafProtocol
	delay      int64

	results []Result
	pending int
	lost    int
}

// NewCollector subscribes a collector to sw. delay is in ticks.
// Panics if delay < 0.
func NewCollector(engine *sim.Engine, sw *SwitchProtocol, delay int64) *Collector {
	if delay < 0 {
		panic(fmt.Sprintf("Collector: delay must be >= 0, got %d", delay))
	}
	c := &Collector{
		engine:     engine,
		switchName: sw.Node().Name(),
		leaves:     make(map[string]*LeafProtocol),
		delay:      delay,
	}
	for _, leaf := range sw.Leaves() {
		c.leaves[leaf.Node().Name()] = leaf
	}
	sw.Subscribe(c.onSignal)
	return c
}

func (c *Collector) onSignal(groups []memory.LinkGroup) {
	for _, group := range groups {
		if group.Empty() {
			continue
		}
		group := group
		c.pending++
		c.engine.After(c.delay, sim.EventTypeCollect, func() { c.collect(group) })
	}
}

func (c *Collector) collect(group memory.LinkGroup) {
	c.pending--
	now := c.engine.Now()

	// Take every leaf half that is still there; a group missing any of them
	// cannot be evaluated.
	qubits := make([]*qmem.Qubit, 0, group.Len())
	var missing []string
	for _, link := range group.Links {
		leaf, ok := c.leaves[link.RemoteNodeName]
		if !ok {
			missing = append(missing, link.String())
			continue
		}
		q, err := leaf.node.take(c.switchName, link.LinkID)
		if err != nil {
			missing = append(missing, link.String())
			continue
		}
		qubits = append(qubits, q)
	}
	if len(missing) > 0 {
		c.lost++
		logrus.Warnf("[tick %012d] collector: group %v lost, leaf halves gone: %v", now, group.Peers(), missing)
		return
	}

	for i, q := range qubits {
		q.Apply(group.CorrectionOperators[i])
	}
	result := Result{
		Time:          now,
		Fidelity:      qmem.GHZFidelity(qubits),
		NodesInvolved: group.Peers(),
	}
	c.results = append(c.results, result)
	logrus.Debugf("[tick %012d] collector: %v fidelity %.4f", now, result.NodesInvolved, result.Fidelity)
}

// Results returns the collected results in collection order.
func (c *Collector) Results() []Result {
	return append([]Result(nil), c.results...)
}

// Fidelities returns the fidelity of every collected group.
func (c *Collector) Fidelities() []float64 {
	f := make([]float64, len(c.results))
	for i, r := range c.results {
		f[i] = r.Fidelity
	}
	return f
}

// NodesInvolved returns the participating leaves of every collected group.
func (c *Collector) NodesInvolved() [][]string {
	nodes := make([][]string, len(c.results))
	for i, r := range c.results {
		nodes[i] = append([]string(nil), r.NodesInvolved...)
	}
	return nodes
}

// Pending returns the number of groups scheduled but not yet collected.
func (c *Collector) Pending() int { return c.pending }

// Lost returns the number of groups whose leaf halves were discarded before collection.
func (c *Collector) Lost() int { return c.lost }

// Reset forgets every result.
func (c *Collector) Reset() {
	c.results = nil
	c.pending = 0
	c.lost = 0
}
