// Package network assembles star networks from scenarios and runs them:
// a switch at the centre, one leaf per distance, a source between the switch
// and every leaf, and a collector that reports the fidelity of every group.
package network

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/qswitch-sim/sim"
	"github.com/inference-sim/qswitch-sim/sim/channel"
	"github.com/inference-sim/qswitch-sim/sim/memory"
	"github.com/inference-sim/qswitch-sim/sim/protocol"
	"github.com/inference-sim/qswitch-sim/sim/qmem"
	"github.com/inference-sim/qswitch-sim/sim/trace"
)

// SwitchNodeName is the name of the central node.
const SwitchNodeName = "switch_node"

// LeafNodeName returns the name of leaf i.
func LeafNodeName(i int) string { return fmt.Sprintf("leaf_node_%d", i) }

// Options are the run settings that are not part of a scenario.
type Options struct {
	// Recorder receives the scheduling decisions of every node; nil for none.
	Recorder protocol.Recorder
	// Trace selects decision tracing.
	Trace trace.TraceConfig
}

// Network is a fully wired star network on its own engine.
type Network struct {
	Engine    *sim.Engine
	Switch    *protocol.SwitchProtocol
	Leaves    []*protocol.LeafProtocol
	Sources   []*channel.Source
	Collector *protocol.Collector
	Trace     *trace.SimulationTrace // nil unless tracing is enabled
}

// New builds the network for sc, seeded with seed. sc must be valid.
func New(sc *Scenario, seed int64, opts Options) (*Network, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	n := sc.NumLeaves()
	engine := sim.NewEngine(sc.Horizon(), sim.NewSimulationKey(seed))
	qcfg := qmem.Config{
		NumPositions: sc.NumPositions,
		T2:           int64(sc.T2 * 1e9),
		Durations:    sc.Durations,
	}
	cutoff := sc.Cutoff()

	// switch slot i is reserved for leaf i
	swMem := qmem.NewMemory(SwitchNodeName, engine, engine.RNG().ForSubsystem(sim.SubsystemSwitch), qcfg)
	reserved := make([]protocol.ReservedSlot, n)
	for i := range reserved {
		reserved[i] = protocol.ReservedSlot{Position: i, Remote: LeafNodeName(i)}
	}
	swNode := protocol.NewNode(SwitchNodeName, engine, swMem, cutoff, reserved)

	net := &Network{Engine: engine}
	rates := sc.Rates()
	buffers := make(map[string]memory.BufferCapacity, n)
	for i := 0; i < n; i++ {
		name := LeafNodeName(i)
		mem := qmem.NewMemory(name, engine, engine.RNG().ForSubsystem(sim.SubsystemLeaf(name)), qcfg)
		node := protocol.NewNode(name, engine, mem, cutoff,
			[]protocol.ReservedSlot{{Position: protocol.LeafReservedSlot, Remote: SwitchNodeName}})
		net.Leaves = append(net.Leaves, protocol.NewLeafProtocol(node, SwitchNodeName, sc.MeasureDirectly))

		delay, err := channel.NewDelayModel(sc.Process(), rates[i], sc.FixedDelay, sc.GammaCV)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		src := channel.NewSource(channel.SourceConfig{
			Leaf:                  name,
			Delay:                 delay,
			BrightStatePopulation: sc.BrightStatePopulation.At(i, 0),
		}, engine,
			channel.Endpoint{Memory: swMem, Position: i},
			channel.Endpoint{Memory: mem, Position: protocol.LeafReservedSlot})
		net.Sources = append(net.Sources, src)

		buffers[name] = sc.BufferSize.At(i, memory.Unbounded)
	}

	net.Switch = protocol.NewSwitchProtocol(swNode, net.Leaves, protocol.SwitchConfig{
		ConnectSize: sc.ConnectSize,
		Buffers:     buffers,
		Privileged:  sc.ServerNodeName,
	})
	if opts.Trace.Enabled() {
		net.Trace = trace.NewSimulationTrace(opts.Trace)
		net.Switch.SetTrace(net.Trace)
	}
	if opts.Recorder != nil {
		swNode.SetRecorder(opts.Recorder)
		for _, leaf := range net.Leaves {
			leaf.Node().SetRecorder(opts.Recorder)
		}
		for _, src := range net.Sources {
			src.OnBlocked(opts.Recorder.ArrivalBlocked)
		}
	}
	net.Collector = protocol.NewCollector(engine, net.Switch, sc.CollectDelayTicks())

	logrus.Infof("network: %d leaves, connect size %d, horizon %d ticks, cutoff %d, collect delay %d, seed %d",
		n, sc.ConnectSize, sc.Horizon(), cutoff, sc.CollectDelayTicks(), seed)
	for i, rate := range rates {
		logrus.Debugf("network: %s at %g km, rate %g Hz, buffer %s", LeafNodeName(i), sc.Distances[i], rate, buffers[LeafNodeName(i)])
	}
	return net, nil
}

// Roles returns the switch protocol followed by the leaf protocols.
func (n *Network) Roles() []protocol.Role {
	roles := make([]protocol.Role, 0, len(n.Leaves)+1)
	roles = append(roles, n.Switch)
	for _, leaf := range n.Leaves {
		roles = append(roles, leaf)
	}
	return roles
}

// Run starts every protocol and source and runs the engine to the horizon.
// It returns the first error any protocol reported.
func (n *Network) Run() error {
	for _, role := range n.Roles() {
		role.Start()
	}
	for _, src := range n.Sources {
		src.Start()
	}
	n.Engine.Run()
	return n.Err()
}

// Err returns the first error reported by the switch or, failing that, a leaf.
func (n *Network) Err() error {
	for _, role := range n.Roles() {
		if err := role.Err(); err != nil {
			return fmt.Errorf("%s: %w", role.Name(), err)
		}
	}
	return nil
}

// Reset returns every component to its initial state under a new seed, ready
// for another Run.
func (n *Network) Reset(seed int64) {
	n.Engine.Reset(sim.NewSimulationKey(seed))
	rng := n.Engine.RNG()
	n.Switch.Reset()
	n.Switch.Node().Memory().Reseed(rng.ForSubsystem(sim.SubsystemSwitch))
	for _, leaf := range n.Leaves {
		leaf.Reset()
		leaf.Node().Memory().Reseed(rng.ForSubsystem(sim.SubsystemLeaf(leaf.Node().Name())))
	}
	for _, src := range n.Sources {
		src.Reset()
	}
	n.Collector.Reset()
	if n.Trace != nil {
		n.Trace = trace.NewSimulationTrace(n.Trace.Config)
		n.Switch.SetTrace(n.Trace)
	}
}
