package protocol

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inference-sim/qswitch-sim/sim"
	"github.com/inference-sim/qswitch-sim/sim/channel"
	"github.com/inference-sim/qswitch-sim/sim/memory"
	"github.com/inference-sim/qswitch-sim/sim/qmem"
	"github.com/inference-sim/qswitch-sim/sim/trace"
)

const testSwitchName = "switch_node"

func leafName(i int) string { return fmt.Sprintf("leaf_node_%d", i) }

func capacity(n int) *memory.BufferCapacity {
	b := memory.BufferCapacity(n)
	return &b
}

// starConfig describes a small star network with fixed-delay sources.
type starConfig struct {
	delays          []int64 // one per leaf
	horizon         int64
	connectSize     int
	switchFree      int
	leafPositions   int
	buffer          *memory.BufferCapacity // nil means unbounded
	cutoff          int64
	privileged      string
	collectDelay    int64
	durations       qmem.Durations
	t2              int64
	measureDirectly bool
}

type star struct {
	engine    *sim.Engine
	sw        *SwitchProtocol
	leaves    []*LeafProtocol
	sources   []*channel.Source
	collector *Collector
	trace     *trace.SimulationTrace
}

func newStar(t *testing.T, cfg starConfig) *star {
	t.Helper()
	if cfg.connectSize == 0 {
		cfg.connectSize = 2
	}
	if cfg.switchFree == 0 {
		cfg.switchFree = 10
	}
	if cfg.leafPositions == 0 {
		cfg.leafPositions = 10
	}

	engine := sim.NewEngine(cfg.horizon, sim.NewSimulationKey(5))
	n := len(cfg.delays)

	swMem := qmem.NewMemory(testSwitchName, engine, engine.RNG().ForSubsystem(sim.SubsystemSwitch), qmem.Config{
		NumPositions: n + cfg.switchFree,
		T2:           cfg.t2,
		Durations:    cfg.durations,
	})
	reserved := make([]ReservedSlot, n)
	for i := range reserved {
		reserved[i] = ReservedSlot{Position: i, Remote: leafName(i)}
	}
	swNode := NewNode(testSwitchName, engine, swMem, cfg.cutoff, reserved)

	s := &star{engine: engine, trace: trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelDecisions})}
	buffers := make(map[string]memory.BufferCapacity, n)
	for i := 0; i < n; i++ {
		name := leafName(i)
		mem := qmem.NewMemory(name, engine, engine.RNG().ForSubsystem(sim.SubsystemLeaf(name)), qmem.Config{
			NumPositions: cfg.leafPositions,
			T2:           cfg.t2,
			Durations:    cfg.durations,
		})
		node := NewNode(name, engine, mem, cfg.cutoff, []ReservedSlot{{Position: LeafReservedSlot, Remote: testSwitchName}})
		s.leaves = append(s.leaves, NewLeafProtocol(node, testSwitchName, cfg.measureDirectly))
		s.sources = append(s.sources, channel.NewSource(channel.SourceConfig{
			Leaf:  name,
			Delay: &channel.FixedDelay{Ticks: cfg.delays[i]},
		}, engine, channel.Endpoint{Memory: swMem, Position: i}, channel.Endpoint{Memory: mem, Position: LeafReservedSlot}))
		if cfg.buffer != nil {
			buffers[name] = *cfg.buffer
		}
	}

	s.sw = NewSwitchProtocol(swNode, s.leaves, SwitchConfig{
		ConnectSize: cfg.connectSize,
		Buffers:     buffers,
		Privileged:  cfg.privileged,
	})
	s.sw.SetTrace(s.trace)
	s.collector = NewCollector(engine, s.sw, cfg.collectDelay)
	return s
}

func (s *star) run(t *testing.T) {
	t.Helper()
	s.sw.Start()
	for _, l := range s.leaves {
		l.Start()
	}
	for _, src := range s.sources {
		src.Start()
	}
	s.engine.Run()
	require.NoError(t, s.sw.Err())
	for _, l := range s.leaves {
		require.NoError(t, l.Err(), l.Name())
	}
}
