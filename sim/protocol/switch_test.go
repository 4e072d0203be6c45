package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/qswitch-sim/sim"
	"github.com/inference-sim/qswitch-sim/sim/memory"
	"github.com/inference-sim/qswitch-sim/sim/qmem"
	"github.com/inference-sim/qswitch-sim/sim/trace"
)

func TestSwitch_EndToEnd_ConnectCountMatchesClosedHorizon(t *testing.T) {
	// GIVEN two leaves producing every 10 ticks, first pair at t=10
	tests := []struct {
		horizon int64
		want    int
	}{
		{9, 0},
		{10, 1},
		{19, 1},
		{20, 2},
		{21, 2},
		{100, 10},
	}
	for _, tc := range tests {
		s := newStar(t, starConfig{delays: []int64{10, 10}, horizon: tc.horizon})

		// WHEN the simulation runs to the horizon
		s.run(t)

		// THEN floor((horizon - 10) / 10) + 1 groups are collected, a completion
		// exactly at the horizon included
		assert.Equal(t, tc.want, s.sw.Connects(), "horizon %d", tc.horizon)
		assert.Len(t, s.collector.Fidelities(), tc.want, "horizon %d", tc.horizon)
		for _, f := range s.collector.Fidelities() {
			assert.InDelta(t, 1.0, f, 1e-12)
		}
	}
}

func TestSwitch_SimultaneousArrivals_RegisteredInOneWake(t *testing.T) {
	// GIVEN two pairs landing at the same instant on different reserved slots
	s := newStar(t, starConfig{delays: []int64{10, 10}, horizon: 10})

	// WHEN the only wake at that instant runs
	s.run(t)

	// THEN both links were registered and connected at once
	require.Len(t, s.trace.Connects, 1)
	c := s.trace.Connects[0]
	assert.Equal(t, int64(10), c.Clock)
	assert.Equal(t, []int64{0, 0}, c.Ages)
	assert.ElementsMatch(t, []string{leafName(0), leafName(1)}, c.Peers)
}

func TestSwitch_NoMatchWithoutDistinctPeers(t *testing.T) {
	// GIVEN only one leaf producing within the horizon
	s := newStar(t, starConfig{delays: []int64{10, 1000}, horizon: 100})

	s.run(t)

	// THEN links pile up at the switch, moved out of the reserved slot
	assert.Equal(t, 0, s.sw.Connects())
	assert.Equal(t, 10, s.sw.Node().Manager().LinksWith(leafName(0)))
	assert.False(t, s.sw.Node().Manager().IsInUse(0))
	assert.Equal(t, 10, s.leaves[0].Node().Manager().LinksWith(testSwitchName))
}

func TestSwitch_OLEF_UsesOldestLinkPerPeer(t *testing.T) {
	// GIVEN a fast leaf and a slow leaf
	s := newStar(t, starConfig{delays: []int64{10, 35}, horizon: 35})

	s.run(t)

	// THEN the slow leaf's first pair is matched with the fast leaf's oldest link
	require.Len(t, s.trace.Connects, 1)
	c := s.trace.Connects[0]
	assert.Equal(t, []string{leafName(0), leafName(1)}, c.Peers)
	assert.Equal(t, []int{0, 0}, c.LinkIDs)
	assert.Equal(t, []int64{25, 0}, c.Ages)
	assert.Equal(t, 2, s.sw.Node().Manager().LinksWith(leafName(0)))
}

func TestSwitch_PrivilegedPeer_TakesPartInEveryConnect(t *testing.T) {
	// GIVEN three leaves where the slowest is privileged
	s := newStar(t, starConfig{
		delays:     []int64{10, 10, 30},
		horizon:    90,
		privileged: leafName(2),
		switchFree: 20,
	})

	s.run(t)

	// THEN leaves 0 and 1 are never connected with each other alone
	require.Equal(t, 3, s.sw.Connects())
	for _, nodes := range s.collector.NodesInvolved() {
		assert.Contains(t, nodes, leafName(2))
	}
}

func TestSwitch_BufferEviction_AppliedAtBothEnds(t *testing.T) {
	// GIVEN a buffer of one link per leaf and one fast leaf
	s := newStar(t, starConfig{
		delays:  []int64{10, 1000},
		horizon: 1000,
		buffer:  capacity(1),
	})

	s.run(t)

	// THEN every excess link was discarded at the switch and at the leaf alike
	summary := trace.Summarize(s.trace)
	assert.Equal(t, 99, summary.EvictionsPerNode[testSwitchName])
	assert.Equal(t, 99, summary.EvictionsPerNode[leafName(0)])

	// AND the one connect used the newest link and collected a perfect state
	require.Len(t, s.trace.Connects, 1)
	assert.Equal(t, []int{99, 0}, s.trace.Connects[0].LinkIDs)
	require.Len(t, s.collector.Fidelities(), 1)
	assert.InDelta(t, 1.0, s.collector.Fidelities()[0], 1e-12)
	assert.Equal(t, 0, s.collector.Lost())
}

func TestSwitch_BufferEviction_KeepsLeafHalvesAwaitingCollection(t *testing.T) {
	tests := []struct {
		name         string
		buffer       int
		collectDelay int64
		collected    int
		pending      int
	}{
		{name: "one slot, collected after the next arrival", buffer: 1, collectDelay: 15, collected: 8, pending: 2},
		{name: "three slots, four groups awaiting", buffer: 3, collectDelay: 35, collected: 6, pending: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN bounded buffers and groups that stay at the leaves longer
			// than one pair interval
			s := newStar(t, starConfig{
				delays:       []int64{10, 10},
				horizon:      100,
				buffer:       capacity(tt.buffer),
				collectDelay: tt.collectDelay,
			})

			// WHEN every arrival is connected at once
			s.run(t)

			// THEN the connected halves held by the leaves are never evicted
			require.Equal(t, 10, s.sw.Connects())
			assert.Zero(t, s.collector.Lost())
			assert.Len(t, s.collector.Results(), tt.collected)
			assert.Equal(t, tt.pending, s.collector.Pending())
			for _, f := range s.collector.Fidelities() {
				assert.InDelta(t, 1.0, f, 1e-12)
			}
			summary := trace.Summarize(s.trace)
			assert.Zero(t, summary.EvictionsPerNode[leafName(0)])
			assert.Zero(t, summary.EvictionsPerNode[leafName(1)])
		})
	}
}

func TestSwitch_BufferZero_NeverConnects(t *testing.T) {
	s := newStar(t, starConfig{delays: []int64{10, 10}, horizon: 50, buffer: capacity(0)})

	s.run(t)

	assert.Equal(t, 0, s.sw.Connects())
	assert.Equal(t, 0, s.sw.Node().Manager().Len())
	for _, l := range s.leaves {
		assert.Equal(t, 0, l.Node().Manager().Len())
	}
}

func TestSwitch_Cutoff_ExpiresAtBothEnds(t *testing.T) {
	// GIVEN a 25-tick cutoff and a leaf that waits for a slow partner
	s := newStar(t, starConfig{
		delays:  []int64{10, 1000},
		horizon: 1000,
		cutoff:  25,
	})

	s.run(t)

	// THEN links older than the cutoff never took part in a connect
	assert.Len(t, s.trace.Expiries, 97)
	require.Len(t, s.trace.Connects, 1)
	assert.Equal(t, int64(20), s.trace.Connects[0].Ages[0])

	// AND both ends hold the same links afterwards
	assert.Equal(t, 2, s.sw.Node().Manager().LinksWith(leafName(0)))
	assert.Equal(t, 2, s.leaves[0].Node().Manager().LinksWith(testSwitchName))
	assert.Equal(t, 0, s.collector.Lost())
}

func TestSwitch_ConnectSizeThree(t *testing.T) {
	s := newStar(t, starConfig{delays: []int64{10, 10, 10}, horizon: 30, connectSize: 3})

	s.run(t)

	assert.Equal(t, 3, s.sw.Connects())
	for _, f := range s.collector.Fidelities() {
		assert.InDelta(t, 1.0, f, 1e-12)
	}
	for _, c := range s.trace.Connects {
		assert.Len(t, c.Corrections, 3)
	}
}

func TestSwitch_SlowOperations_ArrivalsDuringSuspendedCycles(t *testing.T) {
	// GIVEN operations that take time and leaves out of phase
	s := newStar(t, starConfig{
		delays:       []int64{10, 7},
		horizon:      1000,
		collectDelay: 5,
		durations:    qmem.Durations{Move: 3, Measure: 1, Connect: 2},
	})

	s.run(t)

	// THEN no cycle failed and every connect is accounted for
	require.Greater(t, s.sw.Connects(), 50)
	assert.Equal(t, 0, s.collector.Lost())
	assert.Equal(t, s.sw.Connects(), len(s.collector.Results())+s.collector.Pending())
	for _, f := range s.collector.Fidelities() {
		assert.InDelta(t, 1.0, f, 1e-12)
	}
}

func TestSwitch_StateDuringSuspendedMove(t *testing.T) {
	// GIVEN moves that take 4 ticks
	s := newStar(t, starConfig{delays: []int64{10, 1000}, horizon: 20, durations: qmem.Durations{Move: 4}})
	var during, after State
	s.engine.At(12, sim.EventTypeCollect, func() { during = s.sw.State() })
	s.engine.At(15, sim.EventTypeCollect, func() { after = s.sw.State() })

	s.run(t)

	// THEN the switch waits in DRAIN_RESERVED until the move completes
	assert.Equal(t, StateDrainReserved, during)
	assert.Equal(t, StateAwaitArrival, after)
}

func TestSwitch_SignalsEveryCycle(t *testing.T) {
	s := newStar(t, starConfig{delays: []int64{10, 1000}, horizon: 30})
	var batches []int
	s.sw.Subscribe(func(groups []memory.LinkGroup) { batches = append(batches, len(groups)) })

	s.run(t)

	assert.Equal(t, []int{0, 0, 0}, batches)
}

func TestSwitch_Reset_ReturnsToFreshState(t *testing.T) {
	s := newStar(t, starConfig{delays: []int64{10, 30}, horizon: 100})
	s.run(t)
	require.Positive(t, s.sw.Connects())

	s.sw.Reset()
	for _, l := range s.leaves {
		l.Reset()
	}

	assert.Equal(t, StateAwaitArrival, s.sw.State())
	assert.Equal(t, 0, s.sw.Node().Manager().Len())
	assert.Equal(t, 0, s.sw.Connects())
	assert.False(t, s.sw.Node().Memory().InUse(0))
	for _, l := range s.leaves {
		assert.Equal(t, 0, l.Node().Manager().Len())
	}
}

func TestNewSwitchProtocol_Panics(t *testing.T) {
	engine := sim.NewEngine(10, sim.NewSimulationKey(1))
	mem := qmem.NewMemory(testSwitchName, engine, engine.RNG().ForSubsystem(sim.SubsystemSwitch), qmem.Config{NumPositions: 4})
	node := NewNode(testSwitchName, engine, mem, 0, []ReservedSlot{{Position: 0, Remote: "ghost"}})

	assert.PanicsWithValue(t, "SwitchProtocol: ConnectSize must be >= 2, got 1", func() {
		NewSwitchProtocol(node, nil, SwitchConfig{ConnectSize: 1})
	})
	assert.Panics(t, func() { NewSwitchProtocol(node, nil, SwitchConfig{ConnectSize: 2}) })

	free := NewNode(testSwitchName, engine, mem, 0, nil)
	assert.Panics(t, func() { NewSwitchProtocol(free, nil, SwitchConfig{ConnectSize: 2, Privileged: "ghost"}) })
}
