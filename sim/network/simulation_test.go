package network

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/qswitch-sim/sim/protocol"
	"github.com/inference-sim/qswitch-sim/sim/trace"
)

func runOnce(t *testing.T, sc Scenario, seed int64, opts Options) *Result {
	t.Helper()
	sim, err := NewSimulation(sc, seed, opts)
	require.NoError(t, err)
	require.NoError(t, sim.Run())
	res, err := sim.Result()
	require.NoError(t, err)
	return res
}

func TestSimulation_FixedDelay_LinksProducedUpToRuntime(t *testing.T) {
	// GIVEN two leaves receiving a pair every 10 ns, the first at 10 ns
	tests := []struct {
		runtimeNs float64
		want      int
	}{
		{9, 0},
		{10 + 1e-9, 1},
		{11, 1},
		{20 + 1e-9, 2},
		{21, 2},
	}
	for _, tc := range tests {
		// WHEN the simulation runs for the given runtime
		res := runOnce(t, fixedScenario(tc.runtimeNs), 42, Options{})

		// THEN one group is produced per completed arrival
		assert.Equal(t, tc.want, res.NumberOfLinksProduced(), "runtime %g ns", tc.runtimeNs)
	}
}

func TestSimulation_RunTwiceFails(t *testing.T) {
	sim, err := NewSimulation(fixedScenario(20), 42, Options{})
	require.NoError(t, err)

	_, err = sim.Result()
	assert.ErrorIs(t, err, ErrNotRun)

	require.NoError(t, sim.Run())
	assert.True(t, sim.HasRun())
	assert.ErrorIs(t, sim.Run(), ErrAlreadyRun)

	sim.Reset()
	assert.False(t, sim.HasRun())
	assert.NoError(t, sim.Run())
}

func TestSimulation_NewRejectsInvalidScenario(t *testing.T) {
	sc := fixedScenario(20)
	sc.ConnectSize = 1
	_, err := NewSimulation(sc, 1, Options{})
	assert.Error(t, err)
}

func TestResult_DerivedQuantities(t *testing.T) {
	res := runOnce(t, fixedScenario(20), 42, Options{})

	require.Equal(t, 2, res.NumberOfLinksProduced())
	assert.InDelta(t, 2/20e-9, res.Capacity(), 1)
	states := res.StatesPerNode()
	assert.InDelta(t, 2/20e-9, states["leaf_node_0"], 1)
	assert.InDelta(t, 2/20e-9, states["leaf_node_1"], 1)
	assert.Equal(t, map[string]int{"leaf_node_0": 2, "leaf_node_1": 2}, res.Generated)
	assert.NotEqual(t, uuid.Nil, res.RunID)
	f := res.MeanFidelity()
	assert.True(t, f >= 0 && f <= 1, "mean fidelity %g", f)
}

func TestResult_MeanFidelityOfNothingIsNaN(t *testing.T) {
	res := runOnce(t, fixedScenario(9), 42, Options{})
	assert.True(t, math.IsNaN(res.MeanFidelity()))
	assert.Zero(t, res.Capacity())
}

func TestSimulation_SameSeedSameResult(t *testing.T) {
	// GIVEN two simulations of a random scenario with the same seed
	a := runOnce(t, exponentialScenario(), 7, Options{})
	b := runOnce(t, exponentialScenario(), 7, Options{})

	// THEN they produce identical groups
	require.NotEmpty(t, a.Fidelities)
	assert.Equal(t, a.Fidelities, b.Fidelities)
	assert.Equal(t, a.NodesInvolved, b.NodesInvolved)
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestSimulation_ResetReplaysFromScratch(t *testing.T) {
	// GIVEN a simulation that ran once
	sim, err := NewSimulation(exponentialScenario(), 7, Options{})
	require.NoError(t, err)
	require.NoError(t, sim.Run())
	first, err := sim.Result()
	require.NoError(t, err)

	// WHEN it is reset and run again with the same seed
	sim.Reset()
	require.NoError(t, sim.Run())
	second, err := sim.Result()
	require.NoError(t, err)

	// THEN the second run matches a fresh simulation
	assert.Equal(t, first.Fidelities, second.Fidelities)
	assert.Equal(t, first.Generated, second.Generated)
}

func TestSimulationMultiple_IncrementsSeedBeforeEachRun(t *testing.T) {
	sim, err := NewSimulation(exponentialScenario(), 42, Options{})
	require.NoError(t, err)
	multi := NewSimulationMultiple(sim, 3)

	require.NoError(t, multi.Run())

	results := multi.Results()
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, int64(43+i), r.Seed)
	}
	assert.Equal(t, runOnce(t, exponentialScenario(), 44, Options{}).Fidelities, results[1].Fidelities)

	multi.Reset()
	assert.Empty(t, multi.Results())
}

func TestSimulation_ClassicalCommunicationDelaysCollection(t *testing.T) {
	// GIVEN leaves 2 m from the switch, so collection lags the connect by 10 ns
	sc := fixedScenario(25)
	sc.Distances = []float64{0.002, 0.002}
	sc.IncludeClassicalComm = true

	res := runOnce(t, sc, 42, Options{})

	// THEN the connect at 20 ns is still in flight at 25 ns
	assert.Equal(t, 1, res.NumberOfLinksProduced())
	assert.Equal(t, 1, res.Pending)
}

type tally struct {
	protocol.NopRecorder
	connects int
	blocked  map[string]int
}

func (r *tally) Connected(int)              { r.connects++ }
func (r *tally) ArrivalBlocked(leaf string) { r.blocked[leaf]++ }

func TestSimulation_RecorderAndTraceAreWired(t *testing.T) {
	// GIVEN memories of two positions and collection 15 ns after every connect,
	// so a leaf is still full when the next pair arrives
	sc := fixedScenario(60)
	sc.NumPositions = 2
	sc.CollectDelay = 15
	sc.ServerNodeName = ""
	sc.MeasureDirectly = false
	rec := &tally{blocked: map[string]int{}}

	res := runOnce(t, sc, 42, Options{Recorder: rec, Trace: trace.TraceConfig{Level: trace.TraceLevelDecisions}})

	// THEN connects and blocked arrivals reach the recorder and the trace
	require.NotNil(t, res.Trace)
	assert.Equal(t, len(res.Trace.Connects), rec.connects)
	assert.Equal(t, res.NumberOfLinksProduced()+res.Pending+res.Lost, rec.connects)
	for leaf, n := range res.Blocked {
		assert.Equal(t, n, rec.blocked[leaf], leaf)
	}
}

func TestNetwork_RolesSwitchFirst(t *testing.T) {
	// GIVEN a three-leaf network
	sc := exponentialScenario()
	net, err := New(&sc, 1, Options{})
	require.NoError(t, err)

	// WHEN its roles are listed
	roles := net.Roles()

	// THEN the switch comes first, then the leaves in index order, all idle
	require.Len(t, roles, 4)
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.Name()
		assert.Equal(t, protocol.StateAwaitArrival, r.State())
	}
	assert.Equal(t, []string{"switch_protocol", "leaf_protocol_leaf_node_0",
		"leaf_protocol_leaf_node_1", "leaf_protocol_leaf_node_2"}, names)
}

func TestSimulation_ExampleScenario_CollectsGroups(t *testing.T) {
	// GIVEN the shipped three-leaf example with its collection delay and cutoff
	sc, err := LoadScenario("../../examples/scenario.yaml")
	require.NoError(t, err)
	rates := sc.Rates()
	require.Len(t, rates, 3)
	assert.InEpsilon(t, 5.863e5, rates[0], 1e-3)
	assert.InEpsilon(t, 3.776e5, rates[1], 1e-3)
	assert.InEpsilon(t, 3.565e5, rates[2], 1e-3)

	// WHEN it runs once
	res := runOnce(t, *sc, sc.Seed, Options{})

	// THEN hundreds of groups are collected, none of them lost to eviction
	assert.Greater(t, res.NumberOfLinksProduced(), 100)
	assert.Zero(t, res.Lost)
	assert.Greater(t, res.MeanFidelity(), 0.75)
	for _, nodes := range res.NodesInvolved {
		assert.Contains(t, nodes, "leaf_node_0")
	}
}
