package network

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/qswitch-sim/sim/analytic"
	"github.com/inference-sim/qswitch-sim/sim/memory"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// fixedScenario mirrors a two-leaf star with deterministic arrivals every 10 ns.
func fixedScenario(runtimeNs float64) Scenario {
	return Scenario{
		TotalRuntime:          runtimeNs * 1e-9,
		ConnectSize:           2,
		ServerNodeName:        "leaf_node_0",
		NumPositions:          1000,
		BrightStatePopulation: PerLeaf[float64]{0.4},
		Beta:                  0.1,
		Loss:                  1,
		Distances:             []float64{2, 2},
		RepetitionTimes:       PerLeaf[float64]{analytic.VardoyanAttemptDuration},
		ArrivalProcess:        "fixed",
		FixedDelay:            10,
	}
}

// exponentialScenario is a three-leaf star with random arrivals a few ns apart.
func exponentialScenario() Scenario {
	return Scenario{
		TotalRuntime:          1e-6,
		ConnectSize:           2,
		NumPositions:          100,
		BrightStatePopulation: PerLeaf[float64]{0.3},
		Beta:                  0.1,
		Loss:                  1,
		Distances:             []float64{2, 2, 2},
		RepetitionTimes:       PerLeaf[float64]{analytic.VardoyanAttemptDuration},
		T2:                    1e-7,
	}
}

func TestLoadScenario_ScalarAndListPerLeafValues(t *testing.T) {
	// GIVEN a scenario with a scalar population and per-leaf buffers
	path := writeFile(t, `
name: buffers
total_runtime_in_seconds: 1.0e-4
connect_size: 2
num_positions: 100
buffer_size: [1, .inf, unbounded]
bright_state_population: 0.3
T2: 0
beta: 0.1
loss: 1
decoherence_rate: 0
include_classical_comm: false
distances: [2, 2, 2]
repetition_times: 1.0e-3
durations:
  move: 1
  connect: 2
`)

	// WHEN it is loaded
	sc, err := LoadScenario(path)
	require.NoError(t, err)

	// THEN per-leaf values expand and the scenario is valid
	require.NoError(t, sc.Validate())
	assert.Equal(t, "buffers", sc.Name)
	assert.Equal(t, memory.BufferCapacity(1), sc.BufferSize.At(0, 0))
	assert.True(t, sc.BufferSize.At(1, 0).IsUnbounded())
	assert.True(t, sc.BufferSize.At(2, 0).IsUnbounded())
	assert.Equal(t, 0.3, sc.BrightStatePopulation.At(2, 0))
	assert.Equal(t, int64(2), sc.Durations.Connect)
	assert.Equal(t, int64(100000), sc.Horizon())
	assert.Equal(t, "exponential", sc.Process())
}

func TestLoadScenario_RejectsUnknownFields(t *testing.T) {
	path := writeFile(t, "total_runtime_in_seconds: 1\nconect_size: 2\n")
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conect_size")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadSweep_InheritsSeedAndRuns(t *testing.T) {
	path := writeFile(t, `
seed: 42
runs: 3
scenarios:
  - name: a
    total_runtime_in_seconds: 1.0e-6
    connect_size: 2
    num_positions: 10
    T2: 0
    beta: 0.1
    loss: 1
    decoherence_rate: 0
    include_classical_comm: false
    distances: [2, 2]
    arrival_process: fixed
    fixed_delay: 10
  - name: b
    total_runtime_in_seconds: 1.0e-6
    connect_size: 2
    num_positions: 10
    T2: 0
    beta: 0.1
    loss: 1
    decoherence_rate: 0
    include_classical_comm: false
    distances: [2, 2]
    arrival_process: fixed
    fixed_delay: 10
    seed: 7
    runs: 1
`)
	sw, err := LoadSweep(path)
	require.NoError(t, err)
	require.Len(t, sw.Scenarios, 2)
	assert.Equal(t, int64(42), sw.Scenarios[0].Seed)
	assert.Equal(t, 3, sw.Scenarios[0].Runs)
	assert.Equal(t, int64(7), sw.Scenarios[1].Seed)
	assert.Equal(t, 1, sw.Scenarios[1].Runs)
}

func TestScenario_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Scenario)
	}{
		{"zero runtime", func(s *Scenario) { s.TotalRuntime = 0 }},
		{"one leaf", func(s *Scenario) { s.Distances = []float64{2} }},
		{"negative distance", func(s *Scenario) { s.Distances[1] = -1 }},
		{"connect size 1", func(s *Scenario) { s.ConnectSize = 1 }},
		{"connect size above leaves", func(s *Scenario) { s.ConnectSize = 3 }},
		{"too few positions", func(s *Scenario) { s.NumPositions = 1 }},
		{"unknown server node", func(s *Scenario) { s.ServerNodeName = "leaf_node_7" }},
		{"buffer list length", func(s *Scenario) { s.BufferSize = PerLeaf[memory.BufferCapacity]{1, 2, 3} }},
		{"population above 1", func(s *Scenario) { s.BrightStatePopulation = PerLeaf[float64]{1.5} }},
		{"negative T2", func(s *Scenario) { s.T2 = -1 }},
		{"negative duration", func(s *Scenario) { s.Durations.Move = -1 }},
		{"fixed without delay", func(s *Scenario) { s.FixedDelay = 0 }},
		{"unknown process", func(s *Scenario) { s.ArrivalProcess = "poisson" }},
		{"exponential without loss", func(s *Scenario) { s.ArrivalProcess = ""; s.Loss = 0 }},
		{"exponential with zero population", func(s *Scenario) {
			s.ArrivalProcess = ""
			s.BrightStatePopulation = PerLeaf[float64]{0}
		}},
	}
	base := fixedScenario(100)
	require.NoError(t, base.Validate())
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sc := fixedScenario(100)
			tc.mutate(&sc)
			assert.Error(t, sc.Validate())
		})
	}
}

func TestScenario_Rates(t *testing.T) {
	sc := exponentialScenario()
	sc.BrightStatePopulation = PerLeaf[float64]{0.1, 0.2, 0.3}
	rates := sc.Rates()
	base := analytic.DistanceToRate(2, 1, 0.1, analytic.VardoyanAttemptDuration)
	require.Len(t, rates, 3)
	assert.InDelta(t, 0.1*base, rates[0], 1e-3)
	assert.InDelta(t, 0.3*base, rates[2], 1e-3)
}

func TestScenario_CollectDelayTicks(t *testing.T) {
	sc := fixedScenario(100)
	sc.CollectDelay = 7
	assert.Equal(t, int64(7), sc.CollectDelayTicks())

	// GIVEN classical communication THEN the longest fibre delay applies: 2 km at 200000 km/s
	sc.IncludeClassicalComm = true
	sc.Distances = []float64{1, 2}
	assert.Equal(t, int64(10000), sc.CollectDelayTicks())
}

func TestScenario_Cutoff(t *testing.T) {
	sc := fixedScenario(100)
	assert.Zero(t, sc.Cutoff())
	sc.DecoherenceRate = 1e8
	assert.Equal(t, int64(10), sc.Cutoff())
}

func TestExampleConfigs_LoadAndValidate(t *testing.T) {
	sweeps, err := filepath.Glob("../../examples/*_vs_*.yaml")
	require.NoError(t, err)
	require.Len(t, sweeps, 3)
	for _, path := range sweeps {
		t.Run(filepath.Base(path), func(t *testing.T) {
			sw, err := LoadSweep(path)
			require.NoError(t, err)
			require.Len(t, sw.Scenarios, 3)
			for _, sc := range sw.Scenarios {
				assert.NoError(t, sc.Validate(), sc.Name)
				assert.Equal(t, sw.Seed, sc.Seed)
				assert.Equal(t, sw.Runs, sc.Runs)
			}
		})
	}

	sc, err := LoadScenario("../../examples/scenario.yaml")
	require.NoError(t, err)
	require.NoError(t, sc.Validate())
	assert.Equal(t, "leaf_node_0", sc.ServerNodeName)
	assert.Equal(t, memory.BufferCapacity(2), sc.BufferSize.At(1, memory.Unbounded))
	assert.Equal(t, int64(50000), sc.CollectDelayTicks(), "10 km at 200000 km/s")
}

func TestExampleConfigs_BufferSweepLeavesGenerateAtOneMegahertz(t *testing.T) {
	sw, err := LoadSweep("../../examples/buffer_size_vs_capacity.yaml")
	require.NoError(t, err)

	for _, sc := range sw.Scenarios {
		rates := sc.Rates()
		require.Len(t, rates, 5, sc.Name)
		for i, r := range rates {
			assert.InEpsilon(t, 1e6, r, 1e-4, "%s leaf %d", sc.Name, i)
		}
	}
}
