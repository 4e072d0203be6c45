package network

import (
	"errors"
	"math"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/inference-sim/qswitch-sim/sim/trace"
)

var (
	// ErrAlreadyRun is returned by Run on a simulation that has run since its last Reset.
	ErrAlreadyRun = errors.New("simulation has run already")
	// ErrNotRun is returned by Result before the first Run.
	ErrNotRun = errors.New("simulation has not run yet")
)

// Result is the outcome of one run.
type Result struct {
	RunID         uuid.UUID
	Seed          int64
	Fidelities    []float64
	NodesInvolved [][]string
	// TotalRuntime is the simulated duration in seconds.
	TotalRuntime float64
	// Lost counts groups whose leaf halves were gone at collection; Pending
	// counts groups still awaiting collection at the horizon.
	Lost    int
	Pending int
	// Generated and Blocked count source productions per leaf.
	Generated map[string]int
	Blocked   map[string]int
	Trace     *trace.SimulationTrace
}

// NumberOfLinksProduced returns the number of collected groups.
func (r *Result) NumberOfLinksProduced() int { return len(r.Fidelities) }

// MeanFidelity returns the mean fidelity of the collected groups, NaN if none.
func (r *Result) MeanFidelity() float64 {
	if len(r.Fidelities) == 0 {
		return math.NaN()
	}
	return stat.Mean(r.Fidelities, nil)
}

// Capacity returns the collected groups per second.
func (r *Result) Capacity() float64 {
	return float64(r.NumberOfLinksProduced()) / r.TotalRuntime
}

// StatesPerNode returns, per leaf, the number of collected groups it took part
// in per second.
func (r *Result) StatesPerNode() map[string]float64 {
	out := make(map[string]float64)
	for _, nodes := range r.NodesInvolved {
		for _, node := range nodes {
			out[node] += 1 / r.TotalRuntime
		}
	}
	return out
}

// Simulation runs one scenario. A simulation runs once; Reset makes it
// runnable again, typically under a new seed.
type Simulation struct {
	scenario Scenario
	seed     int64
	network  *Network
	hasRun   bool
	result   *Result
}

// NewSimulation validates sc and builds its network.
func NewSimulation(sc Scenario, seed int64, opts Options) (*Simulation, error) {
	net, err := New(&sc, seed, opts)
	if err != nil {
		return nil, err
	}
	return &Simulation{scenario: sc, seed: seed, network: net}, nil
}

// Scenario returns the simulated scenario.
func (s *Simulation) Scenario() Scenario { return s.scenario }

// Seed returns the seed the next Run uses.
func (s *Simulation) Seed() int64 { return s.seed }

// SetSeed sets the seed the next Run uses.
func (s *Simulation) SetSeed(seed int64) { s.seed = seed }

// HasRun reports whether Run was called since the last Reset.
func (s *Simulation) HasRun() bool { return s.hasRun }

// Network returns the simulated network.
func (s *Simulation) Network() *Network { return s.network }

// Reset discards the last result so the simulation can run again.
func (s *Simulation) Reset() {
	s.hasRun = false
	s.result = nil
}

// Run simulates the scenario up to its total runtime. The result is kept even
// when a protocol reported an error, which Run then returns.
func (s *Simulation) Run() error {
	if s.hasRun {
		return ErrAlreadyRun
	}
	net := s.network
	net.Reset(s.seed)
	runErr := net.Run()
	s.hasRun = true

	res := &Result{
		RunID:         uuid.New(),
		Seed:          s.seed,
		Fidelities:    net.Collector.Fidelities(),
		NodesInvolved: net.Collector.NodesInvolved(),
		TotalRuntime:  s.scenario.TotalRuntime,
		Lost:          net.Collector.Lost(),
		Pending:       net.Collector.Pending(),
		Generated:     make(map[string]int, len(net.Sources)),
		Blocked:       make(map[string]int, len(net.Sources)),
		Trace:         net.Trace,
	}
	for _, src := range net.Sources {
		res.Generated[src.Leaf()] = src.Generated()
		res.Blocked[src.Leaf()] = src.Blocked()
	}
	s.result = res
	logrus.Infof("run %s: seed %d, %d groups, mean fidelity %.4f, capacity %.4g/s, %d lost, %d pending",
		res.RunID, res.Seed, res.NumberOfLinksProduced(), res.MeanFidelity(), res.Capacity(), res.Lost, res.Pending)
	return runErr
}

// Result returns the result of the last Run.
func (s *Simulation) Result() (*Result, error) {
	if !s.hasRun {
		return nil, ErrNotRun
	}
	return s.result, nil
}

// SimulationMultiple repeats a simulation, incrementing its seed before every run.
type SimulationMultiple struct {
	simulation *Simulation
	runs       int
	results    []*Result
}

// NewSimulationMultiple creates a repetition of sim over runs runs.
func NewSimulationMultiple(sim *Simulation, runs int) *SimulationMultiple {
	return &SimulationMultiple{simulation: sim, runs: runs}
}

// Run performs every run and stops at the first error.
func (m *SimulationMultiple) Run() error {
	for i := 0; i < m.runs; i++ {
		m.simulation.Reset()
		m.simulation.SetSeed(m.simulation.Seed() + 1)
		if err := m.simulation.Run(); err != nil {
			return err
		}
		res, err := m.simulation.Result()
		if err != nil {
			return err
		}
		m.results = append(m.results, res)
	}
	return nil
}

// Results returns the results collected so far, in run order.
func (m *SimulationMultiple) Results() []*Result {
	return append([]*Result(nil), m.results...)
}

// Reset forgets every result.
func (m *SimulationMultiple) Reset() { m.results = nil }
