package network

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/inference-sim/qswitch-sim/sim/analytic"
	"github.com/inference-sim/qswitch-sim/sim/channel"
	"github.com/inference-sim/qswitch-sim/sim/memory"
	"github.com/inference-sim/qswitch-sim/sim/qmem"
)

// fibreSpeedKmPerSecond is the speed of light in fibre.
const fibreSpeedKmPerSecond = 200000.0

// PerLeaf is a per-leaf parameter written either as a single scalar that
// applies to every leaf or as a list with one entry per leaf.
type PerLeaf[T any] []T

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *PerLeaf[T]) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var v T
		if err := value.Decode(&v); err != nil {
			return err
		}
		*p = PerLeaf[T]{v}
		return nil
	case yaml.SequenceNode:
		var vs []T
		if err := value.Decode(&vs); err != nil {
			return err
		}
		*p = vs
		return nil
	}
	return fmt.Errorf("line %d: expected a scalar or a list", value.Line)
}

// At returns the value for leaf i, or def when the parameter is unset.
func (p PerLeaf[T]) At(i int, def T) T {
	switch len(p) {
	case 0:
		return def
	case 1:
		return p[0]
	}
	return p[i]
}

// Scenario is one simulated configuration of the star network.
// Loaded from YAML via LoadScenario(path). Times are in seconds unless the
// field says otherwise; the simulation clock ticks in nanoseconds.
type Scenario struct {
	Name         string  `yaml:"name,omitempty"`
	TotalRuntime float64 `yaml:"total_runtime_in_seconds"`
	ConnectSize  int     `yaml:"connect_size"`
	// ServerNodeName is a leaf that must take part in every connect; empty for none.
	ServerNodeName string `yaml:"server_node_name,omitempty"`
	// NumPositions is the size of every node's memory.
	NumPositions int `yaml:"num_positions"`
	// BufferSize caps the links kept per leaf; unset means unbounded.
	BufferSize PerLeaf[memory.BufferCapacity] `yaml:"buffer_size,omitempty"`
	// BrightStatePopulation scales each leaf's generation rate and sets the
	// probability of a Pauli error on the leaf half.
	BrightStatePopulation PerLeaf[float64] `yaml:"bright_state_population,omitempty"`
	T2                    float64          `yaml:"T2"`
	Beta                  float64          `yaml:"beta"` // fibre loss, dB/km
	Loss                  float64          `yaml:"loss"`
	// DecoherenceRate sets the cutoff to 1/rate; 0 disables it.
	DecoherenceRate      float64          `yaml:"decoherence_rate"`
	IncludeClassicalComm bool             `yaml:"include_classical_comm"`
	Distances            []float64        `yaml:"distances"` // km, one per leaf
	RepetitionTimes      PerLeaf[float64] `yaml:"repetition_times,omitempty"`

	ArrivalProcess string  `yaml:"arrival_process,omitempty"` // exponential (default), fixed or gamma
	GammaCV        float64 `yaml:"gamma_cv,omitempty"`
	FixedDelay     int64   `yaml:"fixed_delay,omitempty"`   // ns
	CollectDelay   int64   `yaml:"collect_delay,omitempty"` // ns, ignored with include_classical_comm

	Durations       qmem.Durations `yaml:"durations,omitempty"` // ns
	MeasureDirectly bool           `yaml:"measure_directly,omitempty"`

	Seed int64 `yaml:"seed,omitempty"`
	Runs int   `yaml:"runs,omitempty"`
}

// Sweep is a list of scenarios simulated and aggregated together.
// Seed and Runs apply to every scenario that does not set its own.
type Sweep struct {
	Seed      int64      `yaml:"seed"`
	Runs      int        `yaml:"runs"`
	Scenarios []Scenario `yaml:"scenarios"`
}

// LoadScenario reads and parses a YAML scenario file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadScenario(path string) (*Scenario, error) {
	var sc Scenario
	if err := decodeStrict(path, "scenario", &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

// LoadSweep reads and parses a YAML sweep file and fills in the sweep-wide
// seed and run count.
func LoadSweep(path string) (*Sweep, error) {
	var sw Sweep
	if err := decodeStrict(path, "sweep", &sw); err != nil {
		return nil, err
	}
	for i := range sw.Scenarios {
		if sw.Scenarios[i].Seed == 0 {
			sw.Scenarios[i].Seed = sw.Seed
		}
		if sw.Scenarios[i].Runs == 0 {
			sw.Scenarios[i].Runs = sw.Runs
		}
	}
	return &sw, nil
}

func decodeStrict(path, what string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", what, err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("parsing %s: %w", what, err)
	}
	return nil
}

// NumLeaves returns the number of leaves, one per distance.
func (s *Scenario) NumLeaves() int { return len(s.Distances) }

// Process returns the arrival process, exponential when unset.
func (s *Scenario) Process() string {
	if s.ArrivalProcess == "" {
		return channel.ProcessExponential
	}
	return s.ArrivalProcess
}

// Horizon returns the total runtime in ticks.
func (s *Scenario) Horizon() int64 {
	return int64(math.Round(s.TotalRuntime * 1e9))
}

// Rates returns each leaf's generation rate in Hz:
// alpha_i · DistanceToRate(d_i, loss, beta, T_i).
func (s *Scenario) Rates() []float64 {
	rates := make([]float64, s.NumLeaves())
	for i, d := range s.Distances {
		alpha := s.BrightStatePopulation.At(i, 0)
		rates[i] = alpha * analytic.DistanceToRate(d, s.Loss, s.Beta, s.RepetitionTimes.At(i, 0))
	}
	return rates
}

// CollectDelayTicks returns the delay between a connect and the collection of
// its group: the longest one-way fibre delay when classical communication is
// included, CollectDelay otherwise.
func (s *Scenario) CollectDelayTicks() int64 {
	if !s.IncludeClassicalComm {
		return s.CollectDelay
	}
	longest := 0.0
	for _, d := range s.Distances {
		longest = max(longest, d)
	}
	return int64(math.Round(longest / fibreSpeedKmPerSecond * 1e9))
}

// Cutoff returns the decoherence cutoff in ticks; 0 means none.
func (s *Scenario) Cutoff() int64 {
	return memory.CutoffFromDecoherenceRate(s.DecoherenceRate)
}

// Validate checks that all fields in the scenario are valid.
func (s *Scenario) Validate() error {
	n := s.NumLeaves()
	if s.TotalRuntime <= 0 {
		return fmt.Errorf("total_runtime_in_seconds must be positive, got %g", s.TotalRuntime)
	}
	if n < 2 {
		return fmt.Errorf("distances must list at least 2 leaves, got %d", n)
	}
	for i, d := range s.Distances {
		if d < 0 {
			return fmt.Errorf("distances[%d] must be >= 0, got %g", i, d)
		}
	}
	if s.ConnectSize < 2 || s.ConnectSize > n {
		return fmt.Errorf("connect_size must be in [2, %d], got %d", n, s.ConnectSize)
	}
	if s.NumPositions < n {
		return fmt.Errorf("num_positions must be >= the number of leaves (%d), got %d", n, s.NumPositions)
	}
	if s.ServerNodeName != "" {
		found := false
		for i := 0; i < n; i++ {
			if LeafNodeName(i) == s.ServerNodeName {
				found = true
			}
		}
		if !found {
			return fmt.Errorf("server_node_name %q is not a leaf", s.ServerNodeName)
		}
	}
	if err := checkPerLeafLen("buffer_size", len(s.BufferSize), n); err != nil {
		return err
	}
	if err := checkPerLeafLen("bright_state_population", len(s.BrightStatePopulation), n); err != nil {
		return err
	}
	if err := checkPerLeafLen("repetition_times", len(s.RepetitionTimes), n); err != nil {
		return err
	}
	for i, p := range s.BrightStatePopulation {
		if p < 0 || p > 1 {
			return fmt.Errorf("bright_state_population[%d] must be in [0, 1], got %g", i, p)
		}
	}
	if s.T2 < 0 || s.DecoherenceRate < 0 || s.CollectDelay < 0 {
		return fmt.Errorf("T2, decoherence_rate and collect_delay must be >= 0")
	}
	d := s.Durations
	if d.Move < 0 || d.Measure < 0 || d.Connect < 0 {
		return fmt.Errorf("durations must be >= 0, got %+v", d)
	}
	if s.Runs < 0 {
		return fmt.Errorf("runs must be >= 0, got %d", s.Runs)
	}

	switch s.Process() {
	case channel.ProcessFixed:
		if s.FixedDelay <= 0 {
			return fmt.Errorf("fixed_delay must be > 0 ns for the fixed arrival process, got %d", s.FixedDelay)
		}
	case channel.ProcessExponential, channel.ProcessGamma:
		if s.Loss <= 0 || s.Beta < 0 {
			return fmt.Errorf("loss must be > 0 and beta >= 0, got loss=%g beta=%g", s.Loss, s.Beta)
		}
		if len(s.RepetitionTimes) == 0 || len(s.BrightStatePopulation) == 0 {
			return fmt.Errorf("%s arrivals need repetition_times and bright_state_population", s.Process())
		}
		for i, rate := range s.Rates() {
			if !(rate > 0) || math.IsInf(rate, 0) {
				return fmt.Errorf("generation rate of %s must be positive and finite, got %g", LeafNodeName(i), rate)
			}
		}
	default:
		return fmt.Errorf("unknown arrival_process %q; valid: exponential, fixed, gamma", s.ArrivalProcess)
	}
	return nil
}

func checkPerLeafLen(field string, got, leaves int) error {
	if got == 0 || got == 1 || got == leaves {
		return nil
	}
	return fmt.Errorf("%s must be a scalar or a list of %d values, got %d", field, leaves, got)
}
