package channel

import (
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/qswitch-sim/sim"
	"github.com/inference-sim/qswitch-sim/sim/pauli"
	"github.com/inference-sim/qswitch-sim/sim/qmem"
)

// Endpoint is the memory position a source delivers one half of each pair into.
type Endpoint struct {
	Memory   *qmem.Memory
	Position int
}

// SourceConfig describes the source between the switch and one leaf.
type SourceConfig struct {
	Leaf  string
	Delay DelayModel
	// BrightStatePopulation is the probability that the leaf half suffers a
	// uniformly random Pauli error. Values above 3/4 are clamped: at 3/4 the
	// leaf half is already completely depolarized.
	BrightStatePopulation float64
}

// Source produces entangled pairs for one leaf. The first pair appears one
// sampled delay after Start; each production schedules the next one.
//
// Both halves are delivered in the same PairArrival event. When either
// endpoint is still occupied the pair is dropped on both sides, so the two
// nodes never disagree about how many pairs they received.
type Source struct {
	cfg       SourceConfig
	engine    *sim.Engine
	rng       *rand.Rand
	switchEnd Endpoint
	leafEnd   Endpoint

	generated int
	blocked   int
	onBlocked func(leaf string)
}

// NewSource creates a source between switchEnd and leafEnd.
// Panics on a nil delay model or memory, or on a negative bright-state population.
func NewSource(cfg SourceConfig, engine *sim.Engine, switchEnd, leafEnd Endpoint) *Source {
	if cfg.Delay == nil {
		panic(fmt.Sprintf("Source %s: delay model must not be nil", cfg.Leaf))
	}
	if switchEnd.Memory == nil || leafEnd.Memory == nil {
		panic(fmt.Sprintf("Source %s: endpoints must have a memory", cfg.Leaf))
	}
	if cfg.BrightStatePopulation < 0 {
		panic(fmt.Sprintf("Source %s: bright state population must be >= 0, got %g", cfg.Leaf, cfg.BrightStatePopulation))
	}
	return &Source{
		cfg:       cfg,
		engine:    engine,
		rng:       engine.RNG().ForSubsystem(sim.SubsystemSource(cfg.Leaf)),
		switchEnd: switchEnd,
		leafEnd:   leafEnd,
	}
}

// Leaf returns the name of the leaf this source serves.
func (s *Source) Leaf() string { return s.cfg.Leaf }

// Generated returns the number of pairs delivered to both endpoints.
func (s *Source) Generated() int { return s.generated }

// Blocked returns the number of pairs dropped because an endpoint was occupied.
func (s *Source) Blocked() int { return s.blocked }

// OnBlocked registers fn to be called for every dropped pair.
func (s *Source) OnBlocked(fn func(leaf string)) {
	s.onBlocked = fn
}

// Start schedules the first production.
func (s *Source) Start() {
	s.scheduleNext()
}

// Reset clears the counters. Pending productions live in the engine queue and
// are cleared with it.
func (s *Source) Reset() {
	s.generated = 0
	s.blocked = 0
	s.rng = s.engine.RNG().ForSubsystem(sim.SubsystemSource(s.cfg.Leaf))
}

func (s *Source) scheduleNext() {
	s.engine.After(s.cfg.Delay.NextDelay(s.rng), sim.EventTypePairArrival, s.produce)
}

func (s *Source) produce() {
	defer s.scheduleNext()

	now := s.engine.Now()
	if s.switchEnd.Memory.InUse(s.switchEnd.Position) || s.leafEnd.Memory.InUse(s.leafEnd.Position) {
		s.blocked++
		logrus.Warnf("[tick %012d] source %s: reserved slot occupied (switch %v, leaf %v), pair dropped",
			now, s.cfg.Leaf,
			s.switchEnd.Memory.InUse(s.switchEnd.Position), s.leafEnd.Memory.InUse(s.leafEnd.Position))
		if s.onBlocked != nil {
			s.onBlocked(s.cfg.Leaf)
		}
		return
	}

	switchHalf, leafHalf := qmem.NewPair(fmt.Sprintf("%s#%d", s.cfg.Leaf, s.generated), now)
	s.depolarize(leafHalf)
	s.generated++

	// Both deliveries happen in this event, so a wake scheduled by the first
	// delivery always sees the second one as well.
	if err := s.switchEnd.Memory.Deliver(s.switchEnd.Position, switchHalf); err != nil {
		panic(fmt.Sprintf("source %s: deliver to switch: %v", s.cfg.Leaf, err))
	}
	if err := s.leafEnd.Memory.Deliver(s.leafEnd.Position, leafHalf); err != nil {
		panic(fmt.Sprintf("source %s: deliver to leaf: %v", s.cfg.Leaf, err))
	}
	logrus.Debugf("[tick %012d] source %s: pair %d delivered", now, s.cfg.Leaf, s.generated)
}

// depolarize applies X, Y or Z, each with probability p/3.
func (s *Source) depolarize(q *qmem.Qubit) {
	p := min(s.cfg.BrightStatePopulation, 0.75)
	if p == 0 {
		return
	}
	if s.rng.Float64() >= p {
		return
	}
	switch s.rng.Intn(3) {
	case 0:
		q.Apply(pauli.X)
	case 1:
		q.Apply(pauli.Y)
	default:
		q.Apply(pauli.Z)
	}
}
