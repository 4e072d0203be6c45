package qmem

import (
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/qswitch-sim/sim"
	"github.com/inference-sim/qswitch-sim/sim/pauli"
)

// Durations are the times, in ticks, that local operations take.
type Durations struct {
	Move    int64 `yaml:"move"`
	Measure int64 `yaml:"measure"`
	Connect int64 `yaml:"connect"`
}

// Config describes a quantum memory.
type Config struct {
	NumPositions int
	T2           int64 // dephasing time in ticks; 0 disables dephasing
	Durations    Durations
}

// Memory is a quantum memory with addressable positions and a processor that
// runs one local operation at a time. Operations complete through an
// OperationDone event on the engine and report back through a callback.
//
// Thread-safety: NOT thread-safe; driven from the simulation goroutine only.
type Memory struct {
	name      string
	engine    *sim.Engine
	rng       *rand.Rand
	t2        float64
	durations Durations

	positions []*Qubit
	busy      bool
	onInput   func(position int)
}

// NewMemory creates an empty memory.
// Panics if cfg.NumPositions <= 0, durations are negative or engine/rng is nil.
func NewMemory(name string, engine *sim.Engine, rng *rand.Rand, cfg Config) *Memory {
	if cfg.NumPositions <= 0 {
		panic(fmt.Sprintf("Memory: NumPositions must be > 0, got %d", cfg.NumPositions))
	}
	if cfg.T2 < 0 {
		panic(fmt.Sprintf("Memory: T2 must be >= 0, got %d", cfg.T2))
	}
	d := cfg.Durations
	if d.Move < 0 || d.Measure < 0 || d.Connect < 0 {
		panic(fmt.Sprintf("Memory: durations must be >= 0, got %+v", d))
	}
	if engine == nil || rng == nil {
		panic("Memory: engine and rng must not be nil")
	}
	return &Memory{
		name:      name,
		engine:    engine,
		rng:       rng,
		t2:        float64(cfg.T2),
		durations: d,
		positions: make([]*Qubit, cfg.NumPositions),
	}
}

// Name returns the memory's name.
func (m *Memory) Name() string { return m.name }

// NumPositions returns the number of positions.
func (m *Memory) NumPositions() int { return len(m.positions) }

// Busy reports whether an operation is running.
func (m *Memory) Busy() bool { return m.busy }

// SetInputHandler registers fn to be called after every Deliver.
func (m *Memory) SetInputHandler(fn func(position int)) {
	m.onInput = fn
}

func (m *Memory) checkPosition(pos int) error {
	if pos < 0 || pos >= len(m.positions) {
		return fmt.Errorf("%s: position %d not in [0, %d): %w", m.name, pos, len(m.positions), ErrPositionOutOfRange)
	}
	return nil
}

// InUse reports whether pos holds a qubit. Out-of-range positions are not in use.
func (m *Memory) InUse(pos int) bool {
	return m.checkPosition(pos) == nil && m.positions[pos] != nil
}

// Put stores q at pos.
func (m *Memory) Put(pos int, q *Qubit) error {
	if err := m.checkPosition(pos); err != nil {
		return err
	}
	if m.positions[pos] != nil {
		return fmt.Errorf("%s: put %s at %d: %w", m.name, q.Name, pos, ErrPositionOccupied)
	}
	// time in flight is not dephased
	q.dephase(m.engine.Now(), 0)
	m.positions[pos] = q
	return nil
}

// Deliver stores q at pos and notifies the input handler.
func (m *Memory) Deliver(pos int, q *Qubit) error {
	if err := m.Put(pos, q); err != nil {
		return err
	}
	if m.onInput != nil {
		m.onInput(pos)
	}
	return nil
}

// Peek returns the qubit at pos without removing it, dephased up to now.
func (m *Memory) Peek(pos int) (*Qubit, error) {
	if err := m.checkPosition(pos); err != nil {
		return nil, err
	}
	q := m.positions[pos]
	if q == nil {
		return nil, fmt.Errorf("%s: peek %d: %w", m.name, pos, ErrPositionEmpty)
	}
	q.dephase(m.engine.Now(), m.t2)
	return q, nil
}

// Pop removes and returns the qubit at pos, dephased up to now.
func (m *Memory) Pop(pos int) (*Qubit, error) {
	q, err := m.Peek(pos)
	if err != nil {
		return nil, err
	}
	m.positions[pos] = nil
	return q, nil
}

// Reset empties every position and aborts the running operation's bookkeeping.
func (m *Memory) Reset() {
	for i := range m.positions {
		m.positions[i] = nil
	}
	m.busy = false
}

// Reseed replaces the source of measurement outcomes, typically after the
// engine was reset under a new key.
func (m *Memory) Reseed(rng *rand.Rand) {
	if rng == nil {
		panic("Memory: rng must not be nil")
	}
	m.rng = rng
}

func (m *Memory) idle(op string) error {
	if m.busy {
		return fmt.Errorf("%s: %s: %w", m.name, op, ErrProcessorBusy)
	}
	return nil
}

// run occupies the processor for duration ticks, then calls body.
func (m *Memory) run(op string, duration int64, body func()) error {
	if err := m.idle(op); err != nil {
		return err
	}
	m.busy = true
	logrus.Tracef("[tick %012d] %s: start %s (%d ticks)", m.engine.Now(), m.name, op, duration)
	m.engine.After(duration, sim.EventTypeOperationDone, func() {
		m.busy = false
		body()
	})
	return nil
}

// Move relocates the qubit at from to the empty position to. Preconditions are
// checked on issue and again on completion, where the qubit at from must still
// be the one that was there on issue; done receives the completion error.
func (m *Memory) Move(from, to int, done func(error)) error {
	check := func() error {
		if err := m.checkPosition(from); err != nil {
			return err
		}
		if err := m.checkPosition(to); err != nil {
			return err
		}
		if m.positions[from] == nil {
			return fmt.Errorf("%s: move %d -> %d: %w", m.name, from, to, ErrPositionEmpty)
		}
		if m.positions[to] != nil {
			return fmt.Errorf("%s: move %d -> %d: %w", m.name, from, to, ErrPositionOccupied)
		}
		return nil
	}
	if err := m.idle("move"); err != nil {
		return err
	}
	if err := check(); err != nil {
		return err
	}
	moving := m.positions[from]
	return m.run(fmt.Sprintf("move %d -> %d", from, to), m.durations.Move, func() {
		err := check()
		if err == nil && m.positions[from] != moving {
			err = fmt.Errorf("%s: move %d -> %d: qubit %s left the position: %w", m.name, from, to, moving.Name, ErrPositionEmpty)
		}
		if err == nil {
			m.positions[to] = m.positions[from]
			m.positions[from] = nil
		}
		done(err)
	})
}

// Measure measures the qubit at pos in the computational basis. The qubit
// stays in place, detached from its partner, until popped.
func (m *Memory) Measure(pos int, done func(outcome int, err error)) error {
	if err := m.idle("measure"); err != nil {
		return err
	}
	target, err := m.Peek(pos)
	if err != nil {
		return err
	}
	return m.run(fmt.Sprintf("measure %d", pos), m.durations.Measure, func() {
		q, err := m.Peek(pos)
		if err == nil && q != target {
			err = fmt.Errorf("%s: measure %d: qubit %s left the position: %w", m.name, pos, target.Name, ErrPositionEmpty)
		}
		if err != nil {
			done(0, err)
			return
		}
		// the marginal of half a maximally entangled pair is uniform
		outcome := m.rng.Intn(2)
		if q.Partner != nil {
			q.Partner.Partner = nil
			q.Partner = nil
		}
		done(outcome, nil)
	})
}

// Connect performs the GHZ-basis measurement on the qubits at positions:
// a CNOT from positions[0] onto every other position, a Hadamard on
// positions[0] and a computational-basis measurement of all of them.
//
// The partners of the measured qubits end up in a GHZ state carrying the
// byproduct Z^m0 on the first partner and X^mi on partner i; errors the
// measured qubits carried are transferred to their partners. The measured
// qubits stay in place until popped.
func (m *Memory) Connect(positions []int, done func(outcomes []int, err error)) error {
	check := func() ([]*Qubit, error) {
		qubits := make([]*Qubit, len(positions))
		seen := make(map[int]bool, len(positions))
		for i, pos := range positions {
			if seen[pos] {
				return nil, fmt.Errorf("%s: connect %v: position %d repeated", m.name, positions, pos)
			}
			seen[pos] = true
			q, err := m.Peek(pos)
			if err != nil {
				return nil, err
			}
			qubits[i] = q
		}
		return qubits, nil
	}
	if len(positions) < 2 {
		return fmt.Errorf("%s: connect needs at least 2 positions, got %d", m.name, len(positions))
	}
	if err := m.idle("connect"); err != nil {
		return err
	}
	if _, err := check(); err != nil {
		return err
	}
	positions = append([]int(nil), positions...)
	return m.run(fmt.Sprintf("connect %v", positions), m.durations.Connect, func() {
		qubits, err := check()
		if err != nil {
			done(nil, err)
			return
		}
		outcomes := make([]int, len(qubits))
		coherence := 1.0
		for i := range qubits {
			outcomes[i] = m.rng.Intn(2)
			coherence *= qubits[i].coherence
		}
		var first *Qubit
		for i, q := range qubits {
			partner := q.Partner
			q.Partner = nil
			if partner == nil {
				continue
			}
			partner.Partner = nil
			partner.Apply(q.Frame)
			if i == 0 {
				partner.Apply(pauli.FromBits(false, outcomes[i] == 1))
			} else {
				partner.Apply(pauli.FromBits(outcomes[i] == 1, false))
			}
			if first == nil {
				first = partner
			}
		}
		if first != nil {
			first.coherence *= coherence
		}
		done(outcomes, nil)
	})
}
