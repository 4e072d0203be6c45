// Package qmem is the reference physical layer of the simulator: a quantum
// memory with addressable positions, timed local operations and a GHZ-basis
// joint measurement.
//
// States are tracked in the Pauli-frame picture. Every qubit is half of a
// pair, or after a connect a member of a GHZ group, that was created perfect;
// what is tracked is the Pauli error it picked up (its frame) and a coherence
// factor that memory dephasing multiplies down. That is enough to compute the
// fidelity of a corrected GHZ state without a state-vector simulation.
package qmem

import (
	"fmt"
	"math"

	"github.com/inference-sim/qswitch-sim/sim/pauli"
)

// Qubit is a simulated qubit.
type Qubit struct {
	Name    string
	Frame   pauli.Operator // accumulated Pauli error relative to the ideal state
	Partner *Qubit         // other half of the pair; nil once the pair is consumed

	coherence  float64 // off-diagonal factor of the shared state, in (0, 1]
	lastUpdate int64   // tick up to which dephasing has been applied
}

// NewPair creates the two halves of a perfect Bell pair at time now.
func NewPair(name string, now int64) (*Qubit, *Qubit) {
	a := &Qubit{Name: name + "/a", coherence: 1, lastUpdate: now}
	b := &Qubit{Name: name + "/b", coherence: 1, lastUpdate: now}
	a.Partner = b
	b.Partner = a
	return a, b
}

// Coherence returns the coherence factor dephasing has left on this qubit.
func (q *Qubit) Coherence() float64 {
	return q.coherence
}

// Apply composes op into the qubit's frame.
func (q *Qubit) Apply(op pauli.Operator) {
	q.Frame = q.Frame.Compose(op)
}

func (q *Qubit) String() string {
	return fmt.Sprintf("%s[%s c=%.4f]", q.Name, q.Frame, q.coherence)
}

// dephase applies exp(-dt/t2) for the time since the last update.
// t2 == 0 means no dephasing.
func (q *Qubit) dephase(now int64, t2 float64) {
	if now > q.lastUpdate && t2 > 0 {
		q.coherence *= math.Exp(-float64(now-q.lastUpdate) / t2)
	}
	if now > q.lastUpdate {
		q.lastUpdate = now
	}
}

// GHZFidelity returns the squared fidelity of the state held by qubits with the
// canonical GHZ state (|0…0⟩ + |1…1⟩)/√2, after their frames and coherences.
//
// A residual frame whose X support is neither empty nor complete maps the state
// onto an orthogonal GHZ-basis state. Otherwise the state is a dephased GHZ
// state whose phase sign is set by the parity of the Z components.
func GHZFidelity(qubits []*Qubit) float64 {
	if len(qubits) == 0 {
		return 0
	}
	xCount, zCount := 0, 0
	coherence := 1.0
	for _, q := range qubits {
		if q.Frame.HasX() {
			xCount++
		}
		if q.Frame.HasZ() {
			zCount++
		}
		coherence *= q.coherence
	}
	if xCount != 0 && xCount != len(qubits) {
		return 0
	}
	sign := 1.0
	if zCount%2 == 1 {
		sign = -1.0
	}
	return (1 + sign*coherence) / 2
}
