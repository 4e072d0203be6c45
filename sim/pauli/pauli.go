// Package pauli models single-qubit Pauli operators up to a global phase.
// They identify the correction operators attached to a link group and the
// Pauli frame carried by simulated qubits.
package pauli

import "fmt"

// Operator is a single-qubit Pauli operator, ignoring global phase.
// The encoding keeps an X bit (1) and a Z bit (2) so composition is a XOR.
type Operator uint8

const (
	I Operator = 0
	X Operator = 1
	Z Operator = 2
	Y Operator = X | Z
)

// FromBits builds an operator from its X and Z components.
func FromBits(x, z bool) Operator {
	var op Operator
	if x {
		op |= X
	}
	if z {
		op |= Z
	}
	return op
}

// Compose returns the product of o and p up to a global phase.
func (o Operator) Compose(p Operator) Operator {
	return (o ^ p) & Y
}

// HasX reports whether the operator flips the computational basis.
func (o Operator) HasX() bool {
	return o&X != 0
}

// HasZ reports whether the operator flips the phase.
func (o Operator) HasZ() bool {
	return o&Z != 0
}

// IsIdentity reports whether the operator is I.
func (o Operator) IsIdentity() bool {
	return o&Y == 0
}

func (o Operator) String() string {
	switch o & Y {
	case I:
		return "I"
	case X:
		return "X"
	case Z:
		return "Z"
	case Y:
		return "Y"
	}
	return fmt.Sprintf("Operator(%d)", uint8(o))
}
