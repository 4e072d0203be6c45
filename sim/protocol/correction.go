package protocol

import (
	"fmt"

	"github.com/inference-sim/qswitch-sim/sim/pauli"
)

// CorrectionOperators maps the outcomes of a connect to the Pauli correction
// each participant's peer must apply to hold the canonical GHZ state.
// The first (control) participant gets Z on outcome 1, every other participant
// gets X on outcome 1; outcome 0 means no correction.
func CorrectionOperators(outcomes []int, connectSize int) ([]pauli.Operator, error) {
	if len(outcomes) != connectSize {
		return nil, fmt.Errorf("connect of size %d produced %d outcomes", connectSize, len(outcomes))
	}
	ops := make([]pauli.Operator, len(outcomes))
	for i, m := range outcomes {
		if m != 0 && m != 1 {
			return nil, fmt.Errorf("outcome %d of participant %d is not a bit", m, i)
		}
		if m == 0 {
			ops[i] = pauli.I
			continue
		}
		if i == 0 {
			ops[i] = pauli.Z
		} else {
			ops[i] = pauli.X
		}
	}
	return ops, nil
}
