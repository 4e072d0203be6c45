// Package memory tracks which memory slot of a node holds entanglement with
// which remote node, and implements the switch's matching, buffering and
// cutoff policies on top of that bookkeeping.
package memory

import (
	"fmt"

	"github.com/inference-sim/qswitch-sim/sim/pauli"
)

// Link is one unit of entanglement with a remote node, held in one memory slot.
// Links are values: moving a link changes the slot that holds it, never the link.
type Link struct {
	RemoteNodeName string
	LinkID         int
	CreationTime   int64 // ticks at registration
}

func (l Link) String() string {
	return fmt.Sprintf("%s#%d@%d", l.RemoteNodeName, l.LinkID, l.CreationTime)
}

// LinkGroup is the set of links consumed by one connect operation, annotated
// with the correction operator each participant has to apply so the produced
// state matches the canonical GHZ state. CorrectionOperators[i] belongs to Links[i].
type LinkGroup struct {
	Links               []Link
	CorrectionOperators []pauli.Operator
}

// NewLinkGroup copies links and corrections into an immutable group.
func NewLinkGroup(links []Link, corrections []pauli.Operator) (LinkGroup, error) {
	if len(links) != len(corrections) {
		return LinkGroup{}, fmt.Errorf("link group: %d links but %d correction operators", len(links), len(corrections))
	}
	return LinkGroup{
		Links:               append([]Link(nil), links...),
		CorrectionOperators: append([]pauli.Operator(nil), corrections...),
	}, nil
}

// Len returns the number of participants.
func (g LinkGroup) Len() int {
	return len(g.Links)
}

// Empty reports whether the group has no participants.
func (g LinkGroup) Empty() bool {
	return len(g.Links) == 0
}

// Peers returns the remote node names of the participants, in link order.
func (g LinkGroup) Peers() []string {
	peers := make([]string, len(g.Links))
	for i, l := range g.Links {
		peers[i] = l.RemoteNodeName
	}
	return peers
}
