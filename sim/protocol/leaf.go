package protocol

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// LeafReservedSlot is the slot the channel from the switch fills at every leaf.
const LeafReservedSlot = 0

// LeafProtocol is the peer role: every link arriving from the switch is
// registered and then either measured at once or moved out of the reserved
// slot so the next arrival is not blocked.
type LeafProtocol struct {
	node            *Node
	switchName      string
	measureDirectly bool
	outcomes        []int
}

// NewLeafProtocol creates the protocol for a leaf whose memory receives links
// from switchName at LeafReservedSlot.
// Panics if node does not reserve exactly that slot for switchName.
func NewLeafProtocol(node *Node, switchName string, measureDirectly bool) *LeafProtocol {
	if len(node.reserved) != 1 || node.reserved[0] != (ReservedSlot{Position: LeafReservedSlot, Remote: switchName}) {
		panic(fmt.Sprintf("LeafProtocol %s: node must reserve only slot %d for %s, got %v",
			node.Name(), LeafReservedSlot, switchName, node.reserved))
	}
	return &LeafProtocol{
		node:            node,
		switchName:      switchName,
		measureDirectly: measureDirectly,
	}
}

// Name returns the protocol's name.
func (l *LeafProtocol) Name() string { return "leaf_protocol_" + l.node.Name() }

// Node returns the leaf node.
func (l *LeafProtocol) Node() *Node { return l.node }

// State returns the step the current cycle is in.
func (l *LeafProtocol) State() State { return l.node.State() }

// Err returns the first error that aborted a cycle.
func (l *LeafProtocol) Err() error { return l.node.Err() }

// Outcomes returns the measurement outcomes recorded in measure-directly mode.
func (l *LeafProtocol) Outcomes() []int { return append([]int(nil), l.outcomes...) }

// Start subscribes the protocol to arrivals.
func (l *LeafProtocol) Start() {
	l.node.start(l.cycle)
}

// Reset clears the leaf's memory and recorded outcomes.
func (l *LeafProtocol) Reset() {
	l.node.Reset()
	l.outcomes = nil
}

func (l *LeafProtocol) cycle(done func()) {
	n := l.node
	n.setState(StateRegister)
	if _, err := n.registerArrivals(); err != nil {
		n.fail(err)
		done()
		return
	}

	if !l.measureDirectly {
		n.setState(StateVacate)
		n.FreeReservedSlots(func(err error) {
			if err != nil {
				n.fail(err)
			}
			done()
		})
		return
	}

	n.setState(StateMeasure)
	if !n.manager.IsInUse(LeafReservedSlot) {
		done()
		return
	}
	n.Consume(LeafReservedSlot, func(outcome int, err error) {
		switch {
		case errors.Is(err, ErrLinkDiscarded):
			logrus.Debugf("[tick %012d] %s: link discarded before measurement finished", n.engine.Now(), n.name)
		case err != nil:
			n.fail(err)
		default:
			l.outcomes = append(l.outcomes, outcome)
		}
		done()
	})
}
