// Package protocol implements the scheduling protocols of a star network: a
// leaf protocol per peer node and the switch protocol at the centre, built on
// the primitives every node shares, and the collector that turns completed
// connects into fidelity results.
//
// All protocols run on the simulation goroutine. A cycle suspends only while a
// physical operation is in flight; its continuation runs from the operation's
// completion event. Arrivals that land while a cycle is suspended are picked up
// by one extra cycle as soon as the current one finishes.
package protocol

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/qswitch-sim/sim"
	"github.com/inference-sim/qswitch-sim/sim/memory"
	"github.com/inference-sim/qswitch-sim/sim/qmem"
)

// ErrLinkDiscarded is reported when the link an operation was issued for was
// discarded by another protocol (eviction, expiry or collection) before the
// operation completed.
var ErrLinkDiscarded = errors.New("link discarded while operation was in flight")

// ReservedSlot is a memory slot that a channel fills automatically, together
// with the node on the other end of that channel.
type ReservedSlot struct {
	Position int
	Remote   string
}

// move is a relocation out of a reserved slot.
type move struct {
	from, to int
}

// Node bundles what every scheduling role needs: the memory manager, the
// physical memory it mirrors, the link-ID allocator, the reserved slots, and
// the wake-up bookkeeping of the cycle.
//
// Thread-safety: NOT thread-safe; driven from the simulation goroutine only.
type Node struct {
	name     string
	engine   *sim.Engine
	manager  *memory.Manager
	qmemory  *qmem.Memory
	ids      *memory.LinkIDAllocator
	reserved []ReservedSlot
	free     []int
	recorder Recorder

	state         State
	cycle         func(done func())
	running       bool // a cycle is in progress, possibly suspended
	wakePending   bool // a wake arrived while running
	wakeScheduled bool
	err           error
}

// NewNode creates a node whose memory manager mirrors qmemory.
// cutoff is the decoherence cutoff in ticks; 0 disables it.
// Panics on nil collaborators or on reserved slots outside the memory.
func NewNode(name string, engine *sim.Engine, qmemory *qmem.Memory, cutoff int64, reserved []ReservedSlot) *Node {
	if engine == nil || qmemory == nil {
		panic(fmt.Sprintf("Node %s: engine and memory must not be nil", name))
	}
	isReserved := make(map[int]bool, len(reserved))
	for _, r := range reserved {
		if r.Position < 0 || r.Position >= qmemory.NumPositions() {
			panic(fmt.Sprintf("Node %s: reserved slot %d not in [0, %d)", name, r.Position, qmemory.NumPositions()))
		}
		if isReserved[r.Position] {
			panic(fmt.Sprintf("Node %s: reserved slot %d listed twice", name, r.Position))
		}
		isReserved[r.Position] = true
	}
	free := make([]int, 0, qmemory.NumPositions()-len(reserved))
	for pos := 0; pos < qmemory.NumPositions(); pos++ {
		if !isReserved[pos] {
			free = append(free, pos)
		}
	}
	return &Node{
		name:     name,
		engine:   engine,
		manager:  memory.NewManager(name, qmemory.NumPositions(), engine, cutoff),
		qmemory:  qmemory,
		ids:      memory.NewLinkIDAllocator(),
		reserved: append([]ReservedSlot(nil), reserved...),
		free:     free,
		recorder: NopRecorder{},
		state:    StateAwaitArrival,
	}
}

// Name returns the node's name.
func (n *Node) Name() string { return n.name }

// Manager returns the node's memory manager.
func (n *Node) Manager() *memory.Manager { return n.manager }

// Memory returns the node's physical memory.
func (n *Node) Memory() *qmem.Memory { return n.qmemory }

// FreePositions returns the slots the scheduler may move links into.
func (n *Node) FreePositions() []int { return append([]int(nil), n.free...) }

// SetRecorder installs r; nil restores the no-op recorder.
func (n *Node) SetRecorder(r Recorder) {
	if r == nil {
		r = NopRecorder{}
	}
	n.recorder = r
}

// State returns the step the current cycle is in.
func (n *Node) State() State { return n.state }

// Err returns the first error that aborted a cycle.
func (n *Node) Err() error { return n.err }

func (n *Node) setState(s State) {
	n.state = s
}

// fail logs err and keeps the first one.
func (n *Node) fail(err error) {
	logrus.Errorf("[tick %012d] %s: cycle aborted in %s: %v", n.engine.Now(), n.name, n.state, err)
	if n.err == nil {
		n.err = err
	}
}

// start installs the role's cycle and subscribes it to arrivals.
func (n *Node) start(cycle func(done func())) {
	n.cycle = cycle
	n.qmemory.SetInputHandler(func(int) { n.requestWake() })
}

// requestWake schedules one wake at the current instant. The wake runs after
// every arrival at this instant has been delivered.
func (n *Node) requestWake() {
	if n.wakeScheduled {
		return
	}
	n.wakeScheduled = true
	n.engine.After(0, sim.EventTypeProtocolWake, n.wake)
}

func (n *Node) wake() {
	n.wakeScheduled = false
	if n.cycle == nil {
		return
	}
	if n.running {
		n.wakePending = true
		return
	}
	n.running = true
	n.cycle(n.cycleDone)
}

func (n *Node) cycleDone() {
	n.running = false
	n.setState(StateAwaitArrival)
	if n.wakePending {
		n.wakePending = false
		n.requestWake()
	}
}

// Reset clears the memory, the manager and the allocator and returns to
// AWAIT_ARRIVAL. The cycle stays installed.
func (n *Node) Reset() {
	n.manager.Reset()
	n.ids.Reset()
	n.qmemory.Reset()
	n.state = StateAwaitArrival
	n.running = false
	n.wakePending = false
	n.wakeScheduled = false
	n.err = nil
}

// registerArrivals registers a fresh link for every reserved slot that
// physically holds a qubit the manager does not know about yet. Occupancy is
// polled, so simultaneous arrivals on several slots are all registered by one
// wake, and a slot that could not be drained is never registered twice.
func (n *Node) registerArrivals() ([]memory.Link, error) {
	var fresh []memory.Link
	for _, r := range n.reserved {
		if !n.qmemory.InUse(r.Position) || n.manager.IsInUse(r.Position) {
			continue
		}
		link, err := n.addFreshLink(r.Position, r.Remote)
		if err != nil {
			return fresh, err
		}
		fresh = append(fresh, link)
	}
	return fresh, nil
}

func (n *Node) addFreshLink(slot int, remote string) (memory.Link, error) {
	link, err := n.manager.AddFreshLink(slot, remote, n.ids.NextID(remote))
	if err != nil {
		return memory.Link{}, err
	}
	n.recorder.LinkRegistered(n.name)
	return link, nil
}

// discard drops the link at slot from the manager and the memory together.
func (n *Node) discard(slot int) error {
	if err := n.manager.RemoveLink(slot); err != nil {
		return err
	}
	if _, err := n.qmemory.Pop(slot); err != nil {
		return fmt.Errorf("%s: discard slot %d: %w", n.name, slot, err)
	}
	return nil
}

// take removes the link (remote, linkID) and returns its qubit.
func (n *Node) take(remote string, linkID int) (*qmem.Qubit, error) {
	slot, err := n.manager.GetPosition(remote, linkID)
	if err != nil {
		return nil, err
	}
	if err := n.manager.RemoveLink(slot); err != nil {
		return nil, err
	}
	return n.qmemory.Pop(slot)
}

// discardLink drops the link (remote, linkID) if this node still holds it.
func (n *Node) discardLink(remote string, linkID int) (bool, error) {
	slot, err := n.manager.GetPosition(remote, linkID)
	if errors.Is(err, memory.ErrLinkNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, n.discard(slot)
}

// vanished reports whether the link that was at slot when an operation was
// issued is no longer there.
func (n *Node) vanished(slot int, issued memory.Link) bool {
	current, err := n.manager.GetLink(slot)
	return err != nil || current != issued
}

// Move relocates the link at oldSlot to newSlot: the physical move is issued
// first and the manager follows on completion. done runs on completion, with
// ErrLinkDiscarded if the link was discarded in the meantime.
func (n *Node) Move(oldSlot, newSlot int, done func(error)) {
	issued, err := n.manager.GetLink(oldSlot)
	if err != nil {
		done(err)
		return
	}
	err = n.qmemory.Move(oldSlot, newSlot, func(err error) {
		if err != nil {
			if errors.Is(err, qmem.ErrPositionEmpty) && n.vanished(oldSlot, issued) {
				logrus.Debugf("[tick %012d] %s: %s discarded during move %d -> %d", n.engine.Now(), n.name, issued, oldSlot, newSlot)
				done(ErrLinkDiscarded)
				return
			}
			done(err)
			return
		}
		done(n.manager.MoveLink(oldSlot, newSlot))
	})
	if err != nil {
		done(err)
	}
}

// Consume measures the link at slot, removes it and hands the outcome to done.
func (n *Node) Consume(slot int, done func(outcome int, err error)) {
	issued, err := n.manager.GetLink(slot)
	if err != nil {
		done(0, err)
		return
	}
	err = n.qmemory.Measure(slot, func(outcome int, err error) {
		if err != nil {
			if errors.Is(err, qmem.ErrPositionEmpty) && n.vanished(slot, issued) {
				done(0, ErrLinkDiscarded)
				return
			}
			done(0, err)
			return
		}
		done(outcome, n.discard(slot))
	})
	if err != nil {
		done(0, err)
	}
}

// necessaryMoves pairs every occupied reserved slot with a free empty slot, in
// ascending slot order, for as many as there are free slots.
func (n *Node) necessaryMoves() []move {
	occupied := make([]int, 0, len(n.reserved))
	for _, r := range n.reserved {
		if n.manager.IsInUse(r.Position) {
			occupied = append(occupied, r.Position)
		}
	}
	targets := n.manager.FreeMemPositions(n.free, len(occupied))
	moves := make([]move, 0, len(targets))
	for i, to := range targets {
		moves = append(moves, move{from: occupied[i], to: to})
	}
	if len(targets) < len(occupied) {
		logrus.Debugf("[tick %012d] %s: %d reserved slots stay occupied, no free slot", n.engine.Now(), n.name, len(occupied)-len(targets))
	}
	return moves
}

// FreeReservedSlots moves links out of occupied reserved slots into free slots,
// best effort, and calls done once every issued move has completed. The
// memory runs one program at a time, so the moves run back to back.
func (n *Node) FreeReservedSlots(done func(error)) {
	n.runMoves(n.necessaryMoves(), done)
}

func (n *Node) runMoves(moves []move, done func(error)) {
	if len(moves) == 0 {
		done(nil)
		return
	}
	m := moves[0]
	n.Move(m.from, m.to, func(err error) {
		if err != nil && !errors.Is(err, ErrLinkDiscarded) {
			done(err)
			return
		}
		n.runMoves(moves[1:], done)
	})
}
