package protocol

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/qswitch-sim/sim/memory"
	"github.com/inference-sim/qswitch-sim/sim/trace"
)

// SwitchConfig configures the switch protocol.
type SwitchConfig struct {
	// ConnectSize is the number of links, from distinct leaves, each connect consumes.
	ConnectSize int
	// Buffers caps the links kept per leaf, at the switch and at the leaf.
	// Leaves without an entry are unbounded.
	Buffers map[string]memory.BufferCapacity
	// Privileged, when set, is a leaf that must take part in every connect.
	Privileged string
}

// SwitchProtocol is the central role. Each wake runs one cycle:
//
//	REGISTER_ALL → EXPIRE → EVICT → DRAIN_RESERVED → MATCH_LOOP → SIGNAL
//
// MATCH_LOOP connects greedily until no OLEF match is left; SIGNAL hands the
// cycle's link groups, possibly none, to every subscriber.
type SwitchProtocol struct {
	node       *Node
	cfg        SwitchConfig
	leaves     []*LeafProtocol
	leafByName map[string]*LeafProtocol

	subscribers []func([]memory.LinkGroup)
	trace       *trace.SimulationTrace
	batch       []memory.LinkGroup
	connects    int
}

// NewSwitchProtocol creates the switch protocol. leaves are the injected
// handles of the leaf protocols; the switch reaches into their memories to
// keep both ends of every link in agreement.
// Panics if ConnectSize < 2, if the privileged leaf is unknown, or if a
// reserved slot of node serves a remote that is not among leaves.
func NewSwitchProtocol(node *Node, leaves []*LeafProtocol, cfg SwitchConfig) *SwitchProtocol {
	if cfg.ConnectSize < 2 {
		panic(fmt.Sprintf("SwitchProtocol: ConnectSize must be >= 2, got %d", cfg.ConnectSize))
	}
	byName := make(map[string]*LeafProtocol, len(leaves))
	for _, leaf := range leaves {
		byName[leaf.Node().Name()] = leaf
	}
	for _, r := range node.reserved {
		if _, ok := byName[r.Remote]; !ok {
			panic(fmt.Sprintf("SwitchProtocol: reserved slot %d serves unknown leaf %q", r.Position, r.Remote))
		}
	}
	if cfg.Privileged != "" {
		if _, ok := byName[cfg.Privileged]; !ok {
			panic(fmt.Sprintf("SwitchProtocol: privileged node %q is not a leaf", cfg.Privileged))
		}
	}
	buffers := make(map[string]memory.BufferCapacity, len(cfg.Buffers))
	for name, b := range cfg.Buffers {
		buffers[name] = b
	}
	cfg.Buffers = buffers
	return &SwitchProtocol{
		node:       node,
		cfg:        cfg,
		leaves:     append([]*LeafProtocol(nil), leaves...),
		leafByName: byName,
	}
}

// Name returns the protocol's name.
func (s *SwitchProtocol) Name() string { return "switch_protocol" }

// Node returns the switch node.
func (s *SwitchProtocol) Node() *Node { return s.node }

// State returns the step the current cycle is in.
func (s *SwitchProtocol) State() State { return s.node.State() }

// Err returns the first error that aborted a cycle.
func (s *SwitchProtocol) Err() error { return s.node.Err() }

// ConnectSize returns the number of links per connect.
func (s *SwitchProtocol) ConnectSize() int { return s.cfg.ConnectSize }

// Connects returns the number of connects performed.
func (s *SwitchProtocol) Connects() int { return s.connects }

// Leaves returns the injected leaf protocols.
func (s *SwitchProtocol) Leaves() []*LeafProtocol { return append([]*LeafProtocol(nil), s.leaves...) }

// Subscribe registers fn to receive the link groups of every cycle.
func (s *SwitchProtocol) Subscribe(fn func([]memory.LinkGroup)) {
	s.subscribers = append(s.subscribers, fn)
}

// SetTrace records connects, evictions and expiries into st; nil disables tracing.
func (s *SwitchProtocol) SetTrace(st *trace.SimulationTrace) {
	s.trace = st
}

// Start subscribes the protocol to arrivals.
func (s *SwitchProtocol) Start() {
	s.node.start(s.cycle)
}

// Reset clears the switch's memory, its allocator and any unsignalled groups.
// Leaves are reset by their own protocols.
func (s *SwitchProtocol) Reset() {
	s.node.Reset()
	s.batch = nil
	s.connects = 0
}

func (s *SwitchProtocol) capacity(leaf string) memory.BufferCapacity {
	if b, ok := s.cfg.Buffers[leaf]; ok {
		return b
	}
	return memory.Unbounded
}

func (s *SwitchProtocol) cycle(done func()) {
	n := s.node
	finish := func(err error) {
		if err != nil {
			n.fail(err)
		}
		n.setState(StateSignal)
		s.signal()
		done()
	}

	n.setState(StateRegisterAll)
	if err := s.registerAll(); err != nil {
		finish(err)
		return
	}
	n.setState(StateExpire)
	if err := s.expire(); err != nil {
		finish(err)
		return
	}
	n.setState(StateEvict)
	if err := s.evict(); err != nil {
		finish(err)
		return
	}
	n.setState(StateDrainReserved)
	n.FreeReservedSlots(func(err error) {
		if err != nil {
			finish(err)
			return
		}
		n.setState(StateMatchLoop)
		s.matchLoop(finish)
	})
}

// registerAll registers the switch's new arrivals, then lets every leaf catch
// up on arrivals its own protocol has not registered yet, so both ends hold
// the same links before anything is expired, evicted or matched.
func (s *SwitchProtocol) registerAll() error {
	fresh, err := s.node.registerArrivals()
	if err != nil {
		return err
	}
	for _, link := range fresh {
		logrus.Debugf("[tick %012d] %s: arrival %s", s.node.engine.Now(), s.node.name, link)
	}
	for _, leaf := range s.leaves {
		if _, err := leaf.node.registerArrivals(); err != nil {
			return err
		}
	}
	return nil
}

// expire applies the decoherence cutoff and discards the expired links'
// qubits, together with their counterparts at the leaves.
func (s *SwitchProtocol) expire() error {
	n := s.node
	held := make(map[int]memory.Link, n.manager.Len())
	for _, slot := range n.manager.PositionsInUse() {
		link, err := n.manager.GetLink(slot)
		if err != nil {
			return err
		}
		held[slot] = link
	}

	expired := n.manager.ApplyTimeout()
	now := n.engine.Now()
	for _, slot := range expired {
		link := held[slot]
		if _, err := n.qmemory.Pop(slot); err != nil {
			return fmt.Errorf("%s: discard expired slot %d: %w", n.name, slot, err)
		}
		if leaf, ok := s.leafByName[link.RemoteNodeName]; ok {
			if _, err := leaf.node.discardLink(n.name, link.LinkID); err != nil {
				return err
			}
		}
		if s.trace != nil {
			s.trace.RecordExpiry(trace.ExpiryRecord{
				Clock:  now,
				Peer:   link.RemoteNodeName,
				LinkID: link.LinkID,
				Slot:   slot,
				Age:    now - link.CreationTime,
			})
		}
	}
	if len(expired) > 0 {
		logrus.Debugf("[tick %012d] %s: %d links expired", now, n.name, len(expired))
		n.recorder.LinksExpired(len(expired))
	}
	return nil
}

// evict applies every leaf's buffer capacity at the switch and discards the
// same links at the leaf. The leaf's own count is not used: it also holds the
// halves of connected groups that are still awaiting collection.
func (s *SwitchProtocol) evict() error {
	for _, leaf := range s.leaves {
		capacity := s.capacity(leaf.node.Name())
		if capacity.IsUnbounded() {
			continue
		}
		evicted, err := s.evictAtSwitch(leaf.node.Name(), capacity)
		if err != nil {
			return err
		}
		if err := s.mirrorEviction(leaf.node, evicted); err != nil {
			return err
		}
		if len(evicted) > 0 {
			logrus.Debugf("[tick %012d] %s: evicted %d links with %s (buffer %s)",
				s.node.engine.Now(), s.node.name, len(evicted), leaf.node.Name(), capacity)
		}
	}
	return nil
}

func (s *SwitchProtocol) evictAtSwitch(remote string, capacity memory.BufferCapacity) ([]memory.Link, error) {
	n := s.node
	slots := n.manager.PositionsToDiscardFollowingBuffer(remote, capacity)
	if len(slots) == 0 {
		return nil, nil
	}
	evicted := make([]memory.Link, 0, len(slots))
	for _, slot := range slots {
		link, err := n.manager.GetLink(slot)
		if err != nil {
			return nil, err
		}
		if err := n.discard(slot); err != nil {
			return nil, err
		}
		s.recordEviction(n.name, remote, slot, link)
		evicted = append(evicted, link)
	}
	n.recorder.LinksEvicted(n.name, len(evicted))
	return evicted, nil
}

// mirrorEviction discards at leaf the counterparts of links evicted at the switch.
func (s *SwitchProtocol) mirrorEviction(leaf *Node, evicted []memory.Link) error {
	discarded := 0
	for _, link := range evicted {
		slot, err := leaf.manager.GetPosition(s.node.name, link.LinkID)
		if errors.Is(err, memory.ErrLinkNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := leaf.discard(slot); err != nil {
			return err
		}
		s.recordEviction(leaf.name, s.node.name, slot, link)
		discarded++
	}
	if discarded > 0 {
		s.node.recorder.LinksEvicted(leaf.name, discarded)
	}
	return nil
}

func (s *SwitchProtocol) recordEviction(at, remote string, slot int, link memory.Link) {
	if s.trace == nil {
		return
	}
	now := s.node.engine.Now()
	s.trace.RecordEviction(trace.EvictionRecord{
		Clock:  now,
		Node:   at,
		Peer:   remote,
		LinkID: link.LinkID,
		Slot:   slot,
		Age:    now - link.CreationTime,
	})
}

// matchLoop connects the OLEF match, if any, and repeats from the connect's
// completion until no match is left.
func (s *SwitchProtocol) matchLoop(finish func(error)) {
	n := s.node
	positions := n.manager.ConnectablePositions(s.cfg.ConnectSize, s.cfg.Privileged)
	if positions == nil {
		finish(nil)
		return
	}
	links := make([]memory.Link, len(positions))
	for i, pos := range positions {
		link, err := n.manager.GetLink(pos)
		if err != nil {
			finish(err)
			return
		}
		links[i] = link
	}

	err := n.qmemory.Connect(positions, func(outcomes []int, err error) {
		if err != nil {
			finish(err)
			return
		}
		for _, pos := range positions {
			if err := n.discard(pos); err != nil {
				finish(err)
				return
			}
		}
		corrections, err := CorrectionOperators(outcomes, s.cfg.ConnectSize)
		if err != nil {
			finish(err)
			return
		}
		group, err := memory.NewLinkGroup(links, corrections)
		if err != nil {
			finish(err)
			return
		}
		s.batch = append(s.batch, group)
		s.connects++
		n.recorder.Connected(s.cfg.ConnectSize)
		s.recordConnect(positions, links, outcomes, group)
		s.matchLoop(finish)
	})
	if err != nil {
		finish(err)
	}
}

func (s *SwitchProtocol) recordConnect(positions []int, links []memory.Link, outcomes []int, group memory.LinkGroup) {
	now := s.node.engine.Now()
	logrus.Debugf("[tick %012d] %s: connected %v, outcomes %v", now, s.node.name, group.Peers(), outcomes)
	if s.trace == nil {
		return
	}
	rec := trace.ConnectRecord{
		Clock:       now,
		Positions:   append([]int(nil), positions...),
		Peers:       group.Peers(),
		LinkIDs:     make([]int, len(links)),
		Ages:        make([]int64, len(links)),
		Outcomes:    append([]int(nil), outcomes...),
		Corrections: make([]string, len(links)),
	}
	for i, link := range links {
		rec.LinkIDs[i] = link.LinkID
		rec.Ages[i] = now - link.CreationTime
		rec.Corrections[i] = group.CorrectionOperators[i].String()
	}
	s.trace.RecordConnect(rec)
}

// signal hands this cycle's groups to the subscribers.
func (s *SwitchProtocol) signal() {
	batch := s.batch
	s.batch = nil
	if batch == nil {
		batch = []memory.LinkGroup{}
	}
	for _, fn := range s.subscribers {
		fn(batch)
	}
}

// LinkCounts returns, per leaf, the number of links the switch currently holds.
func (s *SwitchProtocol) LinkCounts() map[string]int {
	counts := make(map[string]int, len(s.leaves))
	for _, leaf := range s.leaves {
		counts[leaf.node.Name()] = s.node.manager.LinksWith(leaf.node.Name())
	}
	return counts
}
