package memory

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
)

// Clock supplies simulation time. *sim.Engine satisfies it.
type Clock interface {
	Now() int64
}

// Manager is a node's authority over which memory slot holds which link.
//
// It only keeps metadata. The physical qubits live in a separate quantum memory
// and the caller keeps both in lock-step: every link removal, move or creation
// here must be mirrored there.
//
// Thread-safety: NOT thread-safe; owned by one protocol on the simulation goroutine.
type Manager struct {
	nodeName     string
	numPositions int
	clock        Clock
	cutoff       int64 // ticks; 0 disables the decoherence cutoff

	links map[int]Link // slot -> link
}

// NewManager creates an empty manager for numPositions slots.
// cutoff is the maximum age (in ticks) of a usable link; 0 disables expiry.
// Panics if numPositions <= 0, cutoff < 0 or clock is nil.
func NewManager(nodeName string, numPositions int, clock Clock, cutoff int64) *Manager {
	if numPositions <= 0 {
		panic(fmt.Sprintf("Manager: numPositions must be > 0, got %d", numPositions))
	}
	if cutoff < 0 {
		panic(fmt.Sprintf("Manager: cutoff must be >= 0, got %d", cutoff))
	}
	if clock == nil {
		panic("Manager: clock must not be nil")
	}
	return &Manager{
		nodeName:     nodeName,
		numPositions: numPositions,
		clock:        clock,
		cutoff:       cutoff,
		links:        make(map[int]Link),
	}
}

// CutoffFromDecoherenceRate converts a decoherence rate (per second) into the
// age threshold, in ticks, beyond which a link is discarded: the mean lifetime 1/rate.
// A rate of zero (or less) disables the cutoff.
func CutoffFromDecoherenceRate(ratePerSecond float64) int64 {
	if ratePerSecond <= 0 {
		return 0
	}
	cutoff := math.Round(1e9 / ratePerSecond)
	if cutoff < 1 {
		return 1
	}
	if cutoff > math.MaxInt64/2 {
		return 0
	}
	return int64(cutoff)
}

// NodeName returns the name of the node owning this manager.
func (m *Manager) NodeName() string { return m.nodeName }

// NumPositions returns the fixed number of memory slots.
func (m *Manager) NumPositions() int { return m.numPositions }

// Cutoff returns the decoherence cutoff in ticks (0 = disabled).
func (m *Manager) Cutoff() int64 { return m.cutoff }

// Len returns the number of links currently held.
func (m *Manager) Len() int { return len(m.links) }

func (m *Manager) checkSlot(slot int) error {
	if slot < 0 || slot >= m.numPositions {
		return fmt.Errorf("%s: slot %d not in [0, %d): %w", m.nodeName, slot, m.numPositions, ErrSlotOutOfRange)
	}
	return nil
}

// AddFreshLink registers a new link at slot, timestamped now.
func (m *Manager) AddFreshLink(slot int, remoteNodeName string, linkID int) (Link, error) {
	if err := m.checkSlot(slot); err != nil {
		return Link{}, err
	}
	if existing, ok := m.links[slot]; ok {
		return Link{}, fmt.Errorf("%s: add %s#%d at slot %d (holds %s): %w",
			m.nodeName, remoteNodeName, linkID, slot, existing, ErrDuplicateSlot)
	}
	if pos, err := m.GetPosition(remoteNodeName, linkID); err == nil {
		return Link{}, fmt.Errorf("%s: add %s#%d at slot %d (already at slot %d): %w",
			m.nodeName, remoteNodeName, linkID, slot, pos, ErrDuplicateLinkIdentity)
	}
	link := Link{
		RemoteNodeName: remoteNodeName,
		LinkID:         linkID,
		CreationTime:   m.clock.Now(),
	}
	m.links[slot] = link
	logrus.Debugf("[tick %012d] %s: registered %s at slot %d", link.CreationTime, m.nodeName, link, slot)
	return link, nil
}

// GetLink returns the link held at slot.
func (m *Manager) GetLink(slot int) (Link, error) {
	if err := m.checkSlot(slot); err != nil {
		return Link{}, err
	}
	link, ok := m.links[slot]
	if !ok {
		return Link{}, fmt.Errorf("%s: get slot %d: %w", m.nodeName, slot, ErrEmptySlot)
	}
	return link, nil
}

// RemoveLink deletes the link held at slot.
func (m *Manager) RemoveLink(slot int) error {
	if _, err := m.GetLink(slot); err != nil {
		return err
	}
	delete(m.links, slot)
	return nil
}

// MoveLink relocates the link at oldSlot to newSlot, keeping its identity and age.
func (m *Manager) MoveLink(oldSlot, newSlot int) error {
	link, err := m.GetLink(oldSlot)
	if err != nil {
		return err
	}
	if err := m.checkSlot(newSlot); err != nil {
		return err
	}
	if existing, ok := m.links[newSlot]; ok {
		return fmt.Errorf("%s: move slot %d -> %d (holds %s): %w", m.nodeName, oldSlot, newSlot, existing, ErrDuplicateSlot)
	}
	delete(m.links, oldSlot)
	m.links[newSlot] = link
	return nil
}

// GetPosition returns the slot holding the link (remoteNodeName, linkID).
func (m *Manager) GetPosition(remoteNodeName string, linkID int) (int, error) {
	for slot, link := range m.links {
		if link.RemoteNodeName == remoteNodeName && link.LinkID == linkID {
			return slot, nil
		}
	}
	return 0, fmt.Errorf("%s: %s#%d: %w", m.nodeName, remoteNodeName, linkID, ErrLinkNotFound)
}

// IsInUse reports whether slot holds a link.
func (m *Manager) IsInUse(slot int) bool {
	_, ok := m.links[slot]
	return ok
}

// PositionsInUse returns all occupied slots in ascending order.
func (m *Manager) PositionsInUse() []int {
	slots := make([]int, 0, len(m.links))
	for slot := range m.links {
		slots = append(slots, slot)
	}
	sort.Ints(slots)
	return slots
}

// FreeMemPositions returns up to count empty slots drawn from candidates in
// ascending order. A nil candidates slice means all slots. Fewer than count
// slots are returned when fewer are free.
func (m *Manager) FreeMemPositions(candidates []int, count int) []int {
	if count <= 0 {
		return []int{}
	}
	var pool []int
	if candidates == nil {
		pool = make([]int, m.numPositions)
		for i := range pool {
			pool[i] = i
		}
	} else {
		pool = append([]int(nil), candidates...)
		sort.Ints(pool)
	}

	free := make([]int, 0, count)
	for i, slot := range pool {
		if i > 0 && pool[i-1] == slot {
			continue
		}
		if slot < 0 || slot >= m.numPositions || m.IsInUse(slot) {
			continue
		}
		free = append(free, slot)
		if len(free) == count {
			break
		}
	}
	return free
}

// ExactFreeMemPositions is FreeMemPositions for callers that need exactly count slots.
func (m *Manager) ExactFreeMemPositions(candidates []int, count int) ([]int, error) {
	free := m.FreeMemPositions(candidates, count)
	if len(free) < count {
		return nil, fmt.Errorf("%s: need %d free slots, have %d: %w", m.nodeName, count, len(free), ErrInsufficientCapacity)
	}
	return free, nil
}

// ApplyTimeout removes every link older than the cutoff and returns the
// invalidated slots in ascending order so the caller can discard the matching
// qubits. Calling it twice at the same instant discards nothing the second time.
func (m *Manager) ApplyTimeout() []int {
	if m.cutoff == 0 {
		return []int{}
	}
	now := m.clock.Now()
	expired := make([]int, 0)
	for _, slot := range m.PositionsInUse() {
		if now-m.links[slot].CreationTime > m.cutoff {
			expired = append(expired, slot)
		}
	}
	for _, slot := range expired {
		logrus.Debugf("[tick %012d] %s: link %s at slot %d passed cutoff %d", now, m.nodeName, m.links[slot], slot, m.cutoff)
		delete(m.links, slot)
	}
	return expired
}

// slotLink pairs a slot with the link it holds.
type slotLink struct {
	slot int
	link Link
}

// olderThan orders by creation time, then slot index, so equal timestamps
// resolve deterministically.
func (a slotLink) olderThan(b slotLink) bool {
	if a.link.CreationTime != b.link.CreationTime {
		return a.link.CreationTime < b.link.CreationTime
	}
	return a.slot < b.slot
}

func (m *Manager) sortedLinks(filter func(Link) bool) []slotLink {
	held := make([]slotLink, 0, len(m.links))
	for slot, link := range m.links {
		if filter == nil || filter(link) {
			held = append(held, slotLink{slot: slot, link: link})
		}
	}
	sort.Slice(held, func(i, j int) bool { return held[i].olderThan(held[j]) })
	return held
}

// ConnectablePositions selects requiredCount slots holding links with pairwise
// distinct remote nodes, following Oldest-Link-Entanglement-First: every remote
// node is represented by its oldest link and the oldest representatives win.
// When privileged is non-empty one selected link must come from that node.
// Returns the slots ordered by ascending creation time, or nil when no match exists.
func (m *Manager) ConnectablePositions(requiredCount int, privileged string) []int {
	if requiredCount <= 0 {
		return nil
	}

	// sortedLinks is oldest first, so the first link seen per node is its oldest.
	seen := make(map[string]bool)
	candidates := make([]slotLink, 0)
	for _, sl := range m.sortedLinks(nil) {
		if seen[sl.link.RemoteNodeName] {
			continue
		}
		seen[sl.link.RemoteNodeName] = true
		candidates = append(candidates, sl)
	}
	if len(candidates) < requiredCount {
		return nil
	}

	selected := make([]slotLink, 0, requiredCount)
	if privileged != "" {
		if !seen[privileged] {
			return nil
		}
		for _, c := range candidates {
			if c.link.RemoteNodeName == privileged {
				selected = append(selected, c)
				break
			}
		}
	}
	for _, c := range candidates {
		if len(selected) == requiredCount {
			break
		}
		if privileged != "" && c.link.RemoteNodeName == privileged {
			continue
		}
		selected = append(selected, c)
	}

	sort.Slice(selected, func(i, j int) bool { return selected[i].olderThan(selected[j]) })
	slots := make([]int, len(selected))
	for i, sl := range selected {
		slots[i] = sl.slot
	}
	return slots
}

// LinksWith returns the number of links held with remoteNodeName.
func (m *Manager) LinksWith(remoteNodeName string) int {
	n := 0
	for _, link := range m.links {
		if link.RemoteNodeName == remoteNodeName {
			n++
		}
	}
	return n
}

// PositionsToDiscardFollowingBuffer returns the slots of the oldest links with
// remoteNodeName that exceed capacity, oldest first. The newest capacity links
// are kept; an unbounded capacity never discards.
func (m *Manager) PositionsToDiscardFollowingBuffer(remoteNodeName string, capacity BufferCapacity) []int {
	if capacity.IsUnbounded() {
		return []int{}
	}
	held := m.sortedLinks(func(l Link) bool { return l.RemoteNodeName == remoteNodeName })
	excess := len(held) - int(capacity)
	if excess <= 0 {
		return []int{}
	}
	slots := make([]int, excess)
	for i := 0; i < excess; i++ {
		slots[i] = held[i].slot
	}
	return slots
}

// Reset forgets every link.
func (m *Manager) Reset() {
	m.links = make(map[int]Link)
}
