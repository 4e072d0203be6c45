package memory

// LinkIDOrigin is the first identifier handed out for every remote node.
const LinkIDOrigin = 0

// LinkIDAllocator hands out link identifiers that increase strictly per remote node.
// Both ends of a pair allocate independently; they agree because every pair is
// registered on both sides exactly once.
type LinkIDAllocator struct {
	next map[string]int
}

// NewLinkIDAllocator returns an allocator with every counter at the origin.
func NewLinkIDAllocator() *LinkIDAllocator {
	return &LinkIDAllocator{next: make(map[string]int)}
}

// NextID returns a fresh identifier for links with remoteNodeName.
func (a *LinkIDAllocator) NextID(remoteNodeName string) int {
	id, ok := a.next[remoteNodeName]
	if !ok {
		id = LinkIDOrigin
	}
	a.next[remoteNodeName] = id + 1
	return id
}

// Peek returns the identifier NextID would return, without consuming it.
func (a *LinkIDAllocator) Peek(remoteNodeName string) int {
	if id, ok := a.next[remoteNodeName]; ok {
		return id
	}
	return LinkIDOrigin
}

// Reset returns every counter to the origin.
func (a *LinkIDAllocator) Reset() {
	a.next = make(map[string]int)
}
