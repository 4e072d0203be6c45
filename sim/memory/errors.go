package memory

import "errors"

// Sentinel errors for memory-manager precondition violations. They signal a
// caller-side bug and are never retried; wrap with fmt.Errorf and test with errors.Is.
var (
	// ErrDuplicateSlot is returned when registering a link into an occupied slot.
	ErrDuplicateSlot = errors.New("memory slot already holds a link")
	// ErrDuplicateLinkIdentity is returned when a (remote node, link ID) pair is already held.
	ErrDuplicateLinkIdentity = errors.New("link identity already held")
	// ErrEmptySlot is returned when an operation needs a link at a slot that has none.
	ErrEmptySlot = errors.New("memory slot holds no link")
	// ErrLinkNotFound is returned by reverse lookups of links that are not held.
	ErrLinkNotFound = errors.New("link not found")
	// ErrInsufficientCapacity is returned when an exact number of free slots is unavailable.
	ErrInsufficientCapacity = errors.New("insufficient free memory slots")
	// ErrSlotOutOfRange is returned for slot indices outside [0, numPositions).
	ErrSlotOutOfRange = errors.New("memory slot out of range")
)
