package sim

// EventType classifies events for deterministic ordering of simultaneous events.
type EventType string

const (
	// EventTypePairArrival delivers an entangled pair into reserved memory slots.
	EventTypePairArrival EventType = "PairArrival"
	// EventTypeOperationDone completes a physical operation (move, measure, connect).
	EventTypeOperationDone EventType = "OperationDone"
	// EventTypeProtocolWake wakes a node protocol after new data became available.
	EventTypeProtocolWake EventType = "ProtocolWake"
	// EventTypeCollect fires a delayed result collection.
	EventTypeCollect EventType = "Collect"
)

// EventTypePriority defines ordering for simultaneous events.
// Lower values are processed first. Every arrival at a given instant is
// delivered before any protocol wakes at that instant, so a wake always
// observes all simultaneous arrivals.
var EventTypePriority = map[EventType]int{
	EventTypePairArrival:   1,
	EventTypeOperationDone: 2,
	EventTypeProtocolWake:  3,
	EventTypeCollect:       4,
}

// Event represents a simulation event.
type Event interface {
	Timestamp() int64
	EventID() uint64
	Type() EventType
	Execute(e *Engine)
}

// BaseEvent provides common event fields
type BaseEvent struct {
	timestamp int64
	eventID   uint64
	eventType EventType
}

func newBaseEvent(timestamp int64, eventType EventType, eventID uint64) BaseEvent {
	return BaseEvent{
		timestamp: timestamp,
		eventID:   eventID,
		eventType: eventType,
	}
}

func (e *BaseEvent) Timestamp() int64 {
	return e.timestamp
}

func (e *BaseEvent) EventID() uint64 {
	return e.eventID
}

func (e *BaseEvent) Type() EventType {
	return e.eventType
}

// CallbackEvent runs a handler when executed. Components outside the kernel
// (memories, sources, protocols) schedule their work as callback events so the
// kernel does not depend on them.
type CallbackEvent struct {
	BaseEvent
	handler func()
}

// NewCallbackEvent creates a callback event with an explicit event ID.
// Prefer Engine.At, which assigns IDs from the engine's own counter.
func NewCallbackEvent(timestamp int64, eventType EventType, eventID uint64, handler func()) *CallbackEvent {
	return &CallbackEvent{
		BaseEvent: newBaseEvent(timestamp, eventType, eventID),
		handler:   handler,
	}
}

func (e *CallbackEvent) Execute(_ *Engine) {
	if e.handler != nil {
		e.handler()
	}
}
