// sim/engine.go
package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Engine is the simulation context shared by every component of a run: it owns
// the clock, the event queue and the partitioned RNG. Nothing in the simulator
// reads time or randomness from package-level state.
//
// Time is measured in ticks; one tick is one nanosecond of simulated time.
type Engine struct {
	Clock   int64
	Horizon int64

	queue       *EventHeap
	rng         *PartitionedRNG
	nextEventID uint64 // per-engine counter for deterministic event ordering
	executed    int
}

// NewEngine creates an engine that runs until horizon (inclusive).
func NewEngine(horizon int64, key SimulationKey) *Engine {
	return &Engine{
		Clock:   0,
		Horizon: horizon,
		queue:   NewEventHeap(),
		rng:     NewPartitionedRNG(key),
	}
}

// Now returns the current simulation time in ticks.
func (e *Engine) Now() int64 {
	return e.Clock
}

// RNG returns the partitioned RNG of this run.
func (e *Engine) RNG() *PartitionedRNG {
	return e.rng
}

// Pending returns the number of scheduled events.
func (e *Engine) Pending() int {
	return e.queue.Len()
}

// Executed returns the number of events executed since the last reset.
func (e *Engine) Executed() int {
	return e.executed
}

func (e *Engine) newEventID() uint64 {
	e.nextEventID++
	return e.nextEventID
}

// Schedule adds an event to the event queue.
func (e *Engine) Schedule(ev Event) {
	e.queue.Schedule(ev)
}

// At schedules handler to run at the given timestamp.
func (e *Engine) At(timestamp int64, eventType EventType, handler func()) Event {
	if timestamp < e.Clock {
		panic(fmt.Sprintf("Engine: cannot schedule %s in the past: %d < %d", eventType, timestamp, e.Clock))
	}
	ev := NewCallbackEvent(timestamp, eventType, e.newEventID(), handler)
	e.Schedule(ev)
	return ev
}

// After schedules handler to run delay ticks from now.
func (e *Engine) After(delay int64, eventType EventType, handler func()) Event {
	if delay < 0 {
		panic(fmt.Sprintf("Engine: negative delay %d for %s", delay, eventType))
	}
	return e.At(e.Clock+delay, eventType, handler)
}

// Run executes events until the queue drains or the next event lies beyond the
// horizon. Events scheduled exactly at the horizon are executed.
// Returns the simulated duration, min(clock, horizon).
func (e *Engine) Run() int64 {
	for e.queue.Len() > 0 {
		next := e.queue.Peek()
		if next.Timestamp() > e.Horizon {
			break
		}
		ev := e.queue.PopNext()

		if ev.Timestamp() < e.Clock {
			panic(fmt.Sprintf("Clock went backwards: %d < %d", ev.Timestamp(), e.Clock))
		}
		e.Clock = ev.Timestamp()
		logrus.Tracef("[tick %012d] Executing %s #%d", e.Clock, ev.Type(), ev.EventID())

		ev.Execute(e)
		e.executed++
	}
	logrus.Debugf("[tick %012d] Simulation ended after %d events", e.Clock, e.executed)
	return min(e.Clock, e.Horizon)
}

// Reset clears the queue, rewinds the clock and reseeds the RNG.
func (e *Engine) Reset(key SimulationKey) {
	e.queue.Clear()
	e.Clock = 0
	e.nextEventID = 0
	e.executed = 0
	e.rng = NewPartitionedRNG(key)
}
