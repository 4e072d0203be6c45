// Package sim provides the discrete-event kernel of the quantum switch simulator.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - event.go: Event types and the priority order of simultaneous events
//   - event_heap.go: deterministic event queue (timestamp → type priority → event ID)
//   - engine.go: the simulation context (clock, horizon, RNG) and the event loop
//
// # Architecture
//
// The kernel knows nothing about qubits or protocols; those live in sub-packages:
//   - sim/memory/: link metadata, link identifiers and the memory manager (OLEF matching,
//     buffer eviction, decoherence cutoff)
//   - sim/pauli/: single-qubit Pauli operators and their composition
//   - sim/qmem/: reference physical quantum memory (moves, measurements, GHZ-basis connect)
//   - sim/channel/: entanglement sources and inter-arrival delay models
//   - sim/protocol/: leaf and switch scheduling protocols, result collector
//   - sim/network/: scenario configuration, star-network setup and run tools
//   - sim/trace/: decision trace recording
//   - sim/analytic/: closed-form capacities for validation
//
// Execution is single-threaded and cooperative. A protocol "suspends" by issuing a
// physical operation whose completion is an OperationDone event; it resumes from that
// event's callback. No goroutines are involved.
package sim
