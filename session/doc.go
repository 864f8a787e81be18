// Package session owns broker connections and multiplexes script operations
// over them: subscriptions, reply handlers, request/reply, publish and
// JetStream durable pulls.
//
// A Session keeps one physical connection per normalized server identity and
// shares it across every context addressed to that identity. Subscription and
// reply-handler contexts are registered under caller-supplied keys (typically
// document positions) and each runs its own consume goroutine, appending log
// records to the caller's sink in message-arrival order. Reference counts per
// (connection, subject) pair back the aggregate count queries without
// exposing internal keys.
//
// Failure handling follows the operation shape: one-shot request/publish
// propagate transport errors to the caller, long-running consume loops and
// one-shot pulls convert failures into log records, and configuration
// mistakes (JetStream on a capability-less connection, missing stream or
// durable) are raised synchronously. Connections are only closed by Reset and
// Reconnect, and only after their dependent contexts are torn down.
package session
