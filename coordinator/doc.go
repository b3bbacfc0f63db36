// Package coordinator mediates connection attempts against the external
// messaging protocol and persists every credential/key mutation the protocol
// client reports.
//
// # State machine
//
// One attempt at a time moves through:
//
//	idle -> connecting -> {qr_pending | pairing_pending} -> open
//	                                 \-> closed | error
//
// closed and error are terminal for the attempt; a new Start resets the
// machine. Starting while an attempt is in a non-terminal state is rejected,
// not preempted.
//
// # Ordering
//
// The protocol client's events are consumed by a single goroutine and every
// persistence operation goes through a sequential write queue, so key deltas
// and credential saves reach the durable store in emission order. The queue
// is drained before the store connection is released on close or error.
package coordinator
