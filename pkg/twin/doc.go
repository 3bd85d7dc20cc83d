// Package twin keeps the device twin in sync with the agent's local state.
//
// A Twin owns the single connection to the hub and serializes every operation
// on it through one event loop: termination, the supervisor heartbeat,
// connection state changes, desired property updates, direct method
// invocations and the reported property queue. Handlers run to completion
// before the loop waits for the next event, so loop state needs no locking.
//
// Reported properties are only ever written by the loop. Other producers hand
// their merge-patches to the Reporter, a bounded FIFO that pauses producers
// while it is full.
package twin
