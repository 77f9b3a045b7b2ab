// Package hub implements the tick fan-out broadcast.
//
// Every published tick is delivered to all registered subscriber callbacks.
// Delivery is at-most-once, best-effort, and unordered across subscribers;
// there is no buffering and no replay. A panicking subscriber is isolated:
// it is logged and the remaining subscribers still receive the tick.
package hub
