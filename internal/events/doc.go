// Package events owns triggering and de-triggering of plug events. A
// manager drains a FIFO trigger queue on its own goroutine, fanning each
// trigger out to the subscribed alert handlers, and a second goroutine
// decays triggered events whose half-life expired back to idle.
package events
