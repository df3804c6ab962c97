// Package broadcast implements the overlay hub.
//
// QueueStore buffers display events (pending FIFO, bounded recent history, pause flag). Scheduler
// pops one event at a time and fans it out through the Registry: show, hold for the event's
// duration, clear, pause. Acceptor upgrades overlay connections and runs a per-connection writer
// goroutine so socket writes never happen under the registry lock; slow or failed clients are
// evicted after the iteration that observed the failure.
package broadcast
