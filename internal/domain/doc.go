// Package domain defines the core domain types and interfaces.
//
// Event is the closed union of channel activities the alert pipeline understands. Everything
// that consumes an Event switches over the six variants and rejects anything else with
// ErrUnsupportedEventKind. The collaborator interfaces (generation, persistence, dedup) live here
// so producers and consumers do not import each other.
package domain
