// Package supervisor runs the long-lived components under a suture tree so that a crashed loop
// is restarted with backoff instead of taking the process down.
//
// The tree has three layers: ingestion (EventSub client, narrative pipeline), delivery
// (scheduler, overlay server) and api (admin server).
package supervisor
