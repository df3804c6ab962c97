// Package narrative turns received channel events into display events: it deduplicates
// redeliveries, asks a generator for alert text, persists it and hands the result to the
// broadcast queue with a display duration derived from the text length.
package narrative
