// Package progress carries session lifecycle and unit completion events from
// the runners to pluggable sinks. Emitting never blocks: events are buffered,
// batched on a background goroutine and fanned out to every sink with a
// per-sink timeout.
package progress
