// Package sinks contains progress sinks that log events and export them as
// Prometheus metrics.
package sinks
