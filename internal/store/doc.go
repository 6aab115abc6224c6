// Package store defines interfaces for persistence dependencies (audit
// sessions and per-unit results). Implementations live in other packages;
// this package must not import database drivers or concrete clients.
package store
