// Package storage persists what the bot learns across runs: the
// applications it submitted, a short history of runs and the saved
// (non-secret) preferences used to prefill the next run.
//
// Two drivers are available:
//   - "sqlite": a single database file (modernc.org/sqlite, no cgo)
//   - "file": JSON lines plus a prefs JSON document
package storage
