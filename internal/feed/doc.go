// Package feed is the ranking orchestrator. A Service validates requests,
// fans repository reads out in parallel behind per-dependency circuit
// breakers, hands the results to the ranking pipeline, and falls back to an
// unpersonalized popularity ranking when a dependency is unavailable.
//
// It also owns the write side of personalization: feedback signals, feed
// view counters, and interaction records.
package feed
