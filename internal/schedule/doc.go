// Package schedule holds the feeding schedule: a sorted, duplicate-free
// list of "HH:MM" times, a file-backed store, and the pure tick evaluator
// that decides when a feed fires.
//
// The evaluator is stateless: callers pass the previous marker in and carry
// the returned marker forward. Matching granularity is one minute, so any
// poll interval <= 60s neither misses nor duplicates a firing.
package schedule
