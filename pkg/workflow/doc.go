// Package workflow parses and runs fleetwright workflow documents: YAML or
// JSON files describing an ordered list of steps, each invoking one
// lifecycle actor with its options. Steps run in document order; a
// parallel group runs its children concurrently and joins before the next
// step starts.
//
// Documents are validated three ways before anything runs: a CUE schema
// checks the document shape, struct validation checks required fields, and
// every actor's constructor validates its own options. Optional `when`
// expressions (Starlark) skip steps at run time, and `warn_on_failure`
// downgrades a step failure to a logged warning.
package workflow
