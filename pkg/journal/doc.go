// Package journal persists an audit trail of workflow runs and their step
// outcomes in a local SQLite database. Every run records whether it was a
// dry run, and every step records both the intended action (the actor and
// its target array) and the actual outcome.
//
// The journal is an audit artifact of the surrounding framework; the
// lifecycle actors themselves keep no local state.
package journal
