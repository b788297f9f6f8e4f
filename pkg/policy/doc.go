// Package policy gates workflow steps with Rego rules evaluated through
// OPA. Built-in rules protect named arrays from termination, flag
// oversized launches, and warn about prefix-matched destructive steps;
// operators can load additional .rego files alongside them.
//
// The gate runs before any real (non-dry) workflow run: deny-severity
// violations abort the run before the first remote mutation.
package policy
