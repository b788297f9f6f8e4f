// Package serverarray implements the lifecycle actors for fleet platform
// server arrays: Clone, Update, Terminate, Destroy, Launch, and Execute.
//
// Every actor follows the same conventions: construction decodes and
// validates its options and fails fast; Run locates target arrays by name
// (exact or prefix match), fans work out across every match concurrently,
// and drives convergence polls against the platform. In dry-run mode the
// locator fabricates a simulated handle for arrays that do not exist yet,
// and the actors walk their full workflow against it without issuing a
// single mutating call, producing a log narrative identical in shape to a
// real run.
package serverarray
