// Package fleetapi defines the boundary to the remote fleet platform: the
// resource types the platform hands back (server arrays, instances, tasks)
// and the Client interface the lifecycle actors consume.
//
// The package deliberately contains no transport. Authentication, retries,
// and pagination belong to whichever Client implementation is wired in at
// process start; everything in pkg/serverarray is written against the
// interface alone so that tests and dry runs can substitute
// fleetapitest.Fake.
package fleetapi
