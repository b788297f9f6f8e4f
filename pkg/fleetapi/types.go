package fleetapi

// Config carries the credentials and endpoint for a fleet platform account.
// It is constructed once at process start (from flags or the process
// environment) and passed into the Client constructor; no package under
// pkg/ reads ambient credentials on its own.
type Config struct {
	// Token is the API refresh token for the account.
	Token string

	// Endpoint is the account-specific API endpoint.
	Endpoint string
}

// ServerArray is an opaque handle to a named server fleet managed as one
// elastic unit by the remote platform.
//
// A handle may be real (returned by Client.FindArrays) or simulated
// (fabricated by the locator during a dry run when the array does not exist
// yet). Consumers branch only on the Simulated flag and the declared
// fields, never on a concrete subtype.
type ServerArray struct {
	// ID is the opaque locator used for subsequent calls.
	ID string

	// Name is the array's display name. Not guaranteed unique unless the
	// lookup requested an exact match.
	Name string

	// State is the autoscaling state reported by the platform
	// ("enabled" or "disabled").
	State string

	// Elasticity holds the array's autoscaling parameters. May be nil on
	// handles that never carried them; simulated handles get a synthetic
	// default so downstream count arithmetic behaves sanely.
	Elasticity *ElasticityParams

	// Simulated marks a fabricated handle. Mutating calls against a
	// simulated handle must never reach the remote platform.
	Simulated bool
}

// ElasticityParams mirrors the platform's elasticity_params attribute.
type ElasticityParams struct {
	Bounds Bounds
}

// Bounds are the autoscaling instance-count bounds of an array.
type Bounds struct {
	MinCount int
	MaxCount int
}

// MinCount returns the configured minimum instance count, or 0 when the
// handle carries no elasticity parameters.
func (a *ServerArray) MinCount() int {
	if a.Elasticity == nil {
		return 0
	}
	return a.Elasticity.Bounds.MinCount
}

// Instance state values the platform reports. The set is provider-defined
// and open; these are the states the lifecycle actors branch on.
const (
	InstanceStateOperational = "operational"
	InstanceStateBooting     = "booting"
	InstanceStateTerminating = "terminating"
	InstanceStateTerminated  = "terminated"
)

// Instance is an opaque handle to one host within an array.
type Instance struct {
	ID    string
	Name  string
	State string
}

// Operational reports whether the instance is in the operational state.
func (i *Instance) Operational() bool {
	return i.State == InstanceStateOperational
}

// Task is an asynchronous unit of work submitted to the platform, such as
// "terminate all instances" or "run script on host X". Its terminal status
// is observed through Client.AwaitTask.
type Task struct {
	// ID is the opaque task locator.
	ID string

	// Name is a human label used in progress reporting.
	Name string
}

// Execution pairs an instance with the task running a script on it.
type Execution struct {
	Instance *Instance
	Task     *Task
}

// Input is a named launch input defined on an array.
type Input struct {
	Name  string
	Value string
}

// Script is a handle to an executable script or recipe in the platform's
// design library.
type Script struct {
	ID   string
	Name string
}

// Param is one flattened key/value pair in the platform's wire format.
// Nested configuration trees are encoded into Params by
// serverarray.FlattenParams using the bracket-suffix key grammar, e.g.
// server_array[elasticity_params][bounds][min_count] = "3".
type Param struct {
	Key   string
	Value string
}

// Filter is an instance list filter expression in the platform's
// field-operator-value syntax.
type Filter string

// Filters used by the lifecycle actors.
const (
	FilterStateOperational   Filter = "state==operational"
	FilterStateNotTerminated Filter = "state<>terminated"
)
