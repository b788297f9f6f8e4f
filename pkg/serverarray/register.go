package serverarray

import "github.com/fleetwright/fleetwright/pkg/actors"

// Register adds the server-array lifecycle actors to the registry under
// their workflow names.
func Register(reg *actors.Registry) error {
	factories := map[string]actors.Factory{
		"serverarray.clone":     NewClone,
		"serverarray.update":    NewUpdate,
		"serverarray.terminate": NewTerminate,
		"serverarray.destroy":   NewDestroy,
		"serverarray.launch":    NewLaunch,
		"serverarray.execute":   NewExecute,
	}
	for name, factory := range factories {
		if err := reg.Register(name, factory); err != nil {
			return err
		}
	}
	return nil
}
