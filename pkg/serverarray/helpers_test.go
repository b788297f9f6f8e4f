package serverarray

import (
	"time"

	"github.com/fleetwright/fleetwright/pkg/actors"
	"github.com/fleetwright/fleetwright/pkg/fleetapi"
	"github.com/fleetwright/fleetwright/pkg/fleetapi/fleetapitest"
	"github.com/fleetwright/fleetwright/pkg/telemetry"
)

func newTestRuntime(fake *fleetapitest.Fake, dry bool) *actors.Runtime {
	return &actors.Runtime{
		Client:       fake,
		Log:          telemetry.NewTestLogger(),
		DryRun:       dry,
		PollInterval: time.Millisecond,
	}
}

func seedArray(name string, minCount int) *fleetapi.ServerArray {
	return &fleetapi.ServerArray{
		ID:    name + "-id",
		Name:  name,
		State: "enabled",
		Elasticity: &fleetapi.ElasticityParams{
			Bounds: fleetapi.Bounds{MinCount: minCount, MaxCount: minCount * 2},
		},
	}
}

func seedInstances(arrayID string, states ...string) map[string][]*fleetapi.Instance {
	instances := make([]*fleetapi.Instance, len(states))
	for i, state := range states {
		instances[i] = &fleetapi.Instance{
			ID:    arrayID + "-i" + string(rune('0'+i)),
			Name:  arrayID + "-i" + string(rune('0'+i)),
			State: state,
		}
	}
	return map[string][]*fleetapi.Instance{arrayID: instances}
}

func callCount(fake *fleetapitest.Fake, method string) int {
	n := 0
	for _, name := range fake.CallNames() {
		if name == method {
			n++
		}
	}
	return n
}
