package serverarray

import (
	"fmt"
	"sort"

	"github.com/fleetwright/fleetwright/pkg/actors"
	"github.com/fleetwright/fleetwright/pkg/fleetapi"
)

// FlattenParams converts a nested configuration tree into the flat
// bracket-keyed parameter list the fleet platform expects. A mapping value
// at key k under path p recurses with path p[k]; a sequence element
// appends a literal [] segment; a scalar emits one parameter with the
// accumulated path as its key and the stringified scalar as its value.
//
//	FlattenParams("server_array", map[string]any{
//		"name": "web",
//		"elasticity_params": map[string]any{"bounds": map[string]any{"min_count": 3}},
//	})
//
// yields server_array[name]=web and
// server_array[elasticity_params][bounds][min_count]=3.
//
// Sibling keys are emitted in sorted order so that the output, and with
// it the dry-run log narrative, is deterministic for a given input.
// Pure function: no side effects, no I/O.
func FlattenParams(prefix string, tree map[string]any) ([]fleetapi.Param, error) {
	return flatten(prefix, tree)
}

func flatten(path string, value any) ([]fleetapi.Param, error) {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var params []fleetapi.Param
		for _, k := range keys {
			child := k
			if path != "" {
				child = path + "[" + k + "]"
			}
			sub, err := flatten(child, v[k])
			if err != nil {
				return nil, err
			}
			params = append(params, sub...)
		}
		return params, nil

	case map[any]any:
		// YAML documents with non-string keys decode to this shape;
		// the platform's key grammar has no representation for them.
		return nil, actors.NewConfigError(
			fmt.Sprintf("parameter mapping at %q has non-string keys", path), nil)

	case []any:
		var params []fleetapi.Param
		for _, item := range v {
			sub, err := flatten(path+"[]", item)
			if err != nil {
				return nil, err
			}
			params = append(params, sub...)
		}
		return params, nil

	case nil:
		return []fleetapi.Param{{Key: path, Value: ""}}, nil

	default:
		return []fleetapi.Param{{Key: path, Value: fmt.Sprintf("%v", v)}}, nil
	}
}
