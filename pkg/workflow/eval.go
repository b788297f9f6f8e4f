package workflow

import (
	"context"
	"fmt"
	"time"

	"go.starlark.net/starlark"
)

// defaultEvalTimeout bounds a single `when` expression evaluation. The
// expressions are short predicates; anything slower is a runaway.
const defaultEvalTimeout = 5 * time.Second

// condEvaluator evaluates `when` expressions with Starlark. The expression
// sees the document's vars by name plus a dry_run boolean, and must yield a
// boolean.
type condEvaluator struct {
	timeout time.Duration
}

func newCondEvaluator(timeout time.Duration) *condEvaluator {
	if timeout == 0 {
		timeout = defaultEvalTimeout
	}
	return &condEvaluator{timeout: timeout}
}

// Eval evaluates expr and returns its boolean result.
func (e *condEvaluator) Eval(ctx context.Context, expr string, vars map[string]any, dryRun bool) (bool, error) {
	evalCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type outcome struct {
		value bool
		err   error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := e.evalSync(expr, vars, dryRun)
		ch <- outcome{value: v, err: err}
	}()

	select {
	case <-evalCtx.Done():
		return false, fmt.Errorf("condition %q timed out after %v", expr, e.timeout)
	case out := <-ch:
		return out.value, out.err
	}
}

func (e *condEvaluator) evalSync(expr string, vars map[string]any, dryRun bool) (bool, error) {
	thread := &starlark.Thread{
		Name:  "when",
		Print: func(_ *starlark.Thread, _ string) {},
	}

	predeclared := starlark.StringDict{
		"dry_run": starlark.Bool(dryRun),
	}
	for key, val := range vars {
		sv, err := toStarlarkValue(val)
		if err != nil {
			return false, fmt.Errorf("converting var %s: %w", key, err)
		}
		predeclared[key] = sv
	}

	value, err := starlark.Eval(thread, "when.star", expr, predeclared)
	if err != nil {
		return false, fmt.Errorf("evaluating condition %q: %w", expr, err)
	}

	b, ok := value.(starlark.Bool)
	if !ok {
		return false, fmt.Errorf("condition %q yields %s, want bool", expr, value.Type())
	}
	return bool(b), nil
}

func toStarlarkValue(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}
	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []any:
		items := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			items[i] = sv
		}
		return starlark.NewList(items), nil
	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}
