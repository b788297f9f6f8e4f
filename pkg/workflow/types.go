package workflow

import "fmt"

// Document is one parsed workflow file.
type Document struct {
	// Name identifies the workflow in logs and the journal.
	Name string `yaml:"name" validate:"required"`

	// Vars are document-level variables exposed to `when` expressions.
	Vars map[string]any `yaml:"vars"`

	// Steps run in order.
	Steps []Step `yaml:"steps" validate:"required,min=1"`
}

// Step is one workflow step: either an actor invocation or a parallel
// group, never both.
type Step struct {
	// Desc is the human-readable step description.
	Desc string `yaml:"desc"`

	// Actor is the actor type name, e.g. "serverarray.launch".
	Actor string `yaml:"actor"`

	// Options are the raw options handed to the actor's factory.
	Options map[string]any `yaml:"options"`

	// When is an optional Starlark expression; a false result skips the
	// step.
	When string `yaml:"when"`

	// WarnOnFailure downgrades this step's failure to a logged warning
	// so the run continues.
	WarnOnFailure bool `yaml:"warn_on_failure"`

	// Parallel runs these child steps concurrently and joins on all of
	// them before the run moves on.
	Parallel []Step `yaml:"parallel"`
}

// IsGroup reports whether the step is a parallel group.
func (s *Step) IsGroup() bool {
	return len(s.Parallel) > 0
}

// Label returns the step's description, falling back to its actor name.
func (s *Step) Label() string {
	if s.Desc != "" {
		return s.Desc
	}
	if s.IsGroup() {
		return "parallel group"
	}
	return s.Actor
}

// checkStructure enforces actor-xor-parallel on every step, recursively.
func (d *Document) checkStructure() error {
	return checkSteps(d.Steps, "steps")
}

func checkSteps(steps []Step, path string) error {
	for i, step := range steps {
		at := fmt.Sprintf("%s[%d]", path, i)
		switch {
		case step.Actor == "" && !step.IsGroup():
			return fmt.Errorf("%s: step needs an actor or a parallel group", at)
		case step.Actor != "" && step.IsGroup():
			return fmt.Errorf("%s: step cannot have both an actor and a parallel group", at)
		case step.IsGroup() && len(step.Options) > 0:
			return fmt.Errorf("%s: options belong to actor steps, not groups", at)
		}
		if step.IsGroup() {
			if err := checkSteps(step.Parallel, at+".parallel"); err != nil {
				return err
			}
		}
	}
	return nil
}
