package policy

// Severity grades a policy violation.
type Severity string

const (
	// SeverityWarning surfaces in the run log but does not block.
	SeverityWarning Severity = "warning"

	// SeverityDeny blocks the run before any remote mutation.
	SeverityDeny Severity = "deny"
)

// Rule is one Rego policy. The module must define a `deny` set whose
// members are objects with "message" and "severity" fields.
type Rule struct {
	// Name identifies the rule in reports.
	Name string

	// Description says what the rule protects against.
	Description string

	// Enabled rules are evaluated; disabled ones are kept but skipped.
	Enabled bool

	// Rego is the policy module source.
	Rego string
}

// StepInput is the evaluation input for one workflow step.
type StepInput struct {
	// Actor is the step's actor type name, e.g. "serverarray.terminate".
	Actor string `json:"actor"`

	// Desc is the step description.
	Desc string `json:"desc"`

	// Options are the step's raw actor options.
	Options map[string]any `json:"options"`

	// Protected lists array names that destructive steps may not target.
	Protected []string `json:"protected"`

	// DryRun marks the run mode the step will execute under.
	DryRun bool `json:"dry_run"`
}

// Violation is one rule violation found during evaluation.
type Violation struct {
	// Rule is the name of the violated rule.
	Rule string

	// Message is the human-readable violation message.
	Message string

	// Severity grades the violation.
	Severity Severity
}

// Result is the outcome of evaluating every enabled rule against a step.
type Result struct {
	// Allowed is false when any violation carries deny severity.
	Allowed bool

	// Violations holds every violation found, warnings included.
	Violations []Violation
}

// Warnings returns the warning-severity violations.
func (r *Result) Warnings() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == SeverityWarning {
			out = append(out, v)
		}
	}
	return out
}

// Denials returns the deny-severity violations.
func (r *Result) Denials() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == SeverityDeny {
			out = append(out, v)
		}
	}
	return out
}
