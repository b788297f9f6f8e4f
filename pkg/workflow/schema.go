package workflow

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// documentSchema is the CUE shape every workflow document must satisfy.
// Definitions are closed, so unknown fields are rejected at the schema
// layer before the stricter struct decode runs.
const documentSchema = `
#Step: {
	desc?:            string
	actor?:           string & =~"^[a-z0-9]+\\.[a-z0-9_]+$"
	options?:         {...}
	when?:            string
	warn_on_failure?: bool
	parallel?:        [...#Step]
}

#Document: {
	name:   string & !=""
	vars?:  {...}
	steps:  [...#Step] & [_, ...]
}
`

// schemaValidator validates decoded documents against the CUE schema.
type schemaValidator struct {
	schema cue.Value
}

func newSchemaValidator() (*schemaValidator, error) {
	ctx := cuecontext.New()
	val := ctx.CompileString(documentSchema)
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("compiling workflow schema: %w", err)
	}
	schema := val.LookupPath(cue.ParsePath("#Document"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("resolving workflow schema: %w", err)
	}
	return &schemaValidator{schema: schema}, nil
}

// validate unifies raw document data with the schema and reports any
// mismatch.
func (v *schemaValidator) validate(raw any) error {
	data := v.schema.Context().Encode(raw)
	if err := data.Err(); err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	unified := v.schema.Unify(data)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("document does not match the workflow schema: %w", err)
	}
	return nil
}
