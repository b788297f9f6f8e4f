package workflow

import (
	"bytes"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Parser parses and validates workflow documents.
type Parser struct {
	schema   *schemaValidator
	validate *validator.Validate
}

// NewParser creates a document parser.
func NewParser() (*Parser, error) {
	schema, err := newSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &Parser{
		schema:   schema,
		validate: validator.New(),
	}, nil
}

// Parse decodes a workflow document from YAML or JSON (JSON is a subset of
// YAML, so one decoder covers both) and validates it against the CUE
// schema, struct tags, and the structural rules.
func (p *Parser) Parse(data []byte) (*Document, error) {
	// Schema validation runs on the generic decoding so CUE sees the
	// document exactly as written.
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}
	if err := p.schema.validate(raw); err != nil {
		return nil, err
	}

	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}

	if err := p.validate.Struct(&doc); err != nil {
		return nil, fmt.Errorf("invalid document: %w", err)
	}
	if err := doc.checkStructure(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ParseFile reads and parses the workflow document at path.
func (p *Parser) ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document %s: %w", path, err)
	}
	doc, err := p.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}
