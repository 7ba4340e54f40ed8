package specloader

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validators holds the two precompiled JSON-Schema validators for one
// operation: the input validator over {path,query,body} and a response
// validator keyed by status code string.
type Validators struct {
	Input     *jsonschema.Schema
	Responses map[string]*jsonschema.Schema
}

// Draft04Compiler returns a jsonschema compiler configured for draft-04
// semantics, matching the subset of OpenAPI 3.0's embedded JSON Schema this
// framework validates against.
func Draft04Compiler() *jsonschema.Compiler {
	c := jsonschema.NewCompiler()
	c.DefaultDraft(jsonschema.Draft4)
	return c
}

// BuildValidators compiles the input validator and per-status response
// validators for spec.
func BuildValidators(spec *OperationSpec) (*Validators, error) {
	compiler := Draft04Compiler()

	input, err := compileSchema(compiler, spec.OperationID+"#/input", spec.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("compiling input schema: %w", err)
	}

	responses := make(map[string]*jsonschema.Schema, len(spec.ResponseSchemas))
	for status, schema := range spec.ResponseSchemas {
		compiled, err := compileSchema(compiler, fmt.Sprintf("%s#/response/%s", spec.OperationID, status), schema)
		if err != nil {
			return nil, fmt.Errorf("compiling response schema for status %s: %w", status, err)
		}
		responses[status] = compiled
	}

	return &Validators{Input: input, Responses: responses}, nil
}

func compileSchema(compiler *jsonschema.Compiler, url string, schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	if err := compiler.AddResource(url, doc); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}

// ValidateInput runs the input validator against the assembled
// {path,query,body} document, returning a FieldErrors-shaped error on
// mismatch (see laferrors.FieldErrors).
func (v *Validators) ValidateInput(doc map[string]any) error {
	if v.Input == nil {
		return nil
	}
	if err := v.Input.Validate(doc); err != nil {
		return toFieldErrors(err)
	}
	return nil
}

// ValidateResponse runs the response validator for the given status, if one
// was declared. A missing validator is not an error: best-effort per §4.C.
func (v *Validators) ValidateResponse(status string, payload any) error {
	sch, ok := v.Responses[status]
	if !ok {
		return nil
	}
	if err := sch.Validate(payload); err != nil {
		return toFieldErrors(err)
	}
	return nil
}
