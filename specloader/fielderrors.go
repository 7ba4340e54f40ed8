package specloader

import (
	"errors"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/GoCodeAlone/laf/laferrors"
)

// toFieldErrors flattens a jsonschema validation failure into the
// framework's laferrors.FieldErrors shape, preserving the instance path to
// each offending field.
func toFieldErrors(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return laferrors.FieldErrors{{Path: "", Message: err.Error()}}
	}

	var out laferrors.FieldErrors
	out = append(out, leafErrors(ve)...)
	if len(out) == 0 {
		out = append(out, &laferrors.FieldError{Path: "", Message: err.Error()})
	}
	return out
}

func leafErrors(ve *jsonschema.ValidationError) []*laferrors.FieldError {
	if len(ve.Causes) == 0 {
		return []*laferrors.FieldError{{
			Path:    instancePath(ve),
			Message: ve.Error(),
		}}
	}
	var out []*laferrors.FieldError
	for _, cause := range ve.Causes {
		out = append(out, leafErrors(cause)...)
	}
	return out
}

func instancePath(ve *jsonschema.ValidationError) string {
	loc := ve.InstanceLocation
	if len(loc) == 0 {
		return ""
	}
	path := ""
	for _, tok := range loc {
		path += "/" + tok
	}
	return path
}
