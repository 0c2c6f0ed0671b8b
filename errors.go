package walltime

import (
	"fmt"
	"io/fs"
)

// A DescriptorNotFoundError is returned when an identifier resolves to
// neither a local file nor a bundled resource.
type DescriptorNotFoundError struct {
	Kind ResourceKind
	ID   string
}

func (e *DescriptorNotFoundError) Error() string {
	return fmt.Sprintf("%s descriptor %q not found: not a local file "+
		"and not a bundled resource", e.Kind, e.ID)
}

// Unwrap lets errors.Is(err, fs.ErrNotExist) match a missing descriptor.
func (e *DescriptorNotFoundError) Unwrap() error {
	return fs.ErrNotExist
}

// A DescriptorFormatError is returned when a parsed descriptor misses a
// required key or holds a malformed value.
type DescriptorFormatError struct {
	ID  string
	Key string
	Err error
}

func (e *DescriptorFormatError) Error() string {
	msg := "invalid descriptor"
	if e.ID != "" {
		msg += fmt.Sprintf(" %q", e.ID)
	}

	if e.Key != "" {
		msg += fmt.Sprintf(", key %q", e.Key)
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *DescriptorFormatError) Unwrap() error {
	return e.Err
}

// An InvalidLayerParamsError is returned when a layer is appended with a
// missing or out-of-range type-specific parameter.
type InvalidLayerParamsError struct {
	Layer  string
	Param  string
	Reason string
}

func (e *InvalidLayerParamsError) Error() string {
	return fmt.Sprintf("layer %q: invalid parameter %q: %s",
		e.Layer, e.Param, e.Reason)
}

// An UnknownLayerTypeError is returned for an unrecognized layer type name.
type UnknownLayerTypeError struct {
	Type string
}

func (e *UnknownLayerTypeError) Error() string {
	return fmt.Sprintf("unknown layer type %q", e.Type)
}

// An InvalidInputError is returned when an architecture is created with a
// negative input dimension or size.
type InvalidInputError struct {
	Field string
	Value int
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("input %s must be non-negative, got %d",
		e.Field, e.Value)
}
