package typemap

import (
	"fmt"
	"reflect"
	"strings"
)

// supportedShapes is the enumerated list quoted by shape errors.
var supportedShapes = []string{
	"string",
	"bool",
	"integer and float kinds",
	"[]byte",
	"slices of a supported shape",
	"map[string]V of a supported shape",
	"map[K]struct{} sets with string or numeric keys",
	"scalar types with a registered converter",
}

// UnsupportedShapeError reports a shape the mapping subsystem cannot
// represent on the wire. It is raised at model-build time, never during
// query execution.
type UnsupportedShapeError struct {
	Shape reflect.Type
}

func (e *UnsupportedShapeError) Error() string {
	return fmt.Sprintf("typemap: unsupported shape %s; supported shapes are: %s",
		e.Shape, strings.Join(supportedShapes, ", "))
}

// MissingConverterError reports a non-primitive scalar shape with no
// registered converter pair.
type MissingConverterError struct {
	Shape reflect.Type
}

func (e *MissingConverterError) Error() string {
	return fmt.Sprintf("typemap: no converter registered for scalar shape %s", e.Shape)
}

// tagError describes a wire tag mismatch found while decoding.
func tagError(want WireType, got string) error {
	return fmt.Errorf("unexpected wire tag %s (want %s)", got, want)
}
