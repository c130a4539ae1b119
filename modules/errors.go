package modules

import (
	"errors"
	"fmt"
)

var (
	// ErrModuleNotFound is matched by every [*NotFoundError].
	ErrModuleNotFound = errors.New("modules: module not found")

	// ErrInvalidSpecifier is returned for an empty require specifier, or
	// for a core module registered without a name or loader.
	ErrInvalidSpecifier = errors.New("modules: invalid specifier")
)

// NotFoundError is returned when no candidate path exists for a specifier.
type NotFoundError struct {
	// Specifier is the string passed to require.
	Specifier string
	// Tried lists the candidate paths, in the order they were checked.
	Tried []string
}

// Error uses the wording scripts expect to see.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Cannot find module '%s'", e.Specifier)
}

// Unwrap returns [ErrModuleNotFound].
func (e *NotFoundError) Unwrap() error {
	return ErrModuleNotFound
}

// CompileError is returned when a module's source could not be read or
// evaluated. It unwraps to the underlying engine error, keeping its type.
type CompileError struct {
	Err      error
	Filename string
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	return fmt.Sprintf("modules: loading %s: %v", e.Filename, e.Err)
}

// Unwrap returns the engine error.
func (e *CompileError) Unwrap() error {
	return e.Err
}
