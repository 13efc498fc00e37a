package errors

import (
	"fmt"
)

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// IOError is a failure to access local files.
type IOError struct {
	Path string
	Err  error
}

func (err IOError) Error() string {
	return fmt.Sprintf("io %q: %s", err.Path, err.Err)
}

func (err IOError) Unwrap() error {
	return err.Err
}

// FormatError represents a structurally corrupt manifest or settings file.
// Line is 1-indexed, and zero when the error isn't tied to a line.
type FormatError struct {
	Path   string
	Line   int
	Reason string
}

func (err FormatError) Error() string {
	if err.Line == 0 {
		return fmt.Sprintf("malformed %q: %s", err.Path, err.Reason)
	}
	return fmt.Sprintf("malformed %q (line %d): %s", err.Path, err.Line, err.Reason)
}

// IntegrityError is returned when a local file no longer matches the hash
// recorded for it in its manifest.
type IntegrityError struct {
	Path     string
	Expected string
	Actual   string
}

func (err IntegrityError) Error() string {
	return fmt.Sprintf("%q changed since it was published: expected hash %s, got %s",
		err.Path, err.Expected, err.Actual)
}

// BackendError is a transport, authentication, or remote failure.
type BackendError struct {
	Op   string
	Path string
	Err  error
}

func (err BackendError) Error() string {
	if err.Path == "" {
		return fmt.Sprintf("backend %s: %s", err.Op, err.Err)
	}
	return fmt.Sprintf("backend %s %q: %s", err.Op, err.Path, err.Err)
}

func (err BackendError) Unwrap() error {
	return err.Err
}

// ValidationError represents invalid configuration or arguments.
type ValidationError struct {
	Field  string
	Reason string
}

func (err ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", err.Field, err.Reason)
}
