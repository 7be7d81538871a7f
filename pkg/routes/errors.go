package routes

import "fmt"

// UnknownRouteError is returned when no route is registered for a path.
type UnknownRouteError struct {
	Path string
}

// Error returns the error message.
func (e *UnknownRouteError) Error() string {
	return fmt.Sprintf("routes: unknown route %q", e.Path)
}

// DuplicateRouteError is returned when a path is registered twice.
type DuplicateRouteError struct {
	Path string
}

// Error returns the error message.
func (e *DuplicateRouteError) Error() string {
	return fmt.Sprintf("routes: duplicate route %q", e.Path)
}

// PathError wraps an invalid route path.
type PathError struct {
	Path string
	Err  error
}

// Error returns the error message.
func (e *PathError) Error() string {
	return fmt.Sprintf("%v: %q", e.Err, e.Path)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *PathError) Unwrap() error {
	return e.Err
}
