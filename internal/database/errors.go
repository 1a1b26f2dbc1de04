package database

import "errors"

// ErrNotFound is returned when a row does not exist or is not owned by the caller
var ErrNotFound = errors.New("not found")

// ValidationError reports an invalid field value
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
