package event

import (
	"errors"
	"fmt"
)

// SchemaError reports a structurally invalid event or payload. Messages
// failing with a SchemaError are fatal for that delivery: they belong on the
// dead-letter queue, never in a blind requeue loop.
type SchemaError struct {
	EventType string
	Err       error
}

func (e *SchemaError) Error() string {
	if e.EventType == "" {
		return fmt.Sprintf("invalid event: %v", e.Err)
	}
	return fmt.Sprintf("invalid %s event: %v", e.EventType, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// IsSchemaError reports whether err is (or wraps) a SchemaError.
func IsSchemaError(err error) bool {
	var schemaErr *SchemaError
	return errors.As(err, &schemaErr)
}
