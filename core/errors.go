package core

import (
	"errors"
	"fmt"
)

// ErrModelNotConfigured is returned when an agent is executed without a
// model transport. It is the only error category allowed to escape a run to
// the original caller; every per-call failure inside a run is contained and
// fed back to the model instead.
var ErrModelNotConfigured = errors.New("model not configured")

// ValidationError reports capability arguments that violate the declared
// input schema. Execution rejects before any work starts and before a start
// event is emitted.
type ValidationError struct {
	Field   string `json:"field"`           // field that failed validation
	Value   any    `json:"value,omitempty"` // value that was provided
	Message string `json:"message"`         // human-readable explanation
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments: field '%s': %s", e.Field, e.Message)
}
