package engine

import (
	"errors"
	"fmt"

	"github.com/opsdeck/deskflow/internal/workflow"
)

// UnknownActionError reports an action type outside the dispatch table.
//
// The executor converts it into a per-action failure like any other
// action error - it exists as a type so tooling (validate, tests) can
// distinguish a configuration mistake from a storage failure.
type UnknownActionError struct {
	Type workflow.ActionType
}

// Error implements the error interface.
func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action type: %s", e.Type)
}

// IsUnknownAction returns true if the error is an unknown-action error.
// Uses errors.As to handle wrapped errors.
func IsUnknownAction(err error) bool {
	var ua *UnknownActionError
	return errors.As(err, &ua)
}
