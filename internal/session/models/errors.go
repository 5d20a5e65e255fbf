package models

import (
	"fmt"

	id "idserver/pkg/domain"
	dErrors "idserver/pkg/domain-errors"
)

// StateError reports a transition attempted from the wrong status.
type StateError struct {
	SessionID id.SessionID
	Current   Status
	Expected  []Status
}

func (e *StateError) Error() string {
	if len(e.Expected) == 1 {
		return fmt.Sprintf("Session status is '%s'. Expected '%s'", e.Current, e.Expected[0])
	}
	return fmt.Sprintf("Session status is '%s'. Expected one of %v", e.Current, e.Expected)
}

func (e *StateError) ErrorCode() dErrors.Code { return dErrors.CodeInvalidState }

func stateError(s *Session, expected ...Status) error {
	return &StateError{SessionID: s.ID, Current: s.Status, Expected: expected}
}
