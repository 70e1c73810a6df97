package session

import "errors"

// Precondition violations are rejected locally with a typed error and never
// silently ignored.
var (
	ErrTerminal          = errors.New("session is in a terminal phase")
	ErrInvalidTransition = errors.New("transition not allowed from current phase")
	ErrCameraCheckNeeded = errors.New("camera access check has not been attempted")
	ErrCameraRequired    = errors.New("camera access is required by this test")
	ErrIdentityRequired  = errors.New("identity artifact is missing")
	ErrRulesNotAccepted  = errors.New("exam rules have not been accepted")
	ErrNotInProgress     = errors.New("session is not in the exam phase")
	ErrUnknownQuestion   = errors.New("question does not belong to this test")
	ErrBackNotAllowed    = errors.New("back navigation is not allowed from this phase")
	ErrAlreadySubmitted  = errors.New("session has already been submitted")
	ErrUnknownIntegrity  = errors.New("unknown integrity event kind")
)
