package services

import "errors"

type ErrorCode string

const (
	ErrorInvalid      ErrorCode = "invalid"
	ErrorForbidden    ErrorCode = "forbidden"
	ErrorNotFound     ErrorCode = "not_found"
	ErrorConflict     ErrorCode = "conflict"
	ErrorUnauthorized ErrorCode = "unauthorized"
)

type ServiceError struct {
	Code    ErrorCode
	Message string
}

func (e *ServiceError) Error() string { return e.Message }

func NewInvalidError(msg string) error   { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewForbiddenError(msg string) error { return &ServiceError{Code: ErrorForbidden, Message: msg} }
func NewNotFoundError(msg string) error  { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewConflictError(msg string) error  { return &ServiceError{Code: ErrorConflict, Message: msg} }
func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

var (
	// ErrInvalidEmail is returned when a recipient address fails format validation.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrDuplicateRecipient is returned when the quiz already has a session for the email.
	ErrDuplicateRecipient = errors.New("email already registered for this quiz")
	// ErrIllegalTransition flags a lifecycle trigger invoked from the wrong status.
	ErrIllegalTransition = errors.New("illegal session status transition")
	// ErrIncompleteSubmission is returned by Complete when required questions lack answers.
	ErrIncompleteSubmission = errors.New("submission does not answer every required question")
	// ErrSessionNotActive is returned when an answer arrives for a session that is not in progress.
	ErrSessionNotActive = errors.New("session is not in progress")
	// ErrSessionClosed is returned when an answer arrives after the session completed.
	ErrSessionClosed = errors.New("session is completed and its submission is frozen")
)
