package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeUnauthorized        = "unauthorized"
	ErrCodeNotAuthenticated    = "not_authenticated"
	ErrCodeInvalidStatus       = "invalid_status"
	ErrCodeReplyTargetNotFound = "reply_target_not_found"
	ErrCodePersistenceFailure  = "persistence_failure"
	ErrCodeBadRequest          = "bad_request"
	ErrCodeRateLimited         = "rate_limited"
)

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrBadRequest       = errors.New("bad request")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
