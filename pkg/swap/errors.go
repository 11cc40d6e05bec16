package swap

import (
	"errors"
	"fmt"
)

// Error codes surfaced to callers.
const (
	CodeInvalidFormat = "INVALID_FORMAT"
	CodeEmptyResponse = "EMPTY_RESPONSE"
	CodeCircuitOpen   = "CIRCUIT_OPEN"
	CodeAuthFailed    = "AUTH_FAILED"
	CodeUpstream      = "UPSTREAM_ERROR"
)

// Error is a coded settlement client error.
type Error struct {
	Code    string
	Message string
	Status  int // HTTP status when the upstream answered
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("swap: %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("swap: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrCode extracts the code of a settlement error, or "".
func ErrCode(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
