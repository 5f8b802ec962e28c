package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrValidation       = errors.New("validation error")
	ErrInputFormat      = errors.New("invalid input format")
	ErrSessionExpired   = errors.New("remote session expired or not initialized")
	ErrRemoteSubmission = errors.New("remote submission failed")
	ErrInvalidBatch     = errors.New("invalid batch request")
)

// ValidationError reports a malformed task input. The task is not submitted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InputFormatError is fatal for the whole batch.
type InputFormatError struct {
	Missing []string
	Err     error
}

func (e *InputFormatError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s: missing columns %s", ErrInputFormat, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("%s: %v", ErrInputFormat, e.Err)
}

func (e *InputFormatError) Is(target error) bool { return target == ErrInputFormat }

func (e *InputFormatError) Unwrap() error { return e.Err }

type RemoteSubmissionError struct {
	StatusCode int
	Message    string
}

func (e *RemoteSubmissionError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", ErrRemoteSubmission, e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s", ErrRemoteSubmission, e.StatusCode, e.Message)
}

func (e *RemoteSubmissionError) Unwrap() error { return ErrRemoteSubmission }

func quote(s string) string {
	return strconv.Quote(s)
}
