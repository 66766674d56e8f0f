// Package engine provides the core components of the OrderPilot
// order-construction engine: the per-item state machine, the variant
// candidate matcher, and the error taxonomy shared by every
// remote-affecting step.
package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for retry and abort logic.
type ErrorClass string

const (
	// ErrorClassNotFound indicates an expected element or catalog entry is absent.
	// Examples: no matching variant row, command element not locatable.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassTimeout indicates a suspension point exceeded its deadline.
	// Timeouts are the only class eligible for the retry/resume policy.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassValidation indicates a quantity or discount violates
	// packaging or acceptance rules before anything is sent remotely.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassRemoteRejection indicates the remote system refused a commit.
	ErrorClassRemoteRejection ErrorClass = "remote_rejection"
)

// Error represents a classified order-construction error with context.
type Error struct {
	// Class is the error classification for retry and abort logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Item is the article code of the line item being processed, if applicable.
	Item string `json:"item,omitempty"`

	// Step is the state-machine step that was executing when the error occurred.
	Step string `json:"step,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information, such as the
	// expected variant id/suffix/package or the number of pages searched.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Item != "" && e.Step != "" {
		return fmt.Sprintf("[%s] %s (item=%s, step=%s)%s",
			e.Class, e.Message, e.Item, e.Step, e.unwrapSuffix())
	}
	if e.Item != "" {
		return fmt.Sprintf("[%s] %s (item=%s)%s", e.Class, e.Message, e.Item, e.unwrapSuffix())
	}
	return fmt.Sprintf("[%s] %s%s", e.Class, e.Message, e.unwrapSuffix())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) unwrapSuffix() string {
	if e.Err != nil {
		return ": " + e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewNotFoundError creates a new not-found error.
func NewNotFoundError(message string, err error) *Error {
	return &Error{Class: ErrorClassNotFound, Message: message, Err: err}
}

// NewTimeoutError creates a new timeout error.
func NewTimeoutError(message string, err error) *Error {
	return &Error{Class: ErrorClassTimeout, Message: message, Err: err}
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, err error) *Error {
	return &Error{Class: ErrorClassValidation, Message: message, Err: err}
}

// NewRemoteRejectionError creates a new remote-rejection error.
func NewRemoteRejectionError(message string, err error) *Error {
	return &Error{Class: ErrorClassRemoteRejection, Message: message, Err: err}
}

// WithItem adds line-item context to an error.
func (e *Error) WithItem(articleCode string) *Error {
	e.Item = articleCode
	return e
}

// WithStep adds step context to an error.
func (e *Error) WithStep(step string) *Error {
	e.Step = step
	return e
}

// WithCode adds an error code to an error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsNotFound returns true if the error is classified as not-found.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ErrorClassNotFound
	}
	return false
}

// IsTimeout returns true if the error is classified as a timeout.
func IsTimeout(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ErrorClassTimeout
	}
	return false
}

// IsValidation returns true if the error is classified as a validation error.
func IsValidation(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ErrorClassValidation
	}
	return false
}

// IsRemoteRejection returns true if the error is classified as a remote rejection.
func IsRemoteRejection(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ErrorClassRemoteRejection
	}
	return false
}

// IsRecoverable returns true if the error may be recovered by the bounded
// retry/resume policy. Only timeouts qualify; every other class aborts the run.
func IsRecoverable(err error) bool {
	return IsTimeout(err)
}

// Common error codes.
const (
	ErrCodeCommandNotFound = "COMMAND_NOT_FOUND"
	ErrCodeVariantNotFound = "VARIANT_NOT_FOUND"
	ErrCodeArticleUnknown  = "ARTICLE_UNKNOWN"
	ErrCodeQuantityInvalid = "QUANTITY_INVALID"
	ErrCodeCommitRejected  = "COMMIT_REJECTED"
	ErrCodeStepTimeout     = "STEP_TIMEOUT"
	ErrCodeSessionLost     = "SESSION_LOST"
)
