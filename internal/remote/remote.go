// Package remote classifies failures of the backing store as opaque remote failures.
package remote

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// ErrFailure matches every error produced by Wrap.
var ErrFailure = errors.New("remote failure")

// Error is a store or network failure. Callers see it as ErrFailure; the cause
// stays reachable for logging through Unwrap.
type Error struct {
	Op string
	// Code is the AWS API error code, when the cause carries one.
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrFailure }

// Wrap returns nil for a nil err.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	re := &Error{Op: op, Err: err}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		re.Code = apiErr.ErrorCode()
	}
	return re
}
