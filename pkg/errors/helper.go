// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package errors

import (
	"context"

	"github.com/pingcap/errors"
)

// WrapError generates a new error based on given `*errors.Error`, wraps the err
// as cause error.
// If given `err` is nil, returns a nil error, which a the different behavior
// against `Wrap` function in pingcap/errors.
func WrapError(rfcError *errors.Error, err error, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return rfcError.Wrap(err).GenWithStackByCause(args...)
}

// Is reports whether any error in err's chain is an instance of rfcError.
// Unlike `rfcError.Equal`, it also matches errors that were wrapped by WrapError,
// whose `errors.Cause` is the wrapped third party error.
func Is(err error, rfcError *errors.Error) bool {
	for err != nil {
		if e, ok := err.(*errors.Error); ok && e.ID() == rfcError.ID() {
			return true
		}
		switch x := err.(type) {
		case interface{ Unwrap() error }:
			err = x.Unwrap()
		case interface{ Cause() error }:
			err = x.Cause()
		default:
			return false
		}
	}
	return false
}

// RFCCode returns the RFC code of the outermost normalized error in err's
// chain, or "" when err carries none.
func RFCCode(err error) errors.RFCErrorCode {
	for err != nil {
		if e, ok := err.(*errors.Error); ok {
			return e.RFCCode()
		}
		switch x := err.(type) {
		case interface{ Unwrap() error }:
			err = x.Unwrap()
		case interface{ Cause() error }:
			err = x.Cause()
		default:
			return ""
		}
	}
	return ""
}

// IsContextCanceledError checks if an error is caused by context.Canceled.
func IsContextCanceledError(err error) bool {
	return errors.Cause(err) == context.Canceled
}

// IsContextDeadlineExceededError checks if an error is caused by context.DeadlineExceeded.
func IsContextDeadlineExceededError(err error) bool {
	return errors.Cause(err) == context.DeadlineExceeded
}

// IsRetryableError returns true if the error is not a context error and is not
// one of the errors that a retry can never fix.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if IsContextCanceledError(err) || IsContextDeadlineExceededError(err) {
		return false
	}
	return !Is(err, ErrInvalidArgument) &&
		!Is(err, ErrDriverOperAbort) &&
		!Is(err, ErrKeyTypeNotSupported)
}
