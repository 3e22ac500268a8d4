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
	"testing"

	"github.com/pingcap/errors"
	"github.com/stretchr/testify/require"
)

func TestIs(t *testing.T) {
	t.Parallel()

	err := ErrSystemBusy.GenWithStackByArgs("commit in progress")
	require.True(t, Is(err, ErrSystemBusy))
	require.False(t, Is(err, ErrInvalidState))

	wrapped := WrapError(ErrDriverFailure, errors.New("connection refused"), "c1")
	require.True(t, Is(wrapped, ErrDriverFailure))

	annotated := errors.Annotate(ErrInvalidConfigID.GenWithStackByArgs(5, 1), "commit")
	require.True(t, Is(annotated, ErrInvalidConfigID))

	require.False(t, Is(nil, ErrSystemBusy))
	require.False(t, Is(errors.New("plain"), ErrSystemBusy))
}

func TestWrapError(t *testing.T) {
	t.Parallel()

	require.Nil(t, WrapError(ErrDriverFailure, nil, "c1"))
	err := WrapError(ErrDriverFailure, errors.New("boom"), "c1")
	require.Regexp(t, "driver failure on controller c1", err.Error())
	require.Equal(t, errors.RFCErrorCode("TC:ErrDriverFailure"), RFCCode(err))
	require.Equal(t, errors.RFCErrorCode(""), RFCCode(errors.New("plain")))
}

func TestIsRetryableError(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		err      error
		expected bool
	}{
		{nil, false},
		{context.Canceled, false},
		{errors.Trace(context.DeadlineExceeded), false},
		{ErrInvalidArgument.GenWithStackByArgs("x"), false},
		{ErrDriverOperAbort.GenWithStackByArgs("c1", "vote rejected"), false},
		{ErrTransportRequestFailed.GenWithStackByArgs("GET", "/vtns", 503), true},
		{errors.New("connection reset"), true},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.expected, IsRetryableError(tc.err), "%v", tc.err)
	}
}
