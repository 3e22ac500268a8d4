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

package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestMockAfterFunc(t *testing.T) {
	t.Parallel()

	mock := NewMock()
	fired := atomic.NewBool(false)
	mock.AfterFunc(time.Second, func() {
		fired.Store(true)
	})

	mock.Add(500 * time.Millisecond)
	require.False(t, fired.Load())
	mock.Add(500 * time.Millisecond)
	require.Eventually(t, fired.Load, time.Second, 10*time.Millisecond)
}

func TestMono(t *testing.T) {
	t.Parallel()

	mock := NewMock()
	start := mock.Mono()
	mock.Add(3 * time.Second)
	require.Equal(t, 3*time.Second, mock.Mono().Sub(start))

	rc := New()
	a := rc.Mono()
	b := MonoNow()
	require.GreaterOrEqual(t, b.Sub(a), time.Duration(0))
}
