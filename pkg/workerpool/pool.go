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

package workerpool

import (
	"context"
	"time"
)

// AsyncPool provides a simple Goroutine pool, where the order in which jobs are
// run is non-deterministic between workers but jobs leave the queue in FIFO order.
type AsyncPool interface {
	// Go mimics the semantics of the "go" keyword, with the only difference being the `ctx` parameter,
	// which is used to cancel **the submission of task**.
	// f never runs on the calling goroutine. Go returns an error instead of
	// blocking when the queue is full or the pool is not running.
	Go(ctx context.Context, f func()) (*TaskHandle, error)

	// Run runs the AsyncPool.
	Run(ctx context.Context) error
}

// TimerHandle identifies a function posted to a TimerService.
type TimerHandle uint64

// InvalidTimerHandle is never returned by Post.
const InvalidTimerHandle TimerHandle = 0

// TimerService fires functions once after a delay, on a worker of the pool it
// is bound to.
type TimerService interface {
	// Post arranges for f to be dispatched after d elapses.
	Post(d time.Duration, f func()) (TimerHandle, error)
	// Cancel stops a posted function from firing. It returns false if the
	// timer already fired or was cancelled before.
	Cancel(h TimerHandle) bool
}
