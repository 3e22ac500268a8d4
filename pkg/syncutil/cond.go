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

package syncutil

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pingcap/errors"
)

// Cond is like to regular sync.Cond with enhancement with respective to
// cancellability. Waiters can give up when their context is done.
type Cond struct {
	L  sync.Locker
	ch atomic.Pointer[chan struct{}]
}

// NewCond creates a new Cond.
func NewCond(l sync.Locker) *Cond {
	c := &Cond{L: l}
	ch := make(chan struct{})
	c.ch.Store(&ch)
	return c
}

// Wait waits on the condition variable.
func (c *Cond) Wait() {
	ch := *c.ch.Load()
	c.L.Unlock()
	<-ch
	c.L.Lock()
}

// WaitWithContext waits on the condition variable until the context is done
// or until Broadcast is called.
// Unlike the regular Wait, c.L is locked again on both return paths, so the
// caller can always unlock it with a deferred Unlock.
func (c *Cond) WaitWithContext(ctx context.Context) error {
	ch := *c.ch.Load()
	c.L.Unlock()
	defer c.L.Lock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	}
}

// Broadcast wakes up all the waiters.
func (c *Cond) Broadcast() {
	ch := make(chan struct{})
	old := c.ch.Swap(&ch)
	close(*old)
}
