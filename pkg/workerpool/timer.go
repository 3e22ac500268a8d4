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
	"sync"
	"time"

	"github.com/pingcap/log"
	"github.com/pingcap/vtnc/pkg/clock"
	cerrors "github.com/pingcap/vtnc/pkg/errors"
	"go.uber.org/zap"
)

// DefaultTimerService runs posted functions on timers of a clock.Clock.
type DefaultTimerService struct {
	clock clock.Clock
	pool  AsyncPool

	mu     sync.Mutex
	nextID TimerHandle
	timers map[TimerHandle]*clock.Timer
	closed bool
}

// NewTimerService creates a TimerService whose functions are dispatched to pool
// when they fire.
func NewTimerService(clk clock.Clock, pool AsyncPool) *DefaultTimerService {
	return &DefaultTimerService{
		clock:  clk,
		pool:   pool,
		timers: make(map[TimerHandle]*clock.Timer),
	}
}

func (s *DefaultTimerService) Post(d time.Duration, f func()) (TimerHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return InvalidTimerHandle, cerrors.ErrTimerServiceClosed.GenWithStackByArgs()
	}
	s.nextID++
	h := s.nextID
	s.timers[h] = s.clock.AfterFunc(d, func() {
		s.fire(h, f)
	})
	pendingTimers.Inc()
	return h, nil
}

func (s *DefaultTimerService) fire(h TimerHandle, f func()) {
	s.mu.Lock()
	_, ok := s.timers[h]
	delete(s.timers, h)
	s.mu.Unlock()
	if !ok {
		// Cancelled while firing.
		return
	}
	pendingTimers.Dec()

	if _, err := s.pool.Go(context.Background(), f); err != nil {
		log.Warn("failed to dispatch fired timer",
			zap.Uint64("timer", uint64(h)), zap.Error(err))
	}
}

func (s *DefaultTimerService) Cancel(h TimerHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[h]
	if !ok {
		return false
	}
	delete(s.timers, h)
	t.Stop()
	pendingTimers.Dec()
	return true
}

// Close stops every pending timer. Post fails afterwards.
func (s *DefaultTimerService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for h, t := range s.timers {
		t.Stop()
		delete(s.timers, h)
		pendingTimers.Dec()
	}
}
