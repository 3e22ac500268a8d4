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

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	cerrors "github.com/pingcap/vtnc/pkg/errors"
	"github.com/pingcap/vtnc/pkg/retry"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	backoffBaseDelayInMs = 1
	maxTries             = 25

	defaultQueueSize = 1024
)

type defaultAsyncPoolImpl struct {
	name       string
	numWorkers int

	inputCh     chan *asyncTask
	isRunning   atomic.Bool
	isClosed    atomic.Bool
	runningLock sync.RWMutex

	metrics poolMetrics
}

// NewDefaultAsyncPool creates a new AsyncPool that uses the default implementation.
// queueSize bounds the number of tasks waiting for a worker.
func NewDefaultAsyncPool(name string, numWorkers, queueSize int) AsyncPool {
	return newDefaultAsyncPoolImpl(name, numWorkers, queueSize)
}

func newDefaultAsyncPoolImpl(name string, numWorkers, queueSize int) *defaultAsyncPoolImpl {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &defaultAsyncPoolImpl{
		name:       name,
		numWorkers: numWorkers,
		inputCh:    make(chan *asyncTask, queueSize),
		metrics:    newPoolMetrics(name),
	}
}

func (p *defaultAsyncPoolImpl) Go(ctx context.Context, f func()) (*TaskHandle, error) {
	handle, err := p.doGo(ctx, f)
	if err == nil {
		return handle, nil
	}
	if !isRetryable(err) || p.isClosed.Load() {
		return nil, err
	}

	// The pool may not be running yet, Run is usually started concurrently
	// with the first submissions.
	err = retry.Do(ctx, func() error {
		var inErr error
		handle, inErr = p.doGo(ctx, f)
		return inErr
	}, retry.WithBackoffBaseDelay(backoffBaseDelayInMs),
		retry.WithMaxTries(maxTries),
		retry.WithIsRetryableErr(func(err error) bool {
			return isRetryable(err) && !p.isClosed.Load()
		}))
	if err != nil {
		return nil, errors.Trace(err)
	}
	return handle, nil
}

func isRetryable(err error) bool {
	return cerrors.Is(err, cerrors.ErrAsyncPoolExited)
}

func (p *defaultAsyncPoolImpl) doGo(ctx context.Context, f func()) (*TaskHandle, error) {
	p.runningLock.RLock()
	defer p.runningLock.RUnlock()

	if !p.isRunning.Load() || p.isClosed.Load() {
		return nil, cerrors.ErrAsyncPoolExited.GenWithStackByArgs()
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Trace(err)
	}

	task := &asyncTask{f: f, handle: newTaskHandle()}
	select {
	case p.inputCh <- task:
	default:
		p.metrics.rejected.Inc()
		return nil, cerrors.ErrSystemBusy.GenWithStackByArgs("worker pool " + p.name + " queue is full")
	}
	p.metrics.queued.Inc()
	return task.handle, nil
}

func (p *defaultAsyncPoolImpl) Run(ctx context.Context) error {
	errg, ctx := errgroup.WithContext(ctx)

	p.runningLock.Lock()
	if p.isClosed.Load() {
		p.runningLock.Unlock()
		return cerrors.ErrAsyncPoolExited.GenWithStackByArgs()
	}
	p.isRunning.Store(true)
	p.runningLock.Unlock()

	log.Info("async pool started",
		zap.String("name", p.name), zap.Int("workers", p.numWorkers))

	for i := 0; i < p.numWorkers; i++ {
		errg.Go(func() error {
			return p.runWorker(ctx)
		})
	}

	err := errg.Wait()

	p.runningLock.Lock()
	p.isRunning.Store(false)
	p.isClosed.Store(true)
	p.runningLock.Unlock()

	// No more tasks can be submitted, fail the ones left in the queue so that
	// nobody waits for them forever.
	p.drain()
	log.Info("async pool exited", zap.String("name", p.name), zap.Error(err))
	return errors.Trace(err)
}

func (p *defaultAsyncPoolImpl) runWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return errors.Trace(ctx.Err())
		case task := <-p.inputCh:
			p.metrics.queued.Dec()
			p.metrics.running.Inc()
			task.run()
			p.metrics.running.Dec()
		}
	}
}

func (p *defaultAsyncPoolImpl) drain() {
	for {
		select {
		case task := <-p.inputCh:
			p.metrics.queued.Dec()
			task.handle.finish(cerrors.ErrAsyncPoolExited.GenWithStackByArgs())
		default:
			return
		}
	}
}

type asyncTask struct {
	f      func()
	handle *TaskHandle
}

func (t *asyncTask) run() {
	var err error
	defer func() {
		if r := recover(); r != nil {
			log.Error("task panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = cerrors.ErrSystemFailure.GenWithStackByArgs("dispatched task panicked")
		}
		t.handle.finish(err)
	}()
	t.f()
}

// TaskHandle represents a dispatched function. It can be joined.
type TaskHandle struct {
	done chan struct{}
	err  error
}

func newTaskHandle() *TaskHandle {
	return &TaskHandle{done: make(chan struct{})}
}

func (h *TaskHandle) finish(err error) {
	h.err = err
	close(h.done)
}

// Done returns a channel closed once the task has finished or was dropped.
func (h *TaskHandle) Done() <-chan struct{} {
	return h.done
}

// Wait joins the task. A deadline on ctx makes it a timed join; the task keeps
// running when the join times out.
// The returned error is non-nil if the task panicked or was dropped when the
// pool exited.
func (h *TaskHandle) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	case <-h.done:
		return h.err
	}
}
