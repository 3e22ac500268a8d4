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

package audit

import (
	"context"
	"sync"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/vtnc/pkg/containers"
	cerrors "github.com/pingcap/vtnc/pkg/errors"
	"github.com/pingcap/vtnc/pkg/workerpool"
	"github.com/pingcap/vtnc/tc/model"
	"go.uber.org/zap"
)

type entry struct {
	running *Task
	parked  *containers.Deque[*Task]
}

// WaitQueue runs audits on a worker pool, at most one per controller at a time.
//
// An audit requested while another one of the same controller runs asks the
// running one to yield and is parked. When the running task finishes
// cancelled, the first parked task is dispatched and the callers waiting on
// the cancelled task wait on it instead.
type WaitQueue struct {
	pool   workerpool.AsyncPool
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]*entry
	// drained is closed for a controller whose entry was removed by Drain.
	drained map[string]chan struct{}
}

// NewWaitQueue creates a WaitQueue dispatching audits on pool.
func NewWaitQueue(pool workerpool.AsyncPool) *WaitQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &WaitQueue{
		pool:    pool,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]*entry),
		drained: make(map[string]chan struct{}),
	}
}

// Close cancels the context of running audits.
func (q *WaitQueue) Close() {
	q.cancel()
}

// Audit runs an audit of the controller and waits for its result.
//
// If an audit of the same kind is already parked for the controller, the
// caller shares it. A cancelled run is never reported: the caller keeps
// waiting on the task that superseded it.
func (q *WaitQueue) Audit(
	ctx context.Context, controller string, kind model.ServiceType, run RunFunc,
) (model.AuditReport, error) {
	task, err := q.push(controller, kind, run)
	if err != nil {
		return model.AuditReport{}, errors.Trace(err)
	}
	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return model.AuditReport{}, errors.Trace(ctx.Err())
		case <-task.done:
		}
		attempts++
		if task.State() != StateCancelled {
			report := task.report
			report.Attempts = attempts
			return report, task.err
		}
		if task.next == nil {
			// cancelled by Drain, nothing superseded it.
			return model.AuditReport{}, cerrors.ErrDriverNotPresent.GenWithStackByArgs(controller)
		}
		log.Debug("audit cancelled, waiting for the newer one",
			zap.String("controller", controller),
			zap.String("cancelled", task.ID),
			zap.String("next", task.next.ID))
		task = task.next
	}
}

// push enqueues a request and returns the task the caller waits on.
func (q *WaitQueue) push(controller string, kind model.ServiceType, run RunFunc) (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[controller]
	if !ok {
		e = &entry{parked: containers.NewDeque[*Task]()}
		q.entries[controller] = e
	}
	if e.running == nil {
		t := newTask(controller, kind, run)
		if err := q.dispatchLocked(e, t); err != nil {
			if e.parked.Size() == 0 {
				delete(q.entries, controller)
			}
			return nil, err
		}
		return t, nil
	}
	e.running.requestCancel()
	if tail, ok := e.parked.Back(); ok && tail.Kind == kind {
		return tail, nil
	}
	t := newTask(controller, kind, run)
	e.parked.Push(t)
	log.Info("audit parked behind running one",
		zap.String("controller", controller),
		zap.String("running", e.running.ID),
		zap.String("task", t.ID),
		zap.Stringer("kind", kind))
	return t, nil
}

func (q *WaitQueue) dispatchLocked(e *entry, t *Task) error {
	t.state.Store(int32(StateRunning))
	e.running = t
	handle, err := q.pool.Go(q.ctx, func() { q.execute(t) })
	if err != nil {
		e.running = nil
		t.state.Store(int32(StateParked))
		return errors.Trace(err)
	}
	// a pool that exits drops queued functions without running them.
	go func() {
		if err := handle.Wait(context.Background()); err != nil {
			q.finish(t, model.AuditReport{}, err)
		}
	}()
	return nil
}

func (q *WaitQueue) execute(t *Task) {
	var (
		report model.AuditReport
		err    error
	)
	defer func() {
		if r := recover(); r != nil {
			log.Error("audit panicked", zap.String("controller", t.Controller), zap.Any("panic", r))
			err = cerrors.ErrSystemFailure.GenWithStackByArgs("audit panicked")
		}
		q.finish(t, report, err)
	}()
	if err = t.Checkpoint(); err != nil {
		return
	}
	report, err = t.run(q.ctx, t)
}

// finish completes the running task t and promotes the next parked one.
// It is a no-op if t already finished.
func (q *WaitQueue) finish(t *Task, report model.AuditReport, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[t.Controller]
	if !ok || e.running != t {
		return
	}
	e.running = nil

	state := StateCompleted
	if cerrors.Is(err, cerrors.ErrAuditCancelled) || (err == nil && t.CancelRequested()) {
		state = StateCancelled
	}
	var perr error
	for {
		next, ok := e.parked.Pop()
		if !ok {
			break
		}
		if perr = q.dispatchLocked(e, next); perr == nil {
			if state == StateCancelled {
				t.next = next
			}
			break
		}
		q.complete(next, StateCompleted, model.AuditReport{}, perr)
	}
	if e.running == nil {
		delete(q.entries, t.Controller)
		if ch, ok := q.drained[t.Controller]; ok {
			close(ch)
			delete(q.drained, t.Controller)
		}
	}
	if state == StateCancelled && t.next == nil {
		// nothing superseded the task.
		switch {
		case perr != nil:
			state, err = StateCompleted, perr
		case !cerrors.Is(err, cerrors.ErrAuditCancelled):
			state = StateCompleted
		}
	}
	q.complete(t, state, report, err)
}

func (q *WaitQueue) complete(t *Task, state State, report model.AuditReport, err error) {
	t.report, t.err = report, err
	t.state.Store(int32(state))
	close(t.done)
}

// Drain cancels the running audit of the controller, drops the parked ones
// and waits until the running audit unwound. Dropped callers get
// ErrDriverNotPresent.
func (q *WaitQueue) Drain(ctx context.Context, controller string) error {
	q.mu.Lock()
	e, ok := q.entries[controller]
	if !ok {
		q.mu.Unlock()
		return nil
	}
	for {
		t, ok := e.parked.Pop()
		if !ok {
			break
		}
		q.complete(t, StateCompleted, model.AuditReport{},
			cerrors.ErrDriverNotPresent.GenWithStackByArgs(controller))
	}
	e.running.requestCancel()
	ch, ok := q.drained[controller]
	if !ok {
		ch = make(chan struct{})
		q.drained[controller] = ch
	}
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	case <-ch:
		return nil
	}
}

// Running returns the running task of the controller, nil if it is idle.
func (q *WaitQueue) Running(controller string) *Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.entries[controller]; ok {
		return e.running
	}
	return nil
}

// Parked returns the number of parked tasks of the controller.
func (q *WaitQueue) Parked(controller string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.entries[controller]; ok {
		return e.parked.Size()
	}
	return 0
}
