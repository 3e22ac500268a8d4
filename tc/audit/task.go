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

	"github.com/google/uuid"
	cerrors "github.com/pingcap/vtnc/pkg/errors"
	"github.com/pingcap/vtnc/tc/model"
	"go.uber.org/atomic"
)

// State is the state of a Task.
type State int32

// Task states.
const (
	StateParked State = iota
	StateRunning
	StateCompleted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateParked:
		return "parked"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// RunFunc performs one audit of the controller. It must call
// Task.Checkpoint after every round-trip to the controller and return the
// error it reports.
type RunFunc func(ctx context.Context, task *Task) (model.AuditReport, error)

// Task is one audit of a controller. Callers requesting the same kind of
// audit while a task is parked share it.
type Task struct {
	ID         string
	Controller string
	Kind       model.ServiceType

	run             RunFunc
	cancelRequested atomic.Bool
	state           atomic.Int32
	done            chan struct{}

	// set before done is closed.
	report model.AuditReport
	err    error
	next   *Task
}

func newTask(controller string, kind model.ServiceType, run RunFunc) *Task {
	return &Task{
		ID:         uuid.New().String(),
		Controller: controller,
		Kind:       kind,
		run:        run,
		done:       make(chan struct{}),
	}
}

// State returns the current state.
func (t *Task) State() State {
	return State(t.state.Load())
}

// CancelRequested returns true once a newer audit asked this one to yield.
func (t *Task) CancelRequested() bool {
	return t.cancelRequested.Load()
}

// Checkpoint returns ErrAuditCancelled if a newer audit asked this one to yield.
func (t *Task) Checkpoint() error {
	if t.cancelRequested.Load() {
		return cerrors.ErrAuditCancelled.GenWithStackByArgs(t.Controller)
	}
	return nil
}

func (t *Task) requestCancel() {
	t.cancelRequested.Store(true)
}
