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

package coordinator

import (
	"context"

	"github.com/pingcap/errors"
	"github.com/pingcap/failpoint"
	"github.com/pingcap/log"
	cerrors "github.com/pingcap/vtnc/pkg/errors"
	"github.com/pingcap/vtnc/tc/cache"
	"github.com/pingcap/vtnc/tc/driver"
	"github.com/pingcap/vtnc/tc/model"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// participant is one controller taking part in a commit.
type participant struct {
	ctr     *driver.Controller
	drv     driver.Driver
	changes []model.ConfigChange
}

func (c *Coordinator) commit(ctx context.Context, req *model.Request) *model.Response {
	cs, release, err := c.sessions.AcquireWrite(req.SessionID, req.ConfigID, req.Operation, true)
	if err != nil {
		return errorResponse(err)
	}
	defer release()

	cand := cache.NewCandidate()
	if err := cand.Stage(c.candidates.Peek(req.SessionID)...); err != nil {
		return errorResponse(err)
	}
	if err := cand.Stage(req.Changes...); err != nil {
		return errorResponse(err)
	}
	changes := cand.Changes()
	if err := checkScope(cs, changes); err != nil {
		return errorResponse(err)
	}
	if len(changes) == 0 {
		return &model.Response{Status: model.OperSuccess, ConfigID: cs.ConfigID}
	}

	names, groups := cache.GroupByController(changes)
	parts := make([]participant, 0, len(names))
	for _, name := range names {
		ctr, drv, err := c.framework.GetDriverByControllerName(name)
		if err != nil {
			return errorResponse(err)
		}
		parts = append(parts, participant{ctr: ctr, drv: drv, changes: groups[name]})
	}

	ctx, cancel := c.operationContext(ctx, req)
	defer cancel()
	if err := c.twoPhaseCommit(ctx, parts); err != nil {
		return errorResponse(err)
	}
	c.candidates.Discard(req.SessionID)
	c.dirty.Store(true)

	if c.autosave.Load() {
		if err := c.saveRunning(); err != nil {
			// The commit is done whatever happens to the save.
			autosaveFailures.Inc()
			log.Error("autosave after commit failed",
				zap.Uint32("sessionID", uint32(req.SessionID)), zap.Error(err))
		}
	}
	return &model.Response{Status: model.OperSuccess, ConfigID: cs.ConfigID}
}

// twoPhaseCommit votes the changes on every participant, in controller name
// order, then commits them. Any failure aborts every participant that was
// asked to vote, the failing one included.
//
// The entry lock of every participant is held until all of them committed or
// aborted.
func (c *Coordinator) twoPhaseCommit(ctx context.Context, parts []participant) error {
	locked := make([]participant, 0, len(parts))
	defer func() {
		for _, p := range locked {
			p.ctr.Unlock()
		}
	}()

	for _, p := range parts {
		if err := p.ctr.Lock(ctx); err != nil {
			return c.abortParticipants(ctx, locked,
				cerrors.WrapError(cerrors.ErrSystemBusy, err, "controller "+p.ctr.Name()+" is locked"))
		}
		locked = append(locked, p)
		if err := p.drv.Vote(ctx, p.ctr, p.changes); err != nil {
			log.Warn("controller voted no",
				zap.String("controller", p.ctr.Name()), zap.Error(err))
			return c.abortParticipants(ctx, locked, err)
		}
	}

	failpoint.Inject("CommitAfterVoteError", func() {
		failpoint.Return(c.abortParticipants(ctx, locked,
			cerrors.ErrDriverFailure.GenWithStackByArgs("failpoint")))
	})

	for _, p := range locked {
		if err := p.drv.Commit(ctx, p.ctr); err != nil {
			log.Warn("controller failed to commit",
				zap.String("controller", p.ctr.Name()), zap.Error(err))
			return c.abortParticipants(ctx, locked, err)
		}
	}
	return nil
}

// abortParticipants aborts parts and returns cause. If an abort fails the
// controllers may be left inconsistent, the error is a system failure then.
// The caller holds the entry locks of parts.
func (c *Coordinator) abortParticipants(ctx context.Context, parts []participant, cause error) error {
	ctx = context.WithoutCancel(ctx)
	var errs error
	for _, p := range parts {
		actx, cancel := c.clock.WithTimeout(ctx, c.cfg.RequestTimeout)
		errs = multierr.Append(errs, p.drv.Abort(actx, p.ctr))
		cancel()
	}
	if errs != nil {
		log.Error("failed to abort controllers", zap.Error(errs), zap.NamedError("cause", cause))
		return cerrors.WrapError(cerrors.ErrSystemFailure, errs, "abort failed after "+cause.Error())
	}
	return errors.Trace(cause)
}

// abort discards the candidate of the session and aborts every controller.
func (c *Coordinator) abort(ctx context.Context, req *model.Request) *model.Response {
	cs, release, err := c.sessions.AcquireWrite(req.SessionID, req.ConfigID, req.Operation, true)
	if err != nil {
		return errorResponse(err)
	}
	defer release()
	c.candidates.Discard(req.SessionID)

	ctx, cancel := c.operationContext(ctx, req)
	defer cancel()
	var errs error
	for _, ctr := range c.framework.Controllers() {
		_, drv, err := c.framework.GetDriverByControllerName(ctr.Name())
		if err != nil {
			// removed meanwhile
			continue
		}
		if err := ctr.Lock(ctx); err != nil {
			errs = multierr.Append(errs, errors.Trace(err))
			continue
		}
		errs = multierr.Append(errs, drv.Abort(ctx, ctr))
		ctr.Unlock()
	}
	if errs != nil {
		return errorResponse(cerrors.WrapError(cerrors.ErrSystemFailure, errs, "abort failed"))
	}
	return &model.Response{Status: model.OperSuccess, ConfigID: cs.ConfigID}
}
