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

	"github.com/pingcap/log"
	cerrors "github.com/pingcap/vtnc/pkg/errors"
	"github.com/pingcap/vtnc/tc/model"
	"go.uber.org/zap"
)

func (c *Coordinator) acquireConfig(ctx context.Context, req *model.Request) *model.Response {
	lock := req.Lock
	timeout := req.Timeout
	switch req.Operation {
	case model.OpConfigAcquire:
		lock = model.LockScope{Mode: model.ModeGlobal}
		timeout = 0
	case model.OpConfigAcquireTimed:
		lock = model.LockScope{Mode: model.ModeGlobal}
		if timeout == 0 {
			timeout = c.cfg.AcquireTimeout
		}
	case model.OpConfigAcquirePartial:
		if lock.Mode != model.ModePartial {
			return errorResponse(cerrors.ErrInvalidOption.GenWithStackByArgs(
				"partial acquire with mode " + lock.Mode.String()))
		}
	case model.OpConfigAcquireForce:
		lock = model.LockScope{Mode: model.ModeForce}
	}

	cid, err := c.sessions.AcquireConfig(ctx, req.SessionID, lock, timeout)
	if err != nil {
		return errorResponse(err)
	}
	return &model.Response{Status: model.OperSuccess, ConfigID: cid}
}

func (c *Coordinator) releaseConfig(req *model.Request) *model.Response {
	if err := c.sessions.ReleaseConfig(req.SessionID); err != nil {
		return errorResponse(err)
	}
	c.candidates.Discard(req.SessionID)
	return okResponse(nil)
}

// StageCandidate adds changes to the candidate of a config session.
func (c *Coordinator) StageCandidate(
	ctx context.Context, id model.SessionID, cid model.ConfigID, changes []model.ConfigChange,
) *model.Response {
	return c.dispatch(ctx, func() *model.Response {
		cs, err := c.sessions.ValidateConfigID(id, cid)
		if err != nil {
			return errorResponse(err)
		}
		if err := checkScope(cs, changes); err != nil {
			return errorResponse(err)
		}
		if err := c.candidates.Stage(id, changes...); err != nil {
			return errorResponse(err)
		}
		log.Debug("candidate staged",
			zap.Uint32("sessionID", uint32(id)), zap.Int("changes", len(changes)))
		return &model.Response{Status: model.OperSuccess, ConfigID: cid}
	})
}

// checkScope rejects changes outside the partial scope of the session.
func checkScope(cs model.ConfigSession, changes []model.ConfigChange) error {
	for _, ch := range changes {
		if !cs.Lock.Allows(ch.Node) {
			return cerrors.ErrInvalidOption.GenWithStackByArgs(
				ch.Node.String() + " is outside of " + cs.Lock.String())
		}
	}
	return nil
}
