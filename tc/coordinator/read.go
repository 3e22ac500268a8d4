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
	"github.com/pingcap/vtnc/tc/model"
	"go.uber.org/zap"
)

type readGenKey struct{}

// readAcquire starts a read session which is released by a synthetic
// TC_OP_READ_RELEASE if the client does not release it in time.
func (c *Coordinator) readAcquire(req *model.Request) *model.Response {
	id := req.SessionID
	if err := c.sessions.AcquireRead(id); err != nil {
		return errorResponse(err)
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.cfg.ReadTimeout
	}

	c.readMu.Lock()
	defer c.readMu.Unlock()
	c.readGen++
	gen := c.readGen
	h, err := c.timers.Post(timeout, func() {
		ctx := context.WithValue(context.Background(), readGenKey{}, gen)
		c.handle(ctx, &model.Request{Operation: model.OpReadRelease, SessionID: id})
	})
	if err != nil {
		c.sessions.ReleaseRead(id)
		return errorResponse(err)
	}
	c.readTimers[id] = readTimer{handle: h, gen: gen}
	return okResponse(nil)
}

// readRelease ends a read session. Releasing a session twice is a no-op.
// A release posted by the timer of an earlier read session of the same id
// is ignored.
func (c *Coordinator) readRelease(ctx context.Context, req *model.Request) *model.Response {
	id := req.SessionID
	gen, fromTimer := ctx.Value(readGenKey{}).(uint64)

	c.readMu.Lock()
	t, ok := c.readTimers[id]
	if fromTimer && (!ok || t.gen != gen) {
		c.readMu.Unlock()
		return okResponse(nil)
	}
	delete(c.readTimers, id)
	c.readMu.Unlock()

	if ok && !fromTimer {
		c.timers.Cancel(t.handle)
	}
	if !c.sessions.ReleaseRead(id) {
		log.Debug("read session already released", zap.Uint32("sessionID", uint32(id)))
	} else if fromTimer {
		log.Warn("read session released by timeout", zap.Uint32("sessionID", uint32(id)))
	}
	return okResponse(nil)
}

// withRead runs fn inside the read session of the request, or inside a
// transient one when the session is not reading.
func (c *Coordinator) withRead(req *model.Request, fn func() *model.Response) *model.Response {
	if !c.sessions.IsReading(req.SessionID) {
		if err := c.sessions.AcquireRead(req.SessionID); err != nil {
			return errorResponse(err)
		}
		defer c.sessions.ReleaseRead(req.SessionID)
	}
	return fn()
}

func (c *Coordinator) readRunningStatus(req *model.Request) *model.Response {
	return c.withRead(req, func() *model.Response {
		status := model.RunningStatus{Saved: !c.dirty.Load()}
		for _, ctr := range c.framework.Controllers() {
			status.ObjectCount += ctr.KeyTree().Len()
			if last := ctr.LastCommit(); last.After(status.LastCommit) {
				status.LastCommit = last
			}
		}
		return okResponse(status)
	})
}

func (c *Coordinator) readStartupStatus(req *model.Request) *model.Response {
	return c.withRead(req, func() *model.Response {
		status, err := c.store.Status()
		if err != nil {
			return errorResponse(err)
		}
		return okResponse(status)
	})
}

// hasReadTimer returns true if a read timeout is pending for the session.
func (c *Coordinator) hasReadTimer(id model.SessionID) bool {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	_, ok := c.readTimers[id]
	return ok
}
