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

package driver

import (
	"context"
	"sync"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/vtnc/pkg/ctxmu"
	"github.com/pingcap/vtnc/tc/cache"
	"github.com/pingcap/vtnc/tc/model"
	"go.uber.org/atomic"
)

// Controller is the state the coordinator keeps for one controller.
//
// Info, status and the key tree are published atomically and can be read at
// any time. Everything that changes them, and the staged transaction, is
// serialized by the entry lock.
type Controller struct {
	name string
	mu   *ctxmu.CtxMutex

	info        atomic.Pointer[model.ControllerInfo]
	status      atomic.Int32
	auditResult atomic.Int32
	keyTree     atomic.Pointer[cache.KeyTree]
	lastCommit  atomic.Time

	connMu sync.RWMutex
	conn   Conn

	// protected by mu
	txn *Txn
}

// NewController creates the state of a controller with an empty key tree.
func NewController(info model.ControllerInfo, conn Conn) *Controller {
	c := &Controller{
		name: info.Name,
		mu:   ctxmu.New(),
		conn: conn,
	}
	c.info.Store(&info)
	c.keyTree.Store(cache.NewKeyTree())
	return c
}

// Name returns the controller name.
func (c *Controller) Name() string {
	return c.name
}

// Info returns the controller configuration.
func (c *Controller) Info() model.ControllerInfo {
	return *c.info.Load()
}

// Type returns the controller type.
func (c *Controller) Type() model.ControllerType {
	return c.info.Load().Type
}

// Lock acquires the entry lock. It returns an error if ctx is done first.
func (c *Controller) Lock(ctx context.Context) error {
	if !c.mu.Lock(ctx) {
		return errors.Trace(ctx.Err())
	}
	return nil
}

// Unlock releases the entry lock.
func (c *Controller) Unlock() {
	c.mu.Unlock()
}

// SetInfo replaces the configuration. The caller holds the entry lock.
func (c *Controller) SetInfo(info model.ControllerInfo) {
	c.info.Store(&info)
}

// Status returns the connection status.
func (c *Controller) Status() model.ConnectionStatus {
	return model.ConnectionStatus(c.status.Load())
}

// SetStatus sets the connection status and returns the previous one.
func (c *Controller) SetStatus(s model.ConnectionStatus) model.ConnectionStatus {
	return model.ConnectionStatus(c.status.Swap(int32(s)))
}

// AuditResult returns the result of the last audit.
func (c *Controller) AuditResult() model.AuditResult {
	return model.AuditResult(c.auditResult.Load())
}

// SetAuditResult records the result of an audit.
func (c *Controller) SetAuditResult(r model.AuditResult) {
	c.auditResult.Store(int32(r))
}

// KeyTree returns the objects known on the controller. The tree must not be
// modified, Clone it first.
func (c *Controller) KeyTree() *cache.KeyTree {
	return c.keyTree.Load()
}

// SetKeyTree replaces the key tree. The caller holds the entry lock.
func (c *Controller) SetKeyTree(t *cache.KeyTree) {
	c.keyTree.Store(t)
}

// LastCommit returns the time of the last successful commit.
func (c *Controller) LastCommit() time.Time {
	return c.lastCommit.Load()
}

// Conn returns the driver connection.
func (c *Controller) Conn() Conn {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn
}

// SwapConn replaces the connection and returns the old one.
func (c *Controller) SwapConn(conn Conn) Conn {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	old := c.conn
	c.conn = conn
	return old
}

// Txn returns the staged transaction. The caller holds the entry lock.
func (c *Controller) Txn() *Txn {
	return c.txn
}

func (c *Controller) setTxn(txn *Txn) {
	c.txn = txn
}
