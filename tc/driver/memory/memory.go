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

// Package memory implements a driver for in-process controllers. It serves
// legacy controllers whose state is kept by the coordinator itself, and dry
// runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/pingcap/errors"
	cerrors "github.com/pingcap/vtnc/pkg/errors"
	"github.com/pingcap/vtnc/tc/cache"
	"github.com/pingcap/vtnc/tc/driver"
	"github.com/pingcap/vtnc/tc/model"
	"go.uber.org/atomic"
)

// Backend is an in-process controller.
type Backend struct {
	mu    sync.Mutex
	nodes *cache.KeyTree
	// failures maps "op KEYTYPE:key" to the error returned by that call.
	failures map[string]error

	down  atomic.Bool
	calls atomic.Int64
}

func newBackend() *Backend {
	return &Backend{nodes: cache.NewKeyTree(), failures: make(map[string]error)}
}

// Close implements driver.Conn.
func (b *Backend) Close() error {
	return nil
}

// SetDown makes the backend unreachable.
func (b *Backend) SetDown(down bool) {
	b.down.Store(down)
}

// FailOn makes the given call fail with err, e.g. FailOn(OpCreate, node, err).
// A nil err clears the failure.
func (b *Backend) FailOn(op model.ConfigOp, node model.ConfigNode, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := callKey(op, node)
	if err == nil {
		delete(b.failures, key)
		return
	}
	b.failures[key] = err
}

// Nodes returns the objects configured on the backend, parents first.
func (b *Backend) Nodes() []model.ConfigNode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nodes.Nodes()
}

// Calls returns the number of calls served.
func (b *Backend) Calls() int64 {
	return b.calls.Load()
}

func callKey(op model.ConfigOp, node model.ConfigNode) string {
	return fmt.Sprintf("%s %s", op, node)
}

func (b *Backend) apply(name string, op model.ConfigOp, node model.ConfigNode) error {
	b.calls.Inc()
	if b.down.Load() {
		return cerrors.ErrControllerDisconnected.GenWithStackByArgs(name)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err, ok := b.failures[callKey(op, node)]; ok {
		return err
	}
	_, exists := b.nodes.Get(node.KeyType, node.Key)
	switch op {
	case model.OpCreate:
		if exists {
			return cerrors.ErrDriverOperAbort.GenWithStackByArgs(name, node.String()+" already exists")
		}
	case model.OpUpdate, model.OpDelete:
		if !exists {
			return cerrors.ErrDriverOperAbort.GenWithStackByArgs(name, node.String()+" does not exist")
		}
	}
	if op == model.OpDelete {
		b.nodes.Delete(node.KeyType, node.Key)
		return nil
	}
	if err := b.nodes.Put(node); err != nil {
		return cerrors.WrapError(cerrors.ErrDriverOperAbort, err, name, err.Error())
	}
	return nil
}

func (b *Backend) children(name string, kt model.KeyType, parentKey string) ([]model.ConfigNode, error) {
	b.calls.Inc()
	if b.down.Load() {
		return nil, cerrors.ErrControllerDisconnected.GenWithStackByArgs(name)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var nodes []model.ConfigNode
	if parentKey == "" {
		b.nodes.Ascend(func(n model.ConfigNode) bool {
			if n.KeyType == kt {
				nodes = append(nodes, n.Clone())
			}
			return true
		})
		return nodes, nil
	}
	for _, n := range b.nodes.Children(kt.Parent(), parentKey) {
		if n.KeyType == kt {
			nodes = append(nodes, n.Clone())
		}
	}
	return nodes, nil
}

// Driver is the driver of memory controllers.
type Driver struct {
	driver.Base

	mu       sync.Mutex
	backends map[string]*Backend
}

// NewDriver creates the driver. Every key type is supported.
func NewDriver() *Driver {
	table := driver.NewCommandTable()
	for _, kt := range model.TopDown() {
		table.MustRegister(command{kt: kt})
	}
	return &Driver{
		Base:     driver.NewBase(model.ControllerTypeMemory, table),
		backends: make(map[string]*Backend),
	}
}

// Connect implements driver.Driver. Controllers sharing an address share
// their backend.
func (d *Driver) Connect(info model.ControllerInfo) (driver.Conn, error) {
	return d.Backend(info.Address), nil
}

// Backend returns the backend at the address, creating it if needed.
func (d *Driver) Backend(address string) *Backend {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.backends[address]
	if !ok {
		b = newBackend()
		d.backends[address] = b
	}
	return b
}

// Ping implements driver.Driver.
func (d *Driver) Ping(_ context.Context, ctr *driver.Controller) error {
	b, err := backendOf(ctr)
	if err != nil {
		return err
	}
	if b.down.Load() {
		return cerrors.ErrControllerDisconnected.GenWithStackByArgs(ctr.Name())
	}
	return nil
}

// Vote implements driver.Driver. A backend that is down can not vote.
func (d *Driver) Vote(ctx context.Context, ctr *driver.Controller, changes []model.ConfigChange) error {
	if err := d.Ping(ctx, ctr); err != nil {
		return errors.Trace(err)
	}
	return d.Base.Vote(ctx, ctr, changes)
}

func backendOf(ctr *driver.Controller) (*Backend, error) {
	b, ok := ctr.Conn().(*Backend)
	if !ok {
		return nil, cerrors.ErrControllerDisconnected.GenWithStackByArgs(ctr.Name())
	}
	return b, nil
}

type command struct {
	kt model.KeyType
}

func (c command) KeyType() model.KeyType {
	return c.kt
}

func (c command) Validate(node model.ConfigNode) error {
	return driver.ValidateNode(node)
}

func (c command) Create(_ context.Context, ctr *driver.Controller, node model.ConfigNode) error {
	return c.apply(ctr, model.OpCreate, node)
}

func (c command) Update(_ context.Context, ctr *driver.Controller, node model.ConfigNode) error {
	return c.apply(ctr, model.OpUpdate, node)
}

func (c command) Delete(_ context.Context, ctr *driver.Controller, node model.ConfigNode) error {
	return c.apply(ctr, model.OpDelete, node)
}

func (c command) apply(ctr *driver.Controller, op model.ConfigOp, node model.ConfigNode) error {
	b, err := backendOf(ctr)
	if err != nil {
		return err
	}
	return b.apply(ctr.Name(), op, node)
}

func (c command) FetchChildren(_ context.Context, ctr *driver.Controller, parentKey string) ([]model.ConfigNode, error) {
	b, err := backendOf(ctr)
	if err != nil {
		return nil, err
	}
	return b.children(ctr.Name(), c.kt, parentKey)
}
