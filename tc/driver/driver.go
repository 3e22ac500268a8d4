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

	"github.com/pingcap/log"
	cerrors "github.com/pingcap/vtnc/pkg/errors"
	"github.com/pingcap/vtnc/tc/model"
	"go.uber.org/zap"
)

// Conn is the connection of a driver to one controller.
type Conn interface {
	Close() error
}

// Driver serves every controller of one controller type.
// A Driver is shared by all of its controllers, the per controller state
// lives in Controller.
type Driver interface {
	Type() model.ControllerType
	// Connect opens a connection to the controller described by info.
	Connect(info model.ControllerInfo) (Conn, error)
	// Ping checks the controller is reachable.
	Ping(ctx context.Context, ctr *Controller) error

	// Vote validates and stages the changes on the controller.
	Vote(ctx context.Context, ctr *Controller, changes []model.ConfigChange) error
	// Commit applies the changes staged by Vote.
	Commit(ctx context.Context, ctr *Controller) error
	// Abort drops the staged changes, and reverts them if Commit applied
	// some. It is a no-op when nothing is staged.
	Abort(ctx context.Context, ctr *Controller) error

	// GetCommand returns the command serving a key type.
	GetCommand(kt model.KeyType) (Command, bool)
}

// Command performs the operations of one key type on a controller.
type Command interface {
	KeyType() model.KeyType
	// Validate checks the attributes of a node before it is sent.
	Validate(node model.ConfigNode) error
	Create(ctx context.Context, ctr *Controller, node model.ConfigNode) error
	Update(ctx context.Context, ctr *Controller, node model.ConfigNode) error
	Delete(ctx context.Context, ctr *Controller, node model.ConfigNode) error
	// FetchChildren reads the objects of this key type below the parent.
	// The parent key is "" for top-level key types.
	FetchChildren(ctx context.Context, ctr *Controller, parentKey string) ([]model.ConfigNode, error)
}

// CommandTable maps key types to the commands of a driver.
type CommandTable struct {
	mu   sync.RWMutex
	cmds map[model.KeyType]Command
}

// NewCommandTable creates an empty table.
func NewCommandTable() *CommandTable {
	return &CommandTable{cmds: make(map[model.KeyType]Command)}
}

// MustRegister registers a command and panics on duplicates.
func (t *CommandTable) MustRegister(cmd Command) {
	if ok := t.Register(cmd); !ok {
		log.Panic("duplicate command", zap.Stringer("keyType", cmd.KeyType()))
	}
}

// Register registers a command, it returns false if the key type already has one.
func (t *CommandTable) Register(cmd Command) (ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.cmds[cmd.KeyType()]; exists {
		return false
	}
	t.cmds[cmd.KeyType()] = cmd
	return true
}

// Get returns the command of a key type.
func (t *CommandTable) Get(kt model.KeyType) (Command, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cmd, ok := t.cmds[kt]
	return cmd, ok
}

// MustGet returns the command of a key type, or ErrKeyTypeNotSupported.
func (t *CommandTable) MustGet(kt model.KeyType, driver model.ControllerType) (Command, error) {
	cmd, ok := t.Get(kt)
	if !ok {
		return nil, cerrors.ErrKeyTypeNotSupported.GenWithStackByArgs(kt, driver)
	}
	return cmd, nil
}
