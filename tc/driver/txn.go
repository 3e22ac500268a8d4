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
	"sort"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/failpoint"
	"github.com/pingcap/log"
	cerrors "github.com/pingcap/vtnc/pkg/errors"
	"github.com/pingcap/vtnc/tc/cache"
	"github.com/pingcap/vtnc/tc/model"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// step is one command sent to the controller.
type step struct {
	op   model.ConfigOp
	node model.ConfigNode
	// prior is the value before the step, set for updates.
	prior model.ConfigNode
	// removed holds the nodes a delete removes, children before parents.
	removed []model.ConfigNode
}

// Txn is the transaction staged on one controller by a vote.
type Txn struct {
	steps   []step
	applied int
	before  *cache.KeyTree
	after   *cache.KeyTree
}

// Len returns the number of commands the transaction sends.
func (t *Txn) Len() int {
	return len(t.steps)
}

// After returns the key tree the controller has once the transaction is committed.
func (t *Txn) After() *cache.KeyTree {
	return t.after
}

// Base implements the transaction part of Driver on top of a CommandTable.
// Deletes are sent first, children before parents, then creates and updates,
// parents before children.
type Base struct {
	tp       model.ControllerType
	commands *CommandTable
}

// NewBase creates a Base for the driver type.
func NewBase(tp model.ControllerType, commands *CommandTable) Base {
	return Base{tp: tp, commands: commands}
}

// Type implements Driver.
func (b Base) Type() model.ControllerType {
	return b.tp
}

// GetCommand implements Driver.
func (b Base) GetCommand(kt model.KeyType) (Command, bool) {
	return b.commands.Get(kt)
}

// Vote implements Driver. The caller holds the entry lock.
func (b Base) Vote(ctx context.Context, ctr *Controller, changes []model.ConfigChange) error {
	if ctr.Txn() != nil {
		return cerrors.ErrInvalidState.GenWithStackByArgs("controller " + ctr.Name() + " has a staged transaction")
	}
	failpoint.Inject("DriverVoteError", func() {
		failpoint.Return(cerrors.ErrDriverOperAbort.GenWithStackByArgs(ctr.Name(), "injected vote error"))
	})

	sorted := append([]model.ConfigChange(nil), changes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return lessStep(sorted[i], sorted[j])
	})

	before := ctr.KeyTree()
	after := before.Clone()
	txn := &Txn{before: before, after: after}
	for _, ch := range sorted {
		cmd, err := b.commands.MustGet(ch.Node.KeyType, b.tp)
		if err != nil {
			return abortVote(ctr, err)
		}
		if err := cmd.Validate(ch.Node); err != nil {
			return abortVote(ctr, err)
		}
		st := step{op: ch.Op, node: ch.Node}
		existing, exists := after.Get(ch.Node.KeyType, ch.Node.Key)
		switch ch.Op {
		case model.OpCreate:
			if exists {
				return abortVote(ctr, errors.Errorf("%s already exists", ch.Node))
			}
			if err := after.Put(ch.Node); err != nil {
				return abortVote(ctr, err)
			}
		case model.OpUpdate:
			if !exists {
				return abortVote(ctr, errors.Errorf("%s does not exist", ch.Node))
			}
			st.prior = existing
			if err := after.Put(ch.Node); err != nil {
				return abortVote(ctr, err)
			}
		case model.OpDelete:
			if !exists {
				return abortVote(ctr, errors.Errorf("%s does not exist", ch.Node))
			}
			st.removed = after.Delete(ch.Node.KeyType, ch.Node.Key)
		default:
			return abortVote(ctr, cerrors.ErrInvalidArgument.GenWithStackByArgs("config operation " + ch.Op.String()))
		}
		txn.steps = append(txn.steps, st)
	}
	ctr.setTxn(txn)
	return nil
}

// lessStep orders deletes before other changes, deletes bottom-up and the
// others top-down.
func lessStep(a, b model.ConfigChange) bool {
	aDel, bDel := a.Op == model.OpDelete, b.Op == model.OpDelete
	if aDel != bDel {
		return aDel
	}
	if aDel {
		return a.Node.KeyType.Depth() > b.Node.KeyType.Depth()
	}
	return a.Node.KeyType.Depth() < b.Node.KeyType.Depth()
}

func abortVote(ctr *Controller, err error) error {
	if cerrors.Is(err, cerrors.ErrDriverOperAbort) {
		return err
	}
	return cerrors.WrapError(cerrors.ErrDriverOperAbort, err, ctr.Name(), err.Error())
}

// Commit implements Driver. The caller holds the entry lock.
func (b Base) Commit(ctx context.Context, ctr *Controller) error {
	txn := ctr.Txn()
	if txn == nil {
		return cerrors.ErrInvalidState.GenWithStackByArgs("controller " + ctr.Name() + " has nothing to commit")
	}
	for txn.applied < len(txn.steps) {
		st := txn.steps[txn.applied]
		if err := b.send(ctx, ctr, st.op, st.node); err != nil {
			log.Warn("commit failed on controller",
				zap.String("controller", ctr.Name()),
				zap.Stringer("node", st.node),
				zap.Stringer("op", st.op),
				zap.Error(err))
			return errors.Trace(err)
		}
		txn.applied++
		failpoint.Inject("DriverCommitStepError", func() {
			failpoint.Return(cerrors.ErrDriverFailure.GenWithStackByArgs(ctr.Name()))
		})
	}
	ctr.SetKeyTree(txn.after)
	ctr.lastCommit.Store(time.Now())
	ctr.setTxn(nil)
	return nil
}

// Abort implements Driver. The caller holds the entry lock. Applied steps
// are reverted last to first, and the key tree is the one before the vote.
func (b Base) Abort(ctx context.Context, ctr *Controller) error {
	txn := ctr.Txn()
	if txn == nil {
		return nil
	}
	ctr.setTxn(nil)
	var err error
	for i := txn.applied - 1; i >= 0; i-- {
		err = multierr.Append(err, b.revert(ctx, ctr, txn.steps[i]))
	}
	ctr.SetKeyTree(txn.before)
	if err != nil {
		log.Error("controller may be left partially committed",
			zap.String("controller", ctr.Name()),
			zap.Int("applied", txn.applied),
			zap.Error(err))
	}
	return errors.Trace(err)
}

func (b Base) revert(ctx context.Context, ctr *Controller, st step) error {
	switch st.op {
	case model.OpCreate:
		return b.send(ctx, ctr, model.OpDelete, st.node)
	case model.OpUpdate:
		return b.send(ctx, ctr, model.OpUpdate, st.prior)
	case model.OpDelete:
		var err error
		// removed is bottom-up, recreate top-down.
		for i := len(st.removed) - 1; i >= 0; i-- {
			err = multierr.Append(err, b.send(ctx, ctr, model.OpCreate, st.removed[i]))
		}
		return err
	}
	return nil
}

func (b Base) send(ctx context.Context, ctr *Controller, op model.ConfigOp, node model.ConfigNode) error {
	cmd, err := b.commands.MustGet(node.KeyType, b.tp)
	if err != nil {
		return err
	}
	switch op {
	case model.OpCreate:
		return cmd.Create(ctx, ctr, node)
	case model.OpUpdate:
		return cmd.Update(ctx, ctr, node)
	case model.OpDelete:
		return cmd.Delete(ctx, ctr, node)
	}
	return cerrors.ErrInvalidArgument.GenWithStackByArgs("config operation " + op.String())
}
