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

package memory

import (
	"context"
	"testing"

	cerrors "github.com/pingcap/vtnc/pkg/errors"
	"github.com/pingcap/vtnc/tc/driver"
	"github.com/pingcap/vtnc/tc/model"
	"github.com/stretchr/testify/require"
)

func connect(t *testing.T, d *Driver, name string) *driver.Controller {
	info := model.ControllerInfo{Name: name, Type: model.ControllerTypeMemory, Address: name}
	conn, err := d.Connect(info)
	require.NoError(t, err)
	return driver.NewController(info, conn)
}

func create(kt model.KeyType, names ...string) model.ConfigChange {
	return model.ConfigChange{Controller: "c1", Op: model.OpCreate, Node: model.NewConfigNode(kt, nil, names...)}
}

func TestCommitAndFetch(t *testing.T) {
	t.Parallel()

	d := NewDriver()
	ctr := connect(t, d, "c1")
	ctx := context.Background()
	require.NoError(t, d.Ping(ctx, ctr))

	require.NoError(t, d.Vote(ctx, ctr, []model.ConfigChange{
		create(model.KeyTypeVBrIf, "v", "b", "i1"),
		create(model.KeyTypeVBrIf, "v", "b", "i2"),
		create(model.KeyTypeVBridge, "v", "b"),
		create(model.KeyTypeVTN, "v"),
		create(model.KeyTypeVBrVlanMap, "v", "b", "10"),
	}))
	require.NoError(t, d.Commit(ctx, ctr))
	require.Len(t, d.Backend("c1").Nodes(), 5)
	require.Equal(t, 5, ctr.KeyTree().Len())

	cmd, ok := d.GetCommand(model.KeyTypeVTN)
	require.True(t, ok)
	vtns, err := cmd.FetchChildren(ctx, ctr, "")
	require.NoError(t, err)
	require.Len(t, vtns, 1)
	cmd, _ = d.GetCommand(model.KeyTypeVBrIf)
	ifs, err := cmd.FetchChildren(ctx, ctr, "v/b")
	require.NoError(t, err)
	require.Len(t, ifs, 2)
	cmd, _ = d.GetCommand(model.KeyTypeVTermIf)
	none, err := cmd.FetchChildren(ctx, ctr, "v/b")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestAbortRevertsBackend(t *testing.T) {
	t.Parallel()

	d := NewDriver()
	ctr := connect(t, d, "c1")
	ctx := context.Background()
	backend := d.Backend("c1")

	bad := create(model.KeyTypeVBridge, "v", "b")
	backend.FailOn(model.OpCreate, bad.Node, cerrors.ErrDriverBusy.GenWithStackByArgs("c1"))
	require.NoError(t, d.Vote(ctx, ctr, []model.ConfigChange{create(model.KeyTypeVTN, "v"), bad}))
	err := d.Commit(ctx, ctr)
	require.Equal(t, model.SystemBusy, model.StatusFromError(err))
	require.Len(t, backend.Nodes(), 1)

	require.NoError(t, d.Abort(ctx, ctr))
	require.Empty(t, backend.Nodes())
	require.Equal(t, 0, ctr.KeyTree().Len())

	backend.FailOn(model.OpCreate, bad.Node, nil)
	require.NoError(t, d.Vote(ctx, ctr, []model.ConfigChange{create(model.KeyTypeVTN, "v"), bad}))
	require.NoError(t, d.Commit(ctx, ctr))
	require.Len(t, backend.Nodes(), 2)
}

func TestBackendDown(t *testing.T) {
	t.Parallel()

	d := NewDriver()
	ctr := connect(t, d, "c1")
	ctx := context.Background()
	d.Backend("c1").SetDown(true)

	err := d.Ping(ctx, ctr)
	require.True(t, cerrors.Is(err, cerrors.ErrControllerDisconnected))
	err = d.Vote(ctx, ctr, []model.ConfigChange{create(model.KeyTypeVTN, "v")})
	require.Equal(t, model.SystemFailure, model.StatusFromError(err))
	require.Nil(t, ctr.Txn())

	cmd, _ := d.GetCommand(model.KeyTypeVTN)
	_, err = cmd.FetchChildren(ctx, ctr, "")
	require.Error(t, err)

	d.Backend("c1").SetDown(false)
	require.NoError(t, d.Ping(ctx, ctr))
	require.Greater(t, d.Backend("c1").Calls(), int64(0))
}

func TestInvalidVlanMapIsRejected(t *testing.T) {
	t.Parallel()

	d := NewDriver()
	ctr := connect(t, d, "c1")
	err := d.Vote(context.Background(), ctr, []model.ConfigChange{
		create(model.KeyTypeVTN, "v"),
		create(model.KeyTypeVBridge, "v", "b"),
		create(model.KeyTypeVBrVlanMap, "v", "b", "5000"),
	})
	require.Equal(t, model.OperAbort, model.StatusFromError(err))
}
