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
	"testing"

	"github.com/pingcap/failpoint"
	cerrors "github.com/pingcap/vtnc/pkg/errors"
	"github.com/pingcap/vtnc/tc/model"
	"github.com/stretchr/testify/require"
)

// The failpoints only fire in a tree rewritten by `make failpoint-enable`.
// These tests do not call t.Parallel: a failpoint is process wide.

const fpPrefix = "github.com/pingcap/vtnc/tc/driver/"

func enableFailpoint(t *testing.T, name, term string) {
	require.NoError(t, failpoint.Enable(fpPrefix+name, term))
	t.Cleanup(func() {
		_ = failpoint.Disable(fpPrefix + name)
	})
}

func TestVoteFailpoint(t *testing.T) {
	rec := &recorder{}
	b := newTestBase(rec, model.KeyTypeVTN)
	ctr := newTestController(t)
	enableFailpoint(t, "DriverVoteError", "1*return(true)")

	err := b.Vote(context.Background(), ctr, []model.ConfigChange{
		change(model.OpCreate, model.KeyTypeVTN, "v"),
	})
	if err == nil {
		t.Skip("failpoints are not enabled")
	}
	require.True(t, cerrors.Is(err, cerrors.ErrDriverOperAbort))
	require.Nil(t, ctr.Txn())
	require.Empty(t, rec.take())
}

func TestCommitStepFailpointIsReverted(t *testing.T) {
	rec := &recorder{}
	b := newTestBase(rec, model.KeyTypeVTN, model.KeyTypeVBridge)
	ctr := newTestController(t)
	before := ctr.KeyTree()
	ctx := context.Background()

	require.NoError(t, b.Vote(ctx, ctr, []model.ConfigChange{
		change(model.OpCreate, model.KeyTypeVBridge, "v", "br"),
		change(model.OpCreate, model.KeyTypeVTN, "v"),
	}))
	enableFailpoint(t, "DriverCommitStepError", "1*return(true)")
	err := b.Commit(ctx, ctr)
	if err == nil {
		t.Skip("failpoints are not enabled")
	}
	require.True(t, cerrors.Is(err, cerrors.ErrDriverFailure))
	require.Equal(t, []string{"create VTN:v"}, rec.take())
	require.Same(t, before, ctr.KeyTree())

	require.NoError(t, b.Abort(ctx, ctr))
	require.Equal(t, []string{"delete VTN:v"}, rec.take())
	require.Nil(t, ctr.Txn())
	require.Same(t, before, ctr.KeyTree())
}
