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
	"testing"

	"github.com/pingcap/failpoint"
	"github.com/pingcap/vtnc/tc/model"
	"github.com/stretchr/testify/require"
)

// Not parallel: the failpoint is process wide, and it only fires in a tree
// rewritten by `make failpoint-enable`.
func TestCommitAfterVoteFailpointAbortsEveryController(t *testing.T) {
	env := newTestEnv(t, nil)
	b1 := env.addController(t, "c1")
	b2 := env.addController(t, "c2")
	cid := env.acquire(t, 1)

	fp := "github.com/pingcap/vtnc/tc/coordinator/CommitAfterVoteError"
	require.NoError(t, failpoint.Enable(fp, "1*return(true)"))
	defer func() {
		_ = failpoint.Disable(fp)
	}()

	resp := env.exec(&model.Request{
		Operation: model.OpCandidateCommit, SessionID: 1, ConfigID: cid,
		Changes: []model.ConfigChange{
			create("c1", model.KeyTypeVTN, "v1"),
			create("c2", model.KeyTypeVTN, "v2"),
		},
	})
	if resp.Status == model.OperSuccess {
		t.Skip("failpoints are not enabled")
	}
	require.Equal(t, model.SystemFailure, resp.Status, "%+v", resp.Err)
	require.Equal(t, 1, env.drv.abortCount("c1"))
	require.Equal(t, 1, env.drv.abortCount("c2"))
	require.Empty(t, b1.Nodes())
	require.Empty(t, b2.Nodes())
	require.Zero(t, env.co.SessionStats().Audits)
	require.False(t, env.co.SessionStats().Writing)

	// the failpoint fired once, the same commit goes through now.
	resp = env.exec(&model.Request{
		Operation: model.OpCandidateCommit, SessionID: 1, ConfigID: cid,
		Changes: []model.ConfigChange{
			create("c1", model.KeyTypeVTN, "v1"),
			create("c2", model.KeyTypeVTN, "v2"),
		},
	})
	require.Equal(t, model.OperSuccess, resp.Status, "%+v", resp.Err)
	require.Len(t, b1.Nodes(), 1)
	require.Len(t, b2.Nodes(), 1)
}
