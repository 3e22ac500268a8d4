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

package odc

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/jarcoal/httpmock"
	cerrors "github.com/pingcap/vtnc/pkg/errors"
	"github.com/pingcap/vtnc/tc/driver"
	"github.com/pingcap/vtnc/tc/model"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

const base = "http://10.0.0.1:8181/controller/nb/v2/vtn/default"

func newTestDriver(t *testing.T) (*Driver, *httpmock.MockTransport, *driver.Controller) {
	mock := httpmock.NewMockTransport()
	d := NewDriver(Config{
		RequestTimeout: time.Second,
		MaxRetries:     2,
		RetryBaseDelay: time.Millisecond,
	}, WithTransport(mock))
	info := model.ControllerInfo{
		Name: "odc1", Type: model.ControllerTypeODC,
		Address: "10.0.0.1", Port: 8181, Username: "admin", Password: "secret",
	}
	conn, err := d.Connect(info)
	require.NoError(t, err)
	return d, mock, driver.NewController(info, conn)
}

func TestPaths(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/vtns/v", objectPath(model.KeyTypeVTN, "v"))
	require.Equal(t, "/vtns/v/vbridges/b/interfaces/i", objectPath(model.KeyTypeVBrIf, "v/b/i"))
	require.Equal(t, "/vtns/v/vterminals/t/interfaces/i", objectPath(model.KeyTypeVTermIf, "v/t/i"))
	require.Equal(t, "/vtns/v/vbridges/b/vlanmaps", collectionPath(model.KeyTypeVBrVlanMap, "v/b"))
	require.Equal(t, "/vtns", collectionPath(model.KeyTypeVTN, ""))
	require.Equal(t, "/vtns/a%20b", objectPath(model.KeyTypeVTN, "a b"))
}

func TestCommitSendsRequests(t *testing.T) {
	t.Parallel()

	d, mock, ctr := newTestDriver(t)
	ctx := context.Background()

	var bodies []map[string]interface{}
	record := func(req *http.Request) (*http.Response, error) {
		user, pass, ok := req.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			return httpmock.NewStringResponse(http.StatusUnauthorized, ""), nil
		}
		raw, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		var body map[string]interface{}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, err
		}
		bodies = append(bodies, body)
		return httpmock.NewStringResponse(http.StatusCreated, ""), nil
	}
	mock.RegisterResponder(http.MethodPost, base+"/vtns/v", record)
	mock.RegisterResponder(http.MethodPost, base+"/vtns/v/vbridges/b/vlanmaps/10", record)
	mock.RegisterResponder(http.MethodPost, base+"/vtns/v/vbridges/b", record)

	vtn := model.NewConfigNode(model.KeyTypeVTN, map[string]string{"description": "tenant"}, "v")
	require.NoError(t, d.Vote(ctx, ctr, []model.ConfigChange{
		{Controller: "odc1", Op: model.OpCreate, Node: model.NewConfigNode(model.KeyTypeVBrVlanMap, nil, "v", "b", "10")},
		{Controller: "odc1", Op: model.OpCreate, Node: model.NewConfigNode(model.KeyTypeVBridge, nil, "v", "b")},
		{Controller: "odc1", Op: model.OpCreate, Node: vtn},
	}))
	require.Equal(t, 0, mock.GetTotalCallCount())
	require.NoError(t, d.Commit(ctx, ctr))

	require.Len(t, bodies, 3)
	require.Equal(t, "v", bodies[0]["name"])
	require.Equal(t, "tenant", bodies[0]["description"])
	require.Equal(t, "b", bodies[1]["name"])
	require.Equal(t, "10", bodies[2]["id"])
	require.Equal(t, 3, ctr.KeyTree().Len())
}

func TestStatusMapping(t *testing.T) {
	t.Parallel()

	d, mock, ctr := newTestDriver(t)
	ctx := context.Background()
	cmd, ok := d.GetCommand(model.KeyTypeVTN)
	require.True(t, ok)

	var busyCalls atomic.Int32
	mock.RegisterResponder(http.MethodPut, base+"/vtns/busy", func(*http.Request) (*http.Response, error) {
		if busyCalls.Inc() < 3 {
			return httpmock.NewStringResponse(http.StatusServiceUnavailable, "busy"), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, ""), nil
	})
	require.NoError(t, cmd.Update(ctx, ctr, model.NewConfigNode(model.KeyTypeVTN, nil, "busy")))
	require.Equal(t, int32(3), busyCalls.Load())

	mock.RegisterResponder(http.MethodPut, base+"/vtns/overloaded",
		httpmock.NewStringResponder(http.StatusServiceUnavailable, "busy"))
	err := cmd.Update(ctx, ctr, model.NewConfigNode(model.KeyTypeVTN, nil, "overloaded"))
	require.Equal(t, model.SystemBusy, model.StatusFromError(err))

	mock.RegisterResponder(http.MethodDelete, base+"/vtns/missing",
		httpmock.NewStringResponder(http.StatusNotFound, "not found"))
	err = cmd.Delete(ctx, ctr, model.NewConfigNode(model.KeyTypeVTN, nil, "missing"))
	require.Equal(t, model.OperAbort, model.StatusFromError(err))
	require.Equal(t, 1, mock.GetCallCountInfo()["DELETE "+base+"/vtns/missing"])

	mock.RegisterResponder(http.MethodPost, base+"/vtns/broken",
		httpmock.NewErrorResponder(errors.New("connection reset")))
	err = cmd.Create(ctx, ctr, model.NewConfigNode(model.KeyTypeVTN, nil, "broken"))
	require.Equal(t, model.SystemFailure, model.StatusFromError(err))
	require.Equal(t, 1, mock.GetCallCountInfo()["POST "+base+"/vtns/broken"], "creates are not retried")

	mock.RegisterResponder(http.MethodDelete, base+"/vtns/broken",
		httpmock.NewErrorResponder(errors.New("connection reset")))
	err = cmd.Delete(ctx, ctr, model.NewConfigNode(model.KeyTypeVTN, nil, "broken"))
	require.True(t, cerrors.Is(err, cerrors.ErrDriverFailure))
	require.Equal(t, 3, mock.GetCallCountInfo()["DELETE "+base+"/vtns/broken"])
}

func TestFetchChildren(t *testing.T) {
	t.Parallel()

	d, mock, ctr := newTestDriver(t)
	ctx := context.Background()
	mock.RegisterResponder(http.MethodGet, base+"/vtns/v/vbridges",
		httpmock.NewStringResponder(http.StatusOK,
			`{"vbridge":[{"name":"b1","description":"first","ageInterval":600,"faults":{"x":1}},{"name":"b2"}]}`))
	mock.RegisterResponder(http.MethodGet, base+"/vtns/v/vbridges/b1/vlanmaps",
		httpmock.NewStringResponder(http.StatusOK, `{"vlanmap":[{"id":"0","vlan":0}]}`))
	mock.RegisterResponder(http.MethodGet, base+"/vtns",
		httpmock.NewStringResponder(http.StatusOK, `{}`))

	cmd, _ := d.GetCommand(model.KeyTypeVBridge)
	nodes, err := cmd.FetchChildren(ctx, ctr, "v")
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	require.Equal(t, "v/b1", nodes[0].Key)
	require.Equal(t, "first", nodes[0].Attrs["description"])
	require.Equal(t, "600", nodes[0].Attrs["ageInterval"])
	require.NotContains(t, nodes[0].Attrs, "faults")
	require.NotContains(t, nodes[0].Attrs, "name")

	cmd, _ = d.GetCommand(model.KeyTypeVBrVlanMap)
	nodes, err = cmd.FetchChildren(ctx, ctr, "v/b1")
	require.NoError(t, err)
	require.Equal(t, "v/b1/0", nodes[0].Key)
	require.Equal(t, "0", nodes[0].Attrs["vlan"])

	cmd, _ = d.GetCommand(model.KeyTypeVTN)
	nodes, err = cmd.FetchChildren(ctx, ctr, "")
	require.NoError(t, err)
	require.Empty(t, nodes)
}

func TestFetchChildrenRejectsBadNames(t *testing.T) {
	t.Parallel()

	d, mock, ctr := newTestDriver(t)
	ctx := context.Background()
	mock.RegisterResponder(http.MethodGet, base+"/vtns",
		httpmock.NewStringResponder(http.StatusOK, `{"vtn":[{"name":1000000}]}`))
	mock.RegisterResponder(http.MethodGet, base+"/vtns/v/vbridges",
		httpmock.NewStringResponder(http.StatusOK, `{"vbridge":[{"name":"a/b"}]}`))
	mock.RegisterResponder(http.MethodGet, base+"/vtns/v/vterminals",
		httpmock.NewStringResponder(http.StatusOK, `{"vterminal":[{"name":""}]}`))
	mock.RegisterResponder(http.MethodGet, base+"/vtns/v/vbridges/b/vlanmaps",
		httpmock.NewStringResponder(http.StatusOK, `{"vlanmap":[{"id":"ANY.0"}]}`))

	cases := []struct {
		kt        model.KeyType
		parentKey string
	}{
		{model.KeyTypeVTN, ""},
		{model.KeyTypeVBridge, "v"},
		{model.KeyTypeVTerminal, "v"},
		{model.KeyTypeVBrVlanMap, "v/b"},
	}
	for _, c := range cases {
		cmd, ok := d.GetCommand(c.kt)
		require.True(t, ok)
		nodes, err := cmd.FetchChildren(ctx, ctr, c.parentKey)
		require.True(t, cerrors.Is(err, cerrors.ErrDriverFailure), "%s: %v", c.kt, err)
		require.Nil(t, nodes)
	}
}

func TestPingAndUnsupportedKeyType(t *testing.T) {
	t.Parallel()

	d, mock, ctr := newTestDriver(t)
	ctx := context.Background()
	mock.RegisterResponder(http.MethodGet, "http://10.0.0.1:8181/controller/nb/v2/vtn/version",
		httpmock.NewStringResponder(http.StatusOK, `{"api":2}`))
	require.NoError(t, d.Ping(ctx, ctr))

	_, ok := d.GetCommand(model.KeyTypeBoundary)
	require.False(t, ok)
	err := d.Vote(ctx, ctr, []model.ConfigChange{{
		Controller: "odc1", Op: model.OpCreate, Node: model.NewConfigNode(model.KeyTypeBoundary, nil, "b"),
	}})
	require.True(t, cerrors.Is(err, cerrors.ErrDriverOperAbort))
}
