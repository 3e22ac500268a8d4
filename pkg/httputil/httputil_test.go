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

package httputil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	cerrors "github.com/pingcap/vtnc/pkg/errors"
	"github.com/pingcap/vtnc/pkg/security"
	"github.com/stretchr/testify/require"
)

func runServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		//nolint:errcheck
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/create", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusCreated)
		//nolint:errcheck
		w.Write([]byte(`{"id": "value"}`))
	})
	mux.HandleFunc("/auth", func(w http.ResponseWriter, req *http.Request) {
		user, pass, ok := req.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, req *http.Request) {
		<-req.Context().Done()
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestStatusCodeCreated(t *testing.T) {
	t.Parallel()

	server := runServer(t)
	cli, err := NewClient(nil, time.Second)
	require.NoError(t, err)
	respBody, err := cli.DoRequest(context.Background(), server.URL+"/create", http.MethodPost, nil, nil)
	require.NoError(t, err)
	require.Equal(t, []byte(`{"id": "value"}`), respBody)
}

func TestBasicAuthAndStatusError(t *testing.T) {
	t.Parallel()

	server := runServer(t)
	ctx := context.Background()

	cli, err := NewClient(&security.Credential{Username: "admin", Password: "secret"}, time.Second)
	require.NoError(t, err)
	_, err = cli.DoRequest(ctx, server.URL+"/auth", http.MethodGet, nil, nil)
	require.NoError(t, err)

	anonymous, err := NewClient(nil, time.Second)
	require.NoError(t, err)
	_, err = anonymous.DoRequest(ctx, server.URL+"/auth", http.MethodGet, nil, nil)
	require.True(t, cerrors.Is(err, cerrors.ErrTransportRequestFailed))
	require.Equal(t, http.StatusUnauthorized, StatusCode(err))

	_, err = anonymous.DoRequest(ctx, server.URL+"/missing/", http.MethodGet, nil, nil)
	require.NoError(t, err, "the root handler serves every path")
}

func TestRequestCancelled(t *testing.T) {
	t.Parallel()

	server := runServer(t)
	cli, err := NewClient(nil, 0)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = cli.DoRequest(ctx, server.URL+"/slow", http.MethodGet, nil, nil)
	require.Error(t, err)
	require.Equal(t, 0, StatusCode(err))
}
