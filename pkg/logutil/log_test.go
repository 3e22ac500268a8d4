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

package logutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitLoggerAndSetLogLevel(t *testing.T) {
	f := filepath.Join(t.TempDir(), "test")
	cfg := &Config{
		Level: "warning",
		File:  f,
	}
	err := InitLogger(cfg)
	require.NoError(t, err)
	require.Equal(t, zapcore.WarnLevel, log.GetLevel())

	// Set a different level.
	require.NoError(t, SetLogLevel("info"))
	require.Equal(t, zapcore.InfoLevel, log.GetLevel())

	// Set the same level.
	require.NoError(t, SetLogLevel("INFO"))
	require.Equal(t, zapcore.InfoLevel, log.GetLevel())

	// Set an invalid level.
	require.Error(t, SetLogLevel("badlevel"))
}

func TestConfigAdjust(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	cfg.Adjust()
	require.Equal(t, "info", cfg.Level)
	require.Equal(t, defaultLogMaxSize, cfg.FileMaxSize)
	require.Equal(t, defaultLogMaxDays, cfg.FileMaxDays)

	require.Error(t, InitLogger(&Config{Level: "verbose"}))
}

func TestZapErrorFilter(t *testing.T) {
	t.Parallel()

	err := errors.New("test error")
	testCases := []struct {
		err      error
		filters  []error
		expected zap.Field
	}{
		{nil, []error{}, zap.Error(nil)},
		{err, []error{}, zap.Error(err)},
		{err, []error{context.Canceled}, zap.Error(err)},
		{err, []error{err}, zap.Error(nil)},
		{context.Canceled, []error{context.Canceled}, zap.Error(nil)},
		{errors.Annotate(context.Canceled, "annotate error"), []error{context.Canceled}, zap.Error(nil)},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.expected, ZapErrorFilter(tc.err, tc.filters...))
	}
}

func TestHideSensitive(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input  string
		output string
	}{
		{`password = "secret"`, `password = "******"`},
		{`{"name":"c1","password":"admin"}`, `{"name":"c1","password":"******"}`},
		{`Password: admin,`, `Password: ******,`},
		{`passwd=abc`, `passwd=******`},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.output, HideSensitive(tc.input))
	}
}
