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

package version

import (
	"testing"

	cerrors "github.com/pingcap/vtnc/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestCheckControllerVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		version string
		ok      bool
	}{
		{"", true},
		{"1.0.0", true},
		{"v2.4.1", true},
		{"v1.2.0-12-gabcdef01-dirty", true},
		{"0.9.9", false},
		{"3.0.0", false},
		{"not-a-version", false},
	}
	for _, tc := range tests {
		err := CheckControllerVersion("odc1", tc.version)
		if tc.ok {
			require.NoError(t, err, tc.version)
			continue
		}
		require.True(t, cerrors.Is(err, cerrors.ErrInvalidArgument), tc.version)
	}
}

func TestReleaseSemver(t *testing.T) {
	cases := []struct{ releaseVersion, releaseSemver string }{
		{"None", ""},
		{"HEAD", ""},
		{"v1.1.0", "1.1.0"},
		{"v1.1.0-3-g3f6a5c2a", "1.1.0"},
		{"v1.2.0-alpha-dirty", "1.2.0-alpha"},
	}
	oldReleaseVersion := ReleaseVersion
	defer func() { ReleaseVersion = oldReleaseVersion }()
	for _, c := range cases {
		ReleaseVersion = c.releaseVersion
		require.Equal(t, c.releaseSemver, ReleaseSemver(), c.releaseVersion)
	}
	require.Contains(t, GetRawInfo(), "Controller API: [1.0.0, 3.0.0)")
}
