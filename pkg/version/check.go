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
	"fmt"
	"regexp"
	"strings"

	"github.com/coreos/go-semver/semver"
	cerrors "github.com/pingcap/vtnc/pkg/errors"
)

var (
	// MinControllerVersion is the oldest controller API the drivers speak.
	MinControllerVersion = semver.New("1.0.0")
	// maxControllerVersion is the upper bound (exclusive) of the supported
	// controller API.
	maxControllerVersion = semver.New("3.0.0")
)

var versionHash = regexp.MustCompile("-[0-9]+-g[0-9a-f]{7,}(-dev)?")

func removeVAndHash(v string) string {
	if v == "" {
		return v
	}
	v = versionHash.ReplaceAllLiteralString(v, "")
	v = strings.TrimSuffix(v, "-dirty")
	return strings.TrimPrefix(v, "v")
}

// CheckControllerVersion checks the API version configured for a controller.
// An empty version is accepted, the driver then assumes the newest API.
func CheckControllerVersion(controller, v string) error {
	if v == "" {
		return nil
	}
	ver, err := semver.NewVersion(removeVAndHash(v))
	if err != nil {
		return cerrors.WrapError(cerrors.ErrInvalidArgument, err,
			fmt.Sprintf("controller %s has invalid version %s", controller, v))
	}
	if ver.LessThan(*MinControllerVersion) {
		return cerrors.ErrInvalidArgument.GenWithStackByArgs(
			fmt.Sprintf("controller %s version %s is older than %s", controller, v, MinControllerVersion))
	}
	if !ver.LessThan(*maxControllerVersion) {
		return cerrors.ErrInvalidArgument.GenWithStackByArgs(
			fmt.Sprintf("controller %s version %s is newer than supported", controller, v))
	}
	return nil
}
