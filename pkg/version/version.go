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
	"strings"

	"github.com/coreos/go-semver/semver"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// Version information, set by -ldflags at build time.
var (
	ReleaseVersion = "None"
	BuildTS        = "None"
	GitHash        = "None"
	GitBranch      = "None"
	GoVersion      = "None"
)

// ReleaseSemver returns a valid Semantic Versions or an empty if the
// ReleaseVersion is not set at compile time.
func ReleaseSemver() string {
	s := removeVAndHash(ReleaseVersion)
	v, err := semver.NewVersion(s)
	if err != nil {
		return ""
	}
	return v.String()
}

// LogVersionInfo prints the vtnc version information.
func LogVersionInfo() {
	log.Info("Welcome to the VTN coordinator",
		zap.String("release-version", ReleaseVersion),
		zap.String("git-hash", GitHash),
		zap.String("git-branch", GitBranch),
		zap.String("utc-build-time", BuildTS),
		zap.String("go-version", GoVersion),
		zap.Stringer("min-controller-version", MinControllerVersion),
	)
}

// GetRawInfo returns basic version information string.
func GetRawInfo() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Release Version: %s\n", ReleaseVersion)
	fmt.Fprintf(&b, "Git Commit Hash: %s\n", GitHash)
	fmt.Fprintf(&b, "Git Branch: %s\n", GitBranch)
	fmt.Fprintf(&b, "UTC Build Time: %s\n", BuildTS)
	fmt.Fprintf(&b, "Go Version: %s\n", GoVersion)
	fmt.Fprintf(&b, "Controller API: [%s, %s)\n", MinControllerVersion, maxControllerVersion)
	return b.String()
}
