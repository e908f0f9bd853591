/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version provides build information.
package version

import (
	"fmt"
	"runtime"
)

// Version is set at build time via ldflags:
//
//	-X github.com/friendsincode/dawnchorus/internal/version.Version=X.Y.Z
var Version = "0.3.0"

// Commit is the git revision, also set via ldflags.
var Commit = "unknown"

// Info is the build information reported by the CLI and the health endpoint.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
}

// Get returns the build information of the running binary.
func Get() Info {
	return Info{Version: Version, Commit: Commit, GoVersion: runtime.Version()}
}

// String formats the build information on one line.
func (i Info) String() string {
	return fmt.Sprintf("dawnchorus %s (%s, %s)", i.Version, i.Commit, i.GoVersion)
}
