/*
Copyright (C) 2022-2024 ApeCloud Co., Ltd

This file is part of KubeBlocks project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <http://www.gnu.org/licenses/>.
*/

package version

import (
	"fmt"
	"runtime"
)

// Version is the string that contains version
var Version = "edge"

// BuildDate is the string of binary build date
var BuildDate string

// GitCommit is the string of git commit ID
var GitCommit string

// GitVersion is the string of git version tag
var GitVersion string

// GetVersion returns the version, it gets it from "git describe --tags" or returns "v1-dev" when doing simple go build
func GetVersion() string {
	if len(Version) == 0 {
		return "v1-dev"
	}
	return Version
}

// Info returns the build details printed by the version command.
func Info() map[string]string {
	return map[string]string{
		"Version":   GetVersion(),
		"BuildDate": BuildDate,
		"GitCommit": GitCommit,
		"GitTag":    GitVersion,
		"GoVersion": runtime.Version(),
		"Compiler":  runtime.Compiler,
		"Platform":  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}
