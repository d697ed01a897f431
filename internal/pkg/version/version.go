// Package version provides the build information printed by the --version flag.
package version

import (
	"runtime"
)

const DevVersionValue = "dev"

// Build information, set by ldflags, for example:
// -X github.com/keboola/dbsnap/internal/pkg/version.BuildVersion=v1.0.0.
// nolint: gochecknoglobals
var (
	BuildVersion = DevVersionValue
	GitCommit    = "-"
	BuildDate    = "-"
)

// Version for --version flag.
func Version() string {
	return "Version:    " + BuildVersion + "\n" +
		"Git commit: " + GitCommit + "\n" +
		"Build date: " + BuildDate + "\n" +
		"Go version: " + runtime.Version() + "\n" +
		"Os/Arch:    " + runtime.GOOS + "/" + runtime.GOARCH + "\n"
}

func IsDevVersion() bool {
	return BuildVersion == DevVersionValue
}
