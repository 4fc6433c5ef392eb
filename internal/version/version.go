// Package appversion carries the harness build stamp. Release builds set it
// with:
//
//	go build -ldflags="-X github.com/dantte-lp/vpnqa/internal/version.Version=v0.3.0 \
//	  -X github.com/dantte-lp/vpnqa/internal/version.GitCommit=abc1234 \
//	  -X github.com/dantte-lp/vpnqa/internal/version.BuildDate=2026-10-01T12:00:00Z" ./cmd/vpnqa
package appversion

import "fmt"

// Stamped at link time; local builds keep the placeholders.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info is the build stamp as recorded in run reports.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	GitCommit string `json:"git_commit" yaml:"git_commit"`
	BuildDate string `json:"build_date" yaml:"build_date"`
}

// Current returns the stamp of the running binary.
func Current() Info {
	return Info{Version: Version, GitCommit: GitCommit, BuildDate: BuildDate}
}

// Full renders the stamp for the version command, one field per line.
func Full(binary string) string {
	info := Current()
	return fmt.Sprintf("%s %s\n  commit:  %s\n  built:   %s",
		binary, info.Version, info.GitCommit, info.BuildDate)
}
