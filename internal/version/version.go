// Package version provides build-time metadata for the assetflow binary.
// Version, GitCommit, and BuildDate are injected at compile time via -ldflags.
package version

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/hupe1980/assetflow/internal/supervisor"
)

// Build-time values injected via -ldflags.
var (
	version   = "dev"
	gitCommit = "none"
	buildDate = "unknown"
)

// Info holds the build metadata for the binary.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`

	// Supervised reports whether `start` and the supervised default task
	// are available on this platform.
	Supervised bool `json:"supervised"`
}

// GetInfo returns the current build information. A binary installed with
// `go install module@version` carries no ldflags; its module version is
// used instead.
func GetInfo() Info {
	v := version
	if v == "dev" {
		v = moduleVersion(debug.ReadBuildInfo)
	}

	return Info{
		Version:    v,
		GitCommit:  shortCommit(gitCommit),
		BuildDate:  buildDate,
		GoVersion:  runtime.Version(),
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		Supervised: supervisor.Detect().Supervise,
	}
}

// String returns a human-readable single-line version string.
func (i Info) String() string {
	mode := "unsupervised"
	if i.Supervised {
		mode = "supervised"
	}

	return fmt.Sprintf("assetflow %s (commit: %s, built: %s, %s %s, %s)",
		i.Version, i.GitCommit, i.BuildDate, i.GoVersion, i.Platform, mode)
}

// JSON returns the version info as indented JSON.
func (i Info) JSON() (string, error) {
	data, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling version info: %w", err)
	}

	return string(data), nil
}

// moduleVersion returns the main module version recorded by the Go
// toolchain, or "dev" for local builds.
func moduleVersion(read func() (*debug.BuildInfo, bool)) string {
	bi, ok := read()
	if !ok || bi.Main.Version == "" || bi.Main.Version == "(devel)" {
		return "dev"
	}

	return bi.Main.Version
}

// shortCommit truncates a commit SHA to 7 characters.
func shortCommit(commit string) string {
	if len(commit) > 7 {
		return commit[:7]
	}

	return commit
}
