// Package version describes the running build.
package version

import (
	"runtime"
	"runtime/debug"

	"go.uber.org/zap"
)

// App names the service in /version and the startup log.
const App = "dnd-relay"

// Set with -ldflags, e.g.
// -X github.com/ghabxph/dnd-relay/internal/version.GitHash=$(git rev-parse --short HEAD)
var (
	Version   = "1.0.0"
	BuildTime = "development"
	GitHash   = ""
)

// Info is the build description served by /version.
type Info struct {
	App       string `json:"app"`
	Version   string `json:"version"`
	GitHash   string `json:"git_hash,omitempty"`
	Dirty     bool   `json:"dirty,omitempty"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get returns the current build. Without an -ldflags hash it falls back to
// the VCS revision the go tool embeds.
func Get() Info {
	info := Info{
		App:       App,
		Version:   Version,
		GitHash:   GitHash,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
	if info.GitHash == "" {
		info.GitHash, info.Dirty = vcsRevision()
	}
	return info
}

// String renders e.g. "1.0.0-dev+3f9c2ab" or "1.0.0+3f9c2ab.dirty".
func (i Info) String() string {
	s := i.Version
	if i.BuildTime == "development" {
		s += "-dev"
	}
	if i.GitHash != "" {
		s += "+" + short(i.GitHash)
		if i.Dirty {
			s += ".dirty"
		}
	}
	return s
}

// Fields are the build attributes logged at startup.
func (i Info) Fields() []zap.Field {
	return []zap.Field{
		zap.String("version", i.Version),
		zap.String("git_hash", i.GitHash),
		zap.Bool("dirty", i.Dirty),
		zap.String("build_time", i.BuildTime),
		zap.String("go_version", i.GoVersion),
	}
}

func short(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}

func vcsRevision() (string, bool) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "", false
	}
	var rev string
	var dirty bool
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	return rev, dirty && rev != ""
}
