package version

import (
	"fmt"
	"runtime"
	"time"
)

// Set at build time via -ldflags "-X github.com/babelcloud/screenrec/internal/version.Version=..."
var (
	Version   = "dev"
	BuildTime = "unknown"
	CommitID  = "unknown"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// Get returns the build information of the binary.
func Get() BuildInfo {
	return BuildInfo{
		Version:   Version,
		GitCommit: CommitID,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// FormattedBuildTime renders an RFC 3339 build time for humans and returns
// anything else unchanged.
func (b BuildInfo) FormattedBuildTime() string {
	t, err := time.Parse(time.RFC3339, b.BuildTime)
	if err != nil {
		return b.BuildTime
	}
	return t.Format("Mon Jan 2 15:04:05 2006")
}

func (b BuildInfo) String() string {
	return fmt.Sprintf("screenrec version %s, build %s", b.Version, b.GitCommit)
}
