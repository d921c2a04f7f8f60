// Package version reports the build stamped into portalmod binaries:
//
//	go build -ldflags "-X github.com/NicolasHaas/portalmod/pkg/version.tag=v1.0.0 \
//	  -X github.com/NicolasHaas/portalmod/pkg/version.commit=abc1234 \
//	  -X github.com/NicolasHaas/portalmod/pkg/version.date=2026-01-01"
package version

var (
	tag    string
	commit string
	date   string
)

// Info is the build as reported by /healthz and modctl version. Empty
// fields were not stamped.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Date    string `json:"date,omitempty"`
}

// Get returns the stamped build. Version falls back to the commit and then
// to "dev".
func Get() Info {
	info := Info{Version: tag, Commit: commit, Date: date}
	if info.Version == "" {
		info.Version = commit
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	return info
}

// String returns Get().Version.
func String() string { return Get().Version }

// Full describes the build in one line for startup logs.
func Full() string {
	info := Get()
	if info.Commit == "" || info.Commit == info.Version {
		if info.Date == "" {
			return info.Version
		}
		return info.Version + " built " + info.Date
	}
	return info.Version + " (" + info.Commit + ") built " + info.Date
}
