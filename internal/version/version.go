// Package version reports build information.
//
// Set at build time via ldflags:
//
//	go build -ldflags "-X github.com/rickgao/barsync/internal/version.Version=1.0.0 \
//	                   -X github.com/rickgao/barsync/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/barsync/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown" // UTC, ISO 8601
)

// String returns "VERSION (COMMIT) built TIME".
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}

// UserAgent is sent on outbound provider requests.
func UserAgent() string {
	return "barsync/" + Version
}
