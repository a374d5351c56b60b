package version

// Build variables injected via ldflags:
// -X 'github.com/mnemora/mnemora/pkg/version.Version=v1.0.0'
// -X 'github.com/mnemora/mnemora/pkg/version.CommitHash=abc123'
// -X 'github.com/mnemora/mnemora/pkg/version.BuildDate=2026-01-01T00:00:00Z'
var (
	Version    = "dev"
	CommitHash = "unknown"
	BuildDate  = "unknown"
)

// Info bundles the build identity for display and health output.
type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commit_hash"`
	BuildDate  string `json:"build_date"`
}

func Get() Info {
	return Info{Version: Version, CommitHash: CommitHash, BuildDate: BuildDate}
}
