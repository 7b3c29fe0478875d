package build

// Set via -ldflags at release build time; "dev"/"none"/"unknown" mark a
// local, unstamped build (go run, go test, or a teacher-copy that skipped
// the release pipeline).
var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

// FullVersion returns "Version+Commit", e.g. "0.4.2+a1b2c3d", as reported
// by the CLI's --version flag and the /healthz version field.
func FullVersion() string {
	return Version + "+" + Commit
}

// UserAgent is the default User-Agent sent by the fetcher and browser pool
// when no override is configured; it embeds FullVersion so operators can
// correlate abuse reports with a specific release.
func UserAgent() string {
	return "webharvest/" + FullVersion() + " (+https://github.com/webharvest/webharvest)"
}
