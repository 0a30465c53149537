// Package version holds build information injected at link time.
package version

// Build information. Overridden via -ldflags at release build:
//
//	-X github.com/kailas-cloud/tripmatch/internal/version.Version=v0.3.0
//	-X github.com/kailas-cloud/tripmatch/internal/version.Commit=abc1234
var (
	Version = "dev"
	Commit  = "unknown"
)
