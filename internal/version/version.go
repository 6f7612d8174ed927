package version

// Set via -ldflags "-X github.com/neox5/querygauge/internal/version.version=..."
var version = "dev"

// String returns the build version.
func String() string {
	return version
}
