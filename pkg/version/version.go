package version

import "fmt"

// Build holds the build identifier, injected via -ldflags "-X peer-hub/pkg/version.Build=...".
var Build = "dev"

// Banner is the one-line identification both binaries log at startup.
func Banner(component string) string {
	return fmt.Sprintf("peer-hub %s version=%s", component, Build)
}
