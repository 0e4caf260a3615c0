package version

import "strings"

// Version is the ironic-python-agent release the agent reports. Override at
// build time with:
// -ldflags "-X github.com/izzyreal/fakeipa/internal/version.Version=X.Y"
var Version = "1.22"

func Current() string {
	v := strings.TrimSpace(Version)
	if v == "" {
		return "dev"
	}
	return v
}
