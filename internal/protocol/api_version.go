package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

const APIVersionHeader = "X-OpenStack-Ironic-API-Version"

// APIVersion is an Ironic API microversion such as 1.62.
type APIVersion struct {
	Major int
	Minor int
}

var (
	MinIronicVersion           = APIVersion{Major: 1, Minor: 31}
	AgentVersionIronicVersion  = APIVersion{Major: 1, Minor: 36}
	AgentTokenIronicVersion    = APIVersion{Major: 1, Minor: 62}
	AgentVerifyCAIronicVersion = APIVersion{Major: 1, Minor: 68}
	MaxKnownIronicVersion      = AgentVerifyCAIronicVersion
)

func ParseAPIVersion(raw string) (APIVersion, error) {
	raw = strings.TrimSpace(raw)
	v := "v" + strings.TrimPrefix(raw, "v")
	if !semver.IsValid(v) || semver.Prerelease(v) != "" || semver.Build(v) != "" {
		return APIVersion{}, fmt.Errorf("invalid API version %q", raw)
	}
	parts := strings.Split(strings.TrimPrefix(v, "v"), ".")
	if len(parts) != 2 {
		return APIVersion{}, fmt.Errorf("invalid API version %q: want <major>.<minor>", raw)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return APIVersion{}, fmt.Errorf("invalid API major version %q: %w", raw, err)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return APIVersion{}, fmt.Errorf("invalid API minor version %q: %w", raw, err)
	}
	return APIVersion{Major: major, Minor: minor}, nil
}

func (v APIVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

func (v APIVersion) semver() string {
	return "v" + v.String()
}

// Compare returns -1, 0 or +1 like semver.Compare.
func (v APIVersion) Compare(other APIVersion) int {
	return semver.Compare(v.semver(), other.semver())
}

func (v APIVersion) AtLeast(other APIVersion) bool {
	return v.Compare(other) >= 0
}

func MinAPIVersion(a, b APIVersion) APIVersion {
	if a.Compare(b) <= 0 {
		return a
	}
	return b
}
