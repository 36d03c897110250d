// Package release contains pure domain logic for release runs.
// Following ADR-002: Values as Boundaries - this package contains NO I/O.
package release

import (
	"fmt"
	"regexp"
	"strconv"
)

// =============================================================================
// Version Tags
// =============================================================================

// VersionTag is a monotonically increasing image tag of the form "vN", N >= 1.
type VersionTag string

// versionTagPattern matches release version tags. Tags like "latest", "beta"
// or "v1.2" are not version tags and are ignored during resolution.
var versionTagPattern = regexp.MustCompile(`^v([0-9]+)$`)

// ParseVersionTag parses a tag name into a VersionTag.
// Returns false for anything that is not "v" followed by digits.
func ParseVersionTag(tag string) (VersionTag, bool) {
	m := versionTagPattern.FindStringSubmatch(tag)
	if m == nil {
		return "", false
	}
	// Guard against numbers too large to compare; such tags are malformed.
	if _, err := strconv.Atoi(m[1]); err != nil {
		return "", false
	}
	return VersionTag(tag), true
}

// Number returns the integer component of the tag.
func (v VersionTag) Number() int {
	m := versionTagPattern.FindStringSubmatch(string(v))
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

func (v VersionTag) String() string {
	return string(v)
}

// NextVersion derives the next version tag from the existing registry tags.
// Non-matching tags are skipped. An empty or fully non-matching set yields v1;
// otherwise the result is one greater than the current maximum.
func NextVersion(tags []string) VersionTag {
	max := 0
	for _, tag := range tags {
		v, ok := ParseVersionTag(tag)
		if !ok {
			continue
		}
		if n := v.Number(); n > max {
			max = n
		}
	}
	return VersionTag(fmt.Sprintf("v%d", max+1))
}
