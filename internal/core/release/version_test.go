package release

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Version Parsing Tests
// =============================================================================

func TestParseVersionTag_Valid(t *testing.T) {
	v, ok := ParseVersionTag("v7")
	assert.True(t, ok)
	assert.Equal(t, VersionTag("v7"), v)
	assert.Equal(t, 7, v.Number())
}

func TestParseVersionTag_Malformed(t *testing.T) {
	for _, tag := range []string{"latest", "beta", "v", "v1.2", "v1a", "1", "V3", "va"} {
		_, ok := ParseVersionTag(tag)
		assert.False(t, ok, "tag %q should not parse", tag)
	}
}

// =============================================================================
// Next Version Tests
// =============================================================================

func TestNextVersion_EmptyRegistry(t *testing.T) {
	assert.Equal(t, VersionTag("v1"), NextVersion(nil))
	assert.Equal(t, VersionTag("v1"), NextVersion([]string{}))
}

func TestNextVersion_SparseHistory(t *testing.T) {
	assert.Equal(t, VersionTag("v8"), NextVersion([]string{"v1", "v3", "v7"}))
}

func TestNextVersion_IgnoresNonMatchingTags(t *testing.T) {
	assert.Equal(t, VersionTag("v2"), NextVersion([]string{"latest", "beta", "v1"}))
}

func TestNextVersion_OnlyNonMatchingTags(t *testing.T) {
	assert.Equal(t, VersionTag("v1"), NextVersion([]string{"latest", "stable", "v1.0.0"}))
}

func TestNextVersion_UnorderedInput(t *testing.T) {
	assert.Equal(t, VersionTag("v13"), NextVersion([]string{"v12", "v2", "v9"}))
}
