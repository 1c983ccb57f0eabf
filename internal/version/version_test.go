package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withBuildInfo(t *testing.T, version, commit, date string) {
	t.Helper()
	oldVersion, oldCommit, oldDate := Version, GitCommit, BuildDate
	SetBuildInfo(version, commit, date)
	t.Cleanup(func() { SetBuildInfo(oldVersion, oldCommit, oldDate) })
}

func TestValidateVersion(t *testing.T) {
	assert.NoError(t, ValidateVersion())

	withBuildInfo(t, "not-a-version", "unknown", "unknown")
	assert.Error(t, ValidateVersion())
}

func TestGetInfo(t *testing.T) {
	withBuildInfo(t, "1.2.3", "abcdef1234567890", "2026-01-01")
	info, err := GetInfo()
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", info.Version)
	assert.Equal(t, uint64(1), info.SemVer.Major())
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, "/")
}

func TestGetFormattedVersion(t *testing.T) {
	withBuildInfo(t, "1.2.3", "abcdef1234567890", "2026-01-01")
	s := GetFormattedVersion()
	assert.Contains(t, s, "unitcalc v1.2.3")
	assert.Contains(t, s, "commit abcdef1")
	assert.Contains(t, s, "built 2026-01-01")
}

func TestIsPrerelease(t *testing.T) {
	withBuildInfo(t, "1.2.3-rc.1", "unknown", "unknown")
	assert.True(t, IsPrerelease())

	SetBuildInfo("1.2.3", "unknown", "unknown")
	assert.False(t, IsPrerelease())
}

func TestIsDevelopment(t *testing.T) {
	withBuildInfo(t, "1.2.3", "unknown", "unknown")
	assert.True(t, IsDevelopment())

	SetBuildInfo("1.2.3", "abc", "2026-01-01")
	assert.False(t, IsDevelopment())
}
