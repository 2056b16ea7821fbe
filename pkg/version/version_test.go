package version

import (
	"encoding/json"
	"regexp"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion_SemverOrDev(t *testing.T) {
	require.NotEmpty(t, Version)

	// Release builds stamp a semver, everything else runs as "dev".
	if Version == "dev" {
		return
	}
	semver := regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.]+)?$`)
	assert.True(t, semver.MatchString(Version), "got: %s", Version)
}

func TestString_NamesBinaryAndBuild(t *testing.T) {
	str := String()

	assert.Contains(t, str, "vitrina")
	assert.Contains(t, str, Version)
	assert.Contains(t, str, "commit")
	assert.Contains(t, str, "go")
}

func TestShort_IsBareVersion(t *testing.T) {
	assert.Equal(t, Version, Short())
}

func TestUserAgent_NamesFetcherAndVersion(t *testing.T) {
	ua := UserAgent()

	assert.Contains(t, ua, "vitrina-feed/")
	assert.Contains(t, ua, Version)
}

func TestGetInfo_CarriesStampAndPlatform(t *testing.T) {
	info := GetInfo()

	assert.Equal(t, Version, info.Version)
	assert.Equal(t, Commit, info.Commit)
	assert.Equal(t, Date, info.Date)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, runtime.GOARCH, info.Arch)
}

func TestGetInfo_JSONKeys(t *testing.T) {
	data, err := json.Marshal(GetInfo())
	require.NoError(t, err)

	var parsed map[string]string
	require.NoError(t, json.Unmarshal(data, &parsed))

	for _, key := range []string{"version", "commit", "date", "go_version", "os", "arch"} {
		assert.Contains(t, parsed, key)
	}
}
