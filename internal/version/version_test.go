package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetInfo(t *testing.T) {
	info := GetInfo()

	assert.NotEmpty(t, info.Version)
	assert.Contains(t, info.Platform, "/")
	assert.True(t, strings.HasPrefix(info.GoVersion, "go"))
}

func TestGetVersionString(t *testing.T) {
	s := GetVersionString()

	assert.Contains(t, s, "mailsyncd")
	assert.Contains(t, s, Version)
}

func TestGetDetailedVersionString(t *testing.T) {
	detailed := GetDetailedVersionString()

	for _, field := range []string{"mailsyncd", "Git commit:", "Build date:", "Go version:", "Platform:"} {
		assert.Contains(t, detailed, field)
	}
}
