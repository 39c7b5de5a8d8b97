package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFull_PrefixedWithAppName(t *testing.T) {
	assert.True(t, strings.HasPrefix(Full(), AppName+"/"))
}

func TestGitCommit_NeverEmpty(t *testing.T) {
	assert.NotEmpty(t, GitCommit)
}
