package otell

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootCommandHasServeAndVersion(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["version"])
}
