package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCommandWiresSubcommands(t *testing.T) {
	root := NewRootCommand()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "apply")
	assert.Contains(t, names, "scrape")
	assert.Contains(t, names, "filter")
}

func TestRootCommandHasConfigFlag(t *testing.T) {
	root := NewRootCommand()
	flag := root.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "c", flag.Shorthand)
}

func TestVersionIsSet(t *testing.T) {
	root := NewRootCommand()
	assert.Equal(t, Version, root.Version)
	assert.NotEmpty(t, Version)
}
