package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandTree(t *testing.T) {
	root := NewRootCommand()

	for _, path := range [][]string{
		{"serve"},
		{"migrate", "up"},
		{"migrate", "down"},
		{"migrate", "version"},
		{"jobs", "generate-rentals"},
		{"jobs", "send-reminders"},
		{"jobs", "lease-alerts"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestFlags(t *testing.T) {
	root := NewRootCommand()

	down, _, err := root.Find([]string{"migrate", "down"})
	require.NoError(t, err)
	steps := down.Flags().Lookup("steps")
	require.NotNil(t, steps)
	assert.Equal(t, "1", steps.DefValue)

	gen, _, err := root.Find([]string{"jobs", "generate-rentals"})
	require.NoError(t, err)
	assert.NotNil(t, gen.Flags().Lookup("date"))
}
