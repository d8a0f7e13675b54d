package mt940

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommand_Metadata(t *testing.T) {
	assert.Equal(t, "mt940", Cmd.Use)
	assert.NotEmpty(t, Cmd.Short)
	require.NotNil(t, Cmd.RunE)

	for _, name := range []string{"strict", "publish"} {
		flag := Cmd.Flags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Equal(t, "false", flag.DefValue)
	}
}
