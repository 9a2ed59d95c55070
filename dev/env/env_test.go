package devenv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWorkspaceRoot(t *testing.T) {
	root, err := GetWorkspaceRoot()
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "go.mod"))
	require.NoError(t, err)

	resolved, err := ResolvePath("<dev_state>/insights.db")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "dev", ".state", "insights.db"), resolved)

	unchanged, err := ResolvePath("relative/insights.db")
	require.NoError(t, err)
	require.Equal(t, "relative/insights.db", unchanged)
}

func TestMissingStateFile(t *testing.T) {
	_, err := GetStateFile("definitely-not-there.json5")
	require.ErrorIs(t, err, os.ErrNotExist)
}
