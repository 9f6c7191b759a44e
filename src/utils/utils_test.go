package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectRoot(t *testing.T) {
	root, err := ProjectRoot()
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, "go.mod"))
	assert.NoError(t, err)
	assert.Equal(t, root, FindProjectRoot())
}

func TestMigrationsURL(t *testing.T) {
	url := MigrationsURL()
	require.True(t, strings.HasPrefix(url, "file://"))

	_, err := os.Stat(filepath.Join(strings.TrimPrefix(url, "file://"), "000001_create_relays.up.sql"))
	assert.NoError(t, err)
}
