package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvDefaults(t *testing.T) {
	t.Setenv("PEERHUB_TEST_STR", "")
	t.Setenv("PEERHUB_TEST_INT", "42")
	t.Setenv("PEERHUB_TEST_BAD_INT", "forty")
	t.Setenv("PEERHUB_TEST_BOOL", "true")
	t.Setenv("PEERHUB_TEST_DUR", "3s")

	assert.Equal(t, "def", Env("PEERHUB_TEST_STR", "def"))
	assert.Equal(t, 42, EnvInt("PEERHUB_TEST_INT", 1))
	assert.Equal(t, 1, EnvInt("PEERHUB_TEST_BAD_INT", 1))
	assert.True(t, EnvBool("PEERHUB_TEST_BOOL", false))
	assert.False(t, EnvBool("PEERHUB_TEST_MISSING", false))
	assert.Equal(t, 3*time.Second, EnvDuration("PEERHUB_TEST_DUR", time.Second))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"alice", "bob"}, SplitList(" alice, ,bob,"))
	assert.Nil(t, SplitList(""))

	t.Setenv("PEERHUB_TEST_LIST", "x,y")
	assert.Equal(t, []string{"x", "y"}, EnvList("PEERHUB_TEST_LIST"))
}

func TestLoadFileKeepsExistingValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PEERHUB_TEST_FILE=from-file\nPEERHUB_TEST_SET=from-file\n"), 0o600))
	t.Setenv("PEERHUB_TEST_SET", "from-env")
	t.Setenv("PEERHUB_TEST_FILE", "")
	os.Unsetenv("PEERHUB_TEST_FILE")

	require.NoError(t, LoadFile(path))
	assert.Equal(t, "from-file", os.Getenv("PEERHUB_TEST_FILE"))
	assert.Equal(t, "from-env", os.Getenv("PEERHUB_TEST_SET"))

	assert.NoError(t, LoadFile(filepath.Join(t.TempDir(), "missing.env")))
}
