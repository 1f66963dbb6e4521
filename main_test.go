package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvFileMissing(t *testing.T) {
	assert.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), ".env")))
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MODELMAP_TEST_ENV_VALUE=loaded\n"), 0600))
	t.Setenv("MODELMAP_TEST_ENV_VALUE", "")
	require.NoError(t, os.Unsetenv("MODELMAP_TEST_ENV_VALUE"))

	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "loaded", os.Getenv("MODELMAP_TEST_ENV_VALUE"))
}

func TestLoadEnvFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MODELMAP_TEST_BROKEN=\"unterminated\n"), 0600))

	assert.Error(t, loadEnvFile(path))
}
