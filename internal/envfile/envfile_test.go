package envfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestName(t *testing.T) {
	assert.Equal(t, ".env-levelup-production", Name("levelup", "production"))
}

func TestFind(t *testing.T) {
	t.Run("finds the file in a parent directory", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, ".env-levelup-stage1"), "A=1\n")
		nested := filepath.Join(root, "tests", "pages")
		require.NoError(t, os.MkdirAll(nested, 0o755))

		got, err := Find(".env-levelup-stage1", nested)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, ".env-levelup-stage1"), got)
	})

	t.Run("prefers the closest match", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, ".env-x-y"), "A=outer\n")
		writeFile(t, filepath.Join(root, "inner", ".env-x-y"), "A=inner\n")

		got, err := Find(".env-x-y", filepath.Join(root, "inner"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "inner", ".env-x-y"), got)
	})

	t.Run("returns empty when nothing matches", func(t *testing.T) {
		got, err := Find(".env-does-not-exist-anywhere", t.TempDir())
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestLoad(t *testing.T) {
	t.Run("merges variables without overriding existing ones", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, ".env-levelup-release"),
			"UIHARNESS_TEST_BASE_URL=https://release.example.com\nUIHARNESS_TEST_KEEP=fromfile\n")
		t.Setenv("UIHARNESS_TEST_KEEP", "fromenv")
		t.Setenv("UIHARNESS_TEST_BASE_URL", "")
		os.Unsetenv("UIHARNESS_TEST_BASE_URL")

		path, err := Load("levelup", "release", dir, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, ".env-levelup-release"), path)
		assert.Equal(t, "https://release.example.com", os.Getenv("UIHARNESS_TEST_BASE_URL"))
		assert.Equal(t, "fromenv", os.Getenv("UIHARNESS_TEST_KEEP"))
	})

	t.Run("missing file is not an error", func(t *testing.T) {
		path, err := Load("nobody", "nowhere", t.TempDir(), zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.Empty(t, path)
	})
}
