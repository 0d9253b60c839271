package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, 8034, cfg.Server.Port)
	assert.Equal(t, 24, cfg.WindowLimit)
	assert.Equal(t, int64(30000), cfg.ToolTimeoutMS)
	assert.NotEmpty(t, cfg.DataDir)
}

func TestLoadProjectConfigWithComments(t *testing.T) {
	tmpDir := t.TempDir()

	content := `{
		// development overrides
		"model": "openrouter/x-ai/grok-4-fast",
		"windowLimit": 8,
		"server": { "port": 9000 }
	}`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "strudel.jsonc"), []byte(content), 0644))

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "openrouter/x-ai/grok-4-fast", cfg.Model)
	assert.Equal(t, 8, cfg.WindowLimit)
	assert.Equal(t, 9000, cfg.Server.Port)
}

func TestEnvInterpolation(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("STRUDEL_TEST_KEY", "sk-test-123")

	content := `{"provider": {"openrouter": {"apiKey": "{env:STRUDEL_TEST_KEY}"}}}`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "strudel.json"), []byte(content), 0644))

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", cfg.Provider["openrouter"].APIKey)
}

func TestEnvOverridesWin(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "strudel.json"), []byte(`{"model":"openrouter/a"}`), 0644))
	t.Setenv("STRUDEL_MODEL", "openrouter/b")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "openrouter/b", cfg.Model)
}

func TestSplitModelRef(t *testing.T) {
	provider, model := SplitModelRef("openrouter/x-ai/grok-4-fast")
	assert.Equal(t, "openrouter", provider)
	assert.Equal(t, "x-ai/grok-4-fast", model)

	provider, model = SplitModelRef("bare-model")
	assert.Empty(t, provider)
	assert.Equal(t, "bare-model", model)
}
