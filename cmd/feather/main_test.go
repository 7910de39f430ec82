package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featherlabs/feather/config"
)

func captureRun(t *testing.T, args []string) (code int, stdout, stderr string) {
	t.Helper()
	outR, outW, err := os.Pipe()
	require.NoError(t, err)
	errR, errW, err := os.Pipe()
	require.NoError(t, err)

	code = run(args, outW, errW)
	outW.Close()
	errW.Close()

	outBuf := make([]byte, 64*1024)
	n, _ := outR.Read(outBuf)
	stdout = string(outBuf[:n])
	errBuf := make([]byte, 64*1024)
	n, _ = errR.Read(errBuf)
	stderr = string(errBuf[:n])
	return code, stdout, stderr
}

func TestRun_UsageErrorOnMissingSubcommand(t *testing.T) {
	code, _, stderr := captureRun(t, nil)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "usage:")
}

func TestRun_UsageErrorOnMissingRequiredFlags(t *testing.T) {
	code, _, stderr := captureRun(t, []string{"chat", "-p", "openai"})
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "usage:")
}

func TestRun_RuntimeErrorWhenConfigMissing(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(cwd)

	code, _, stderr := captureRun(t, []string{"chat", "-m", "gpt-4o", "-q", "hi"})
	assert.Equal(t, exitRuntime, code)
	assert.Contains(t, stderr, "feather:")
}

func TestRun_RuntimeErrorWhenNoProviderMatchesModel(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "feather.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{
		"policy": "first",
		"providers": {
			"openai": {"apiKeyEnv": "FEATHER_TEST_OPENAI_KEY", "models": [{"name": "gpt-4o"}]}
		}
	}`), 0o644))
	require.NoError(t, os.Setenv("FEATHER_TEST_OPENAI_KEY", "sk-test"))
	defer os.Unsetenv("FEATHER_TEST_OPENAI_KEY")

	code, _, stderr := captureRun(t, []string{"chat", "-m", "no-such-model", "-q", "hi", "-c", cfgPath})
	assert.Equal(t, exitRuntime, code)
	assert.Contains(t, stderr, "feather:")
}

func TestNewBackend_SkipsUnknownProviderID(t *testing.T) {
	b := newBackend(config.ResolvedProvider{ID: "bedrock", APIKey: "sk-test"})
	assert.Nil(t, b)
}

func TestNewBackend_BuildsKnownAdapters(t *testing.T) {
	assert.NotNil(t, newBackend(config.ResolvedProvider{ID: "openai", APIKey: "sk-test"}))
	assert.NotNil(t, newBackend(config.ResolvedProvider{ID: "anthropic", APIKey: "sk-test"}))
}
