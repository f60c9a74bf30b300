package setup

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeExecutable(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, LiteBinaryName)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0755))
	return path
}

func TestLoadDesktopConfig_Missing(t *testing.T) {
	config, err := LoadDesktopConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Empty(t, config.MCPServers)
}

func TestConfigure_PreservesOtherEntries(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "Claude", "claude_desktop_config.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0755))
	require.NoError(t, os.WriteFile(configPath, []byte(`{
  "globalShortcut": "Ctrl+Space",
  "mcpServers": {"other": {"command": "/bin/other"}}
}`), 0644))

	binary := writeExecutable(t, dir)
	entry, err := Configure(configPath, Options{BinaryPath: binary, DataDir: "/data/pg", Provider: "anthropic"})
	require.NoError(t, err)
	assert.Equal(t, binary, entry.Command)

	raw, err := os.ReadFile(configPath)
	require.NoError(t, err)
	var saved map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &saved))
	assert.JSONEq(t, `"Ctrl+Space"`, string(saved["globalShortcut"]))

	config, err := LoadDesktopConfig(configPath)
	require.NoError(t, err)
	assert.Contains(t, config.MCPServers, "other")
	require.Contains(t, config.MCPServers, ServerKey)
	assert.Equal(t, "/data/pg", config.MCPServers[ServerKey].Env["PHARMGUARD_DATA_DIR"])
	assert.Equal(t, "anthropic", config.MCPServers[ServerKey].Env["PHARMGUARD_EXPLANATION_PROVIDER"])
}

func TestGetStatus(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")

	status, err := GetStatus(configPath)
	require.NoError(t, err)
	assert.False(t, status.Configured)
	assert.NotEmpty(t, status.Issues)

	binary := writeExecutable(t, dir)
	_, err = Configure(configPath, Options{BinaryPath: binary, DataDir: dir})
	require.NoError(t, err)

	status, err = GetStatus(configPath)
	require.NoError(t, err)
	assert.True(t, status.Configured)
	assert.Equal(t, binary, status.ServerPath)
	assert.Equal(t, dir, status.DataDir)
	assert.Empty(t, status.Issues)
}

func TestGetStatus_MissingBinary(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	_, err := Configure(configPath, Options{BinaryPath: "/nonexistent/mcp-server-lite"})
	require.NoError(t, err)

	status, err := GetStatus(configPath)
	require.NoError(t, err)
	require.Len(t, status.Issues, 1)
	assert.Contains(t, status.Issues[0], "not found")
}

func TestLoadDesktopConfig_Invalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte("{broken"), 0644))

	_, err := LoadDesktopConfig(configPath)
	assert.Error(t, err)
}
