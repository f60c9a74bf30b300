// Package setup registers the lite MCP server with desktop MCP clients that
// read a claude_desktop_config.json style file.
package setup

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// ServerKey is the entry name written under mcpServers.
const ServerKey = "pharmguard"

// LiteBinaryName is the executable registered by default.
const LiteBinaryName = "mcp-server-lite"

// DesktopConfig represents the client configuration file structure.
type DesktopConfig struct {
	MCPServers map[string]MCPServerConfig `json:"mcpServers"`
	// Other top-level keys are preserved on save.
	Extra map[string]json.RawMessage `json:"-"`
}

// MCPServerConfig represents a single MCP server configuration.
type MCPServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Options contains options for registering the server.
type Options struct {
	BinaryPath string // Path to the server binary; searched for when empty
	DataDir    string // PHARMGUARD_DATA_DIR for the server
	Provider   string // PHARMGUARD_EXPLANATION_PROVIDER for the server
}

// DesktopConfigPath returns the default client config path for this OS.
func DesktopConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support", "Claude")
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			configDir = filepath.Join(xdg, "Claude")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config", "Claude")
		}
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		configDir = filepath.Join(appData, "Claude")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	return filepath.Join(configDir, "claude_desktop_config.json"), nil
}

// LoadDesktopConfig reads the client configuration. A missing file yields
// an empty configuration.
func LoadDesktopConfig(configPath string) (*DesktopConfig, error) {
	config := &DesktopConfig{
		MCPServers: make(map[string]MCPServerConfig),
		Extra:      make(map[string]json.RawMessage),
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &config.Extra); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if raw, ok := config.Extra["mcpServers"]; ok {
		if err := json.Unmarshal(raw, &config.MCPServers); err != nil {
			return nil, fmt.Errorf("failed to parse mcpServers: %w", err)
		}
		delete(config.Extra, "mcpServers")
	}
	if config.MCPServers == nil {
		config.MCPServers = make(map[string]MCPServerConfig)
	}

	return config, nil
}

// SaveDesktopConfig writes the configuration, creating parent directories.
func SaveDesktopConfig(configPath string, config *DesktopConfig) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out := make(map[string]any, len(config.Extra)+1)
	for k, v := range config.Extra {
		out[k] = v
	}
	out["mcpServers"] = config.MCPServers

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Configure adds or replaces the pharmguard entry in the file at configPath.
func Configure(configPath string, opts Options) (*MCPServerConfig, error) {
	config, err := LoadDesktopConfig(configPath)
	if err != nil {
		return nil, err
	}

	binaryPath := opts.BinaryPath
	if binaryPath == "" {
		binaryPath, err = FindBinary(LiteBinaryName)
		if err != nil {
			return nil, fmt.Errorf("could not find server binary: %w", err)
		}
	}

	entry := MCPServerConfig{
		Command: binaryPath,
		Env:     make(map[string]string),
	}
	if opts.DataDir != "" {
		entry.Env["PHARMGUARD_DATA_DIR"] = opts.DataDir
	}
	if opts.Provider != "" {
		entry.Env["PHARMGUARD_EXPLANATION_PROVIDER"] = opts.Provider
	}

	config.MCPServers[ServerKey] = entry
	if err := SaveDesktopConfig(configPath, config); err != nil {
		return nil, err
	}
	return &entry, nil
}

// FindBinary looks for name on PATH and in common install locations.
func FindBinary(name string) (string, error) {
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	home, _ := os.UserHomeDir()
	locations := []string{
		"./" + name,
		"./build/" + name,
		filepath.Join(home, ".local", "bin", name),
		"/usr/local/bin/" + name,
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			if abs, err := filepath.Abs(loc); err == nil {
				return abs, nil
			}
			return loc, nil
		}
	}

	return "", fmt.Errorf("binary '%s' not found in common locations", name)
}

// Status represents the current registration state.
type Status struct {
	ConfigPath string   `json:"config_path"`
	Configured bool     `json:"configured"`
	ServerPath string   `json:"server_path,omitempty"`
	DataDir    string   `json:"data_dir,omitempty"`
	Issues     []string `json:"issues"`
}

// GetStatus inspects the file at configPath.
func GetStatus(configPath string) (*Status, error) {
	status := &Status{ConfigPath: configPath, Issues: []string{}}

	config, err := LoadDesktopConfig(configPath)
	if err != nil {
		return nil, err
	}

	entry, ok := config.MCPServers[ServerKey]
	if !ok {
		status.Issues = append(status.Issues, "pharmguard is not registered")
		return status, nil
	}

	status.Configured = true
	status.ServerPath = entry.Command
	status.DataDir = entry.Env["PHARMGUARD_DATA_DIR"]

	if info, err := os.Stat(entry.Command); err != nil {
		status.Issues = append(status.Issues, fmt.Sprintf("Server binary not found: %s", entry.Command))
	} else if info.Mode()&0111 == 0 {
		status.Issues = append(status.Issues, fmt.Sprintf("Server binary is not executable: %s", entry.Command))
	}

	return status, nil
}
