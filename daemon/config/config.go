// Package config implements daemon configuration: a JSON file at
// ~/.arca/config.json overridable by CLI flags, flags winning over file,
// file winning over built-in defaults — the layering moby's own
// daemon/config package uses, simplified to this daemon's much smaller
// option set (socket path, logging verbosity, network backend selection,
// runtime kernel path).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

// Config is the fully resolved, immutable configuration one daemon run
// acts on. Never mutated in place; Reload produces a new value that
// replaces the one a Store hands out.
type Config struct {
	DataRoot          string `json:"data-root"`
	SocketPath        string `json:"socket-path"`
	LogLevel          string `json:"log-level"`
	NetworkBackend    string `json:"network-backend"`
	RuntimeKernelPath string `json:"runtime-kernel-path"`
}

// fileConfig mirrors Config but with optional fields, so LoadFile can tell
// "unset" apart from "explicitly set to the zero value".
type fileConfig struct {
	DataRoot          *string `json:"data-root,omitempty"`
	SocketPath        *string `json:"socket-path,omitempty"`
	LogLevel          *string `json:"log-level,omitempty"`
	NetworkBackend    *string `json:"network-backend,omitempty"`
	RuntimeKernelPath *string `json:"runtime-kernel-path,omitempty"`
}

// knownNetworkBackends is the set of values Validate accepts for
// NetworkBackend. Only the agent-brokered bridge model is implemented;
// the option exists so a future backend doesn't require a wire-format
// change.
var knownNetworkBackends = map[string]bool{"bridge": true}

// Defaults returns the built-in configuration before any file or flag
// overlay is applied.
func Defaults() *Config {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	base := filepath.Join(home, ".arca")
	return &Config{
		DataRoot:       base,
		SocketPath:     filepath.Join(base, "arca.sock"),
		LogLevel:       "info",
		NetworkBackend: "bridge",
	}
}

// LoadFile reads the JSON config file at path. A missing file is not an
// error — it just means nothing in the file layer overrides the defaults.
func LoadFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &fileConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &fc, nil
}

func (c *Config) mergeFile(fc *fileConfig) {
	if fc.DataRoot != nil {
		c.DataRoot = *fc.DataRoot
	}
	if fc.SocketPath != nil {
		c.SocketPath = *fc.SocketPath
	}
	if fc.LogLevel != nil {
		c.LogLevel = *fc.LogLevel
	}
	if fc.NetworkBackend != nil {
		c.NetworkBackend = *fc.NetworkBackend
	}
	if fc.RuntimeKernelPath != nil {
		c.RuntimeKernelPath = *fc.RuntimeKernelPath
	}
}

// ApplyFlags overlays any flag the caller actually set (pflag.Changed),
// so unset flags never clobber the file/defaults layer beneath them.
func (c *Config) ApplyFlags(flags *pflag.FlagSet) {
	if flags == nil {
		return
	}
	if flags.Changed("data-root") {
		c.DataRoot, _ = flags.GetString("data-root")
	}
	if flags.Changed("socket-path") {
		c.SocketPath, _ = flags.GetString("socket-path")
	}
	if flags.Changed("log-level") {
		c.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("network-backend") {
		c.NetworkBackend, _ = flags.GetString("network-backend")
	}
	if flags.Changed("kernel-path") {
		c.RuntimeKernelPath, _ = flags.GetString("kernel-path")
	}
}

// Validate rejects a Config the daemon can't safely start with. Callers
// treat a Validate failure as a misconfiguration (exit code 2), not a
// generic failure.
func (c *Config) Validate() error {
	if c.SocketPath == "" {
		return errors.New("config: socket-path must not be empty")
	}
	if c.DataRoot == "" {
		return errors.New("config: data-root must not be empty")
	}
	if !filepath.IsAbs(c.DataRoot) {
		return fmt.Errorf("config: data-root %q must be an absolute path", c.DataRoot)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: invalid log-level %q: %w", c.LogLevel, err)
	}
	if !knownNetworkBackends[c.NetworkBackend] {
		return fmt.Errorf("config: unknown network-backend %q", c.NetworkBackend)
	}
	return nil
}

// New resolves a Config from defaults, overlaid by the file at path (if
// any), overlaid by flags (if any), then validates the result.
func New(path string, flags *pflag.FlagSet) (*Config, error) {
	c := Defaults()

	fc, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	c.mergeFile(fc)
	c.ApplyFlags(flags)

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// DefaultPath is the recognized config file location, relative to the
// resolved data root.
func DefaultPath(dataRoot string) string {
	return filepath.Join(dataRoot, "config.json")
}
