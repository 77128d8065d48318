// Package config loads the node configuration from YAML
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	logging "github.com/ipfs/go-log/v2"
	"github.com/multiformats/go-multiaddr"
	"gopkg.in/yaml.v3"

	"github.com/ZentaChain/zentalk-messenger/pkg/bridge"
	"github.com/ZentaChain/zentalk-messenger/pkg/messenger"
	"github.com/ZentaChain/zentalk-messenger/pkg/transport/p2p"
)

var ErrInvalidConfig = errors.New("invalid config")

// ContactConfig is the profile announced to other messengers
type ContactConfig struct {
	Name string `yaml:"name"`
}

// Config is the complete node configuration
type Config struct {
	IdentityFile string              `yaml:"identity_file"`
	Contact      ContactConfig       `yaml:"contact"`
	DataDir      string              `yaml:"data_dir"`
	LogLevel     string              `yaml:"log_level"`
	Transport    p2p.Config          `yaml:"transport"`
	Messenger    messenger.Config    `yaml:"messenger"`
	API          bridge.ServerConfig `yaml:"api"`
}

// DefaultConfig returns default node configuration
func DefaultConfig() *Config {
	return &Config{
		Contact:   ContactConfig{Name: "zentalk"},
		DataDir:   "./data",
		LogLevel:  "info",
		Transport: p2p.DefaultConfig(),
		Messenger: messenger.DefaultConfig(),
		API:       bridge.DefaultServerConfig(),
	}
}

// Load reads path on top of the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, cfg.Validate()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, cfg.Validate()
}

// Save writes the configuration as YAML
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.Contact.Name == "" {
		return fmt.Errorf("%w: contact.name is required", ErrInvalidConfig)
	}
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir is required", ErrInvalidConfig)
	}
	if _, err := logging.Parse(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	if err := c.Messenger.Validate(); err != nil {
		return fmt.Errorf("%w: messenger: %v", ErrInvalidConfig, err)
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("%w: api.port %d out of range", ErrInvalidConfig, c.API.Port)
	}

	for _, addr := range c.Transport.ListenAddrs {
		if _, err := multiaddr.NewMultiaddr(addr); err != nil {
			return fmt.Errorf("%w: listen address %q: %v", ErrInvalidConfig, addr, err)
		}
	}
	for _, addr := range c.Transport.BootstrapPeers {
		if _, err := multiaddr.NewMultiaddr(addr); err != nil {
			return fmt.Errorf("%w: bootstrap peer %q: %v", ErrInvalidConfig, addr, err)
		}
	}
	return nil
}

// IdentityPath returns where the contact identity is kept
func (c *Config) IdentityPath() string {
	if c.IdentityFile != "" {
		return c.IdentityFile
	}
	return filepath.Join(c.DataDir, "identity.json")
}

// DBPath returns the host store location
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "messages.db")
}

// FilesDir returns where transferred files are kept
func (c *Config) FilesDir() string {
	return filepath.Join(c.DataDir, "files")
}

// ApplyLogLevel sets the level of every subsystem logger
func (c *Config) ApplyLogLevel() error {
	lvl, err := logging.Parse(c.LogLevel)
	if err != nil {
		return err
	}
	logging.SetAllLoggers(lvl)
	return nil
}
