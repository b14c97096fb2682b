package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all bot configuration.
type Config struct {
	Nick       string `yaml:"nick"`
	NickPass   string `yaml:"nick_pass"`
	Server     string `yaml:"server"`
	Port       int    `yaml:"port"`
	ServerPass string `yaml:"server_pass"`
	UseTLS     bool   `yaml:"tls"`
	IRCName    string `yaml:"irc_name"`
	Username   string `yaml:"username"`

	// Network is the label used in cache keys and per-server settings.
	Network string `yaml:"network"`

	// DataDir holds the persisted mask database.
	DataDir string `yaml:"data_dir"`

	// Admins are hostmask patterns allowed to command the bot.
	Admins []string `yaml:"admins"`

	// Channels to join and track at connect time.
	Channels []string `yaml:"channels"`

	// Settings resolve per channel, then per server, then globally.
	Settings map[string]string          `yaml:"settings"`
	Servers  map[string]ServerOverrides `yaml:"servers"`
}

// ServerOverrides carries per-server and per-channel setting overrides.
type ServerOverrides struct {
	Settings map[string]string            `yaml:"settings"`
	Channels map[string]map[string]string `yaml:"channels"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults
	if cfg.Port == 0 {
		cfg.Port = 6667
	}
	if cfg.Username == "" {
		cfg.Username = cfg.Nick
	}
	if cfg.IRCName == "" {
		cfg.IRCName = cfg.Nick
	}
	if cfg.Network == "" {
		cfg.Network = cfg.Server
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}

	return &cfg, nil
}

// Get resolves a setting through the fallback chain channel -> server ->
// global. Server and channel names compare case-insensitively. An empty
// string means unset.
func (c *Config) Get(option, server, channel string) string {
	if server != "" {
		if so, ok := c.lookupServer(server); ok {
			if channel != "" {
				for name, settings := range so.Channels {
					if strings.EqualFold(name, channel) {
						if v, ok := settings[option]; ok && v != "" {
							return v
						}
						break
					}
				}
			}
			if v, ok := so.Settings[option]; ok && v != "" {
				return v
			}
		}
	}
	return c.Settings[option]
}

func (c *Config) lookupServer(server string) (ServerOverrides, bool) {
	for name, so := range c.Servers {
		if strings.EqualFold(name, server) {
			return so, true
		}
	}
	return ServerOverrides{}, false
}
