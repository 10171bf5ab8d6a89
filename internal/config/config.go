// Package config provides configuration parsing and validation for the
// OrderNet node façade: the on-disk YAML file (and its CLI-flag
// overrides) that tell a single node its database path, listen port,
// nickname, bootstrap peers, and discovery mode.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete on-disk configuration for one OrderNet node.
type Config struct {
	Node    NodeConfig    `yaml:"node"`
	Logging LoggingConfig `yaml:"logging"`
}

// NodeConfig holds the identity, storage, and transport settings a
// running node needs at start-up. Every field here except Passphrase and
// PassphraseEnv has a corresponding CLI flag (spec.md §6) that overrides
// the config-file value.
type NodeConfig struct {
	// Nickname seeds a brand-new identity's display name; ignored once an
	// identity row already exists in the database.
	Nickname string `yaml:"nickname"`

	// DBPath overrides the default "<home>/.ordernet/ordernet.db" location.
	DBPath string `yaml:"db_path"`

	// Port is the local TCP listen port for the peer-to-peer transport.
	// 0 requests an ephemeral port from the OS.
	Port int `yaml:"port"`

	// Bootstrap lists multiaddrs to dial at start-up; a dial failure for
	// any one of them is swallowed (spec.md §5) and never fatal.
	Bootstrap []string `yaml:"bootstrap"`

	// MDNS enables LAN peer discovery via mDNS. Off by default.
	MDNS bool `yaml:"mdns"`

	// Passphrase overrides the identity-encryption passphrase directly.
	// Prefer PassphraseEnv; this field exists for local testing only and
	// is always redacted from String()/Redacted() output.
	Passphrase string `yaml:"passphrase,omitempty"`

	// PassphraseEnv names an environment variable to read the identity
	// passphrase from. Consulted only when Passphrase is empty. Neither set
	// falls back to the identity package's documented default passphrase.
	PassphraseEnv string `yaml:"passphrase_env"`
}

// LoggingConfig controls the node's structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			Port:          0,
			Bootstrap:     []string{},
			MDNS:          false,
			PassphraseEnv: "ORDERNET_PASSPHRASE",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes, expanding ${VAR}/$VAR
// environment references first.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envVarRegex matches ${VAR} or $VAR patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces environment variable references with their values.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}

		if idx := strings.Index(name, ":-"); idx != -1 {
			varName := name[:idx]
			defaultVal := name[idx+2:]
			if val, ok := os.LookupEnv(varName); ok {
				return val
			}
			return defaultVal
		}

		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Node.Port < 0 || c.Node.Port > 65535 {
		errs = append(errs, fmt.Sprintf("node.port must be between 0 and 65535, got %d", c.Node.Port))
	}
	if !isValidLogLevel(c.Logging.Level) {
		errs = append(errs, fmt.Sprintf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level))
	}
	if !isValidLogFormat(c.Logging.Format) {
		errs = append(errs, fmt.Sprintf("invalid logging.format: %s (must be text or json)", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func isValidLogFormat(format string) bool {
	switch format {
	case "text", "json":
		return true
	default:
		return false
	}
}

// ResolvePassphrase returns the identity passphrase this config selects:
// the literal Passphrase if set, else the value of PassphraseEnv if that
// variable is set, else "" (the caller falls back to the identity
// package's documented default).
func (c *Config) ResolvePassphrase() string {
	if c.Node.Passphrase != "" {
		return c.Node.Passphrase
	}
	if c.Node.PassphraseEnv != "" {
		if val, ok := os.LookupEnv(c.Node.PassphraseEnv); ok {
			return val
		}
	}
	return ""
}

// String returns a YAML representation of the config with the
// passphrase redacted. Safe to log.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c.Redacted())
	return string(data)
}

const redactedValue = "[REDACTED]"

// Redacted returns a copy of the config with the passphrase field
// redacted, safe to log or display to users.
func (c *Config) Redacted() *Config {
	cp := *c
	if cp.Node.Passphrase != "" {
		cp.Node.Passphrase = redactedValue
	}
	return &cp
}
