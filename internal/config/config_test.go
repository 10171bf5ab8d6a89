package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Node.Port != 0 {
		t.Errorf("Node.Port = %d, want 0", cfg.Node.Port)
	}
	if cfg.Node.PassphraseEnv != "ORDERNET_PASSPHRASE" {
		t.Errorf("Node.PassphraseEnv = %s, want ORDERNET_PASSPHRASE", cfg.Node.PassphraseEnv)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %s, want info", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %s, want text", cfg.Logging.Format)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default() config should validate, got: %v", err)
	}
}

func TestParse_ValidConfig(t *testing.T) {
	yamlConfig := `
node:
  nickname: "alice"
  db_path: "/tmp/ordernet-test.db"
  port: 4001
  bootstrap:
    - "/ip4/127.0.0.1/tcp/4001/p2p/abc123"
  mdns: true

logging:
  level: "debug"
  format: "json"
`
	cfg, err := Parse([]byte(yamlConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Node.Nickname != "alice" {
		t.Errorf("Node.Nickname = %s, want alice", cfg.Node.Nickname)
	}
	if cfg.Node.Port != 4001 {
		t.Errorf("Node.Port = %d, want 4001", cfg.Node.Port)
	}
	if len(cfg.Node.Bootstrap) != 1 {
		t.Fatalf("Node.Bootstrap len = %d, want 1", len(cfg.Node.Bootstrap))
	}
	if !cfg.Node.MDNS {
		t.Error("Node.MDNS = false, want true")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %s, want debug", cfg.Logging.Level)
	}
}

func TestParse_InvalidPort(t *testing.T) {
	yamlConfig := `
node:
  port: 99999
`
	if _, err := Parse([]byte(yamlConfig)); err == nil {
		t.Error("Parse() with out-of-range port should fail")
	}
}

func TestParse_InvalidLogLevel(t *testing.T) {
	yamlConfig := `
logging:
  level: "verbose"
`
	if _, err := Parse([]byte(yamlConfig)); err == nil {
		t.Error("Parse() with invalid log level should fail")
	}
}

func TestExpandEnvVars(t *testing.T) {
	os.Setenv("ORDERNET_TEST_NICK", "bob")
	defer os.Unsetenv("ORDERNET_TEST_NICK")

	yamlConfig := `
node:
  nickname: "${ORDERNET_TEST_NICK}"
`
	cfg, err := Parse([]byte(yamlConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Node.Nickname != "bob" {
		t.Errorf("Node.Nickname = %s, want bob", cfg.Node.Nickname)
	}
}

func TestExpandEnvVars_DefaultValue(t *testing.T) {
	os.Unsetenv("ORDERNET_MISSING_VAR")

	yamlConfig := `
node:
  nickname: "${ORDERNET_MISSING_VAR:-fallback}"
`
	cfg, err := Parse([]byte(yamlConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Node.Nickname != "fallback" {
		t.Errorf("Node.Nickname = %s, want fallback", cfg.Node.Nickname)
	}
}

func TestLoad(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "ordernet-config-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp() error = %v", err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "config.yaml")
	content := "node:\n  nickname: carol\n  port: 5000\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Node.Nickname != "carol" {
		t.Errorf("Node.Nickname = %s, want carol", cfg.Node.Nickname)
	}
	if cfg.Node.Port != 5000 {
		t.Errorf("Node.Port = %d, want 5000", cfg.Node.Port)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() with missing file should fail")
	}
}

func TestResolvePassphrase_Literal(t *testing.T) {
	cfg := Default()
	cfg.Node.Passphrase = "literal-pass"
	if got := cfg.ResolvePassphrase(); got != "literal-pass" {
		t.Errorf("ResolvePassphrase() = %s, want literal-pass", got)
	}
}

func TestResolvePassphrase_Env(t *testing.T) {
	os.Setenv("ORDERNET_PASSPHRASE_TEST", "env-pass")
	defer os.Unsetenv("ORDERNET_PASSPHRASE_TEST")

	cfg := Default()
	cfg.Node.PassphraseEnv = "ORDERNET_PASSPHRASE_TEST"
	if got := cfg.ResolvePassphrase(); got != "env-pass" {
		t.Errorf("ResolvePassphrase() = %s, want env-pass", got)
	}
}

func TestResolvePassphrase_Unset(t *testing.T) {
	os.Unsetenv("ORDERNET_PASSPHRASE_UNSET")

	cfg := Default()
	cfg.Node.PassphraseEnv = "ORDERNET_PASSPHRASE_UNSET"
	if got := cfg.ResolvePassphrase(); got != "" {
		t.Errorf("ResolvePassphrase() = %s, want empty", got)
	}
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.Node.Passphrase = "secret"

	redacted := cfg.Redacted()
	if redacted.Node.Passphrase != redactedValue {
		t.Errorf("Redacted().Node.Passphrase = %s, want %s", redacted.Node.Passphrase, redactedValue)
	}
	if cfg.Node.Passphrase != "secret" {
		t.Error("Redacted() mutated the original config")
	}

	s := cfg.String()
	if strings.Contains(s, "secret") {
		t.Error("String() leaked the passphrase")
	}
}
