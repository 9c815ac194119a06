package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/artilugio0/keysafe"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if cfg.Backend != "keyring" || cfg.Service != "keysafe" || cfg.Codec != "json" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Class != string(keysafe.ClassGenericPassword) {
		t.Fatalf("Class = %q", cfg.Class)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}

	policy, err := cfg.accessPolicy()
	if err != nil {
		t.Fatalf("accessPolicy: %v", err)
	}
	if policy != keysafe.DefaultAccessPolicy {
		t.Fatalf("accessPolicy = %+v, want %+v", policy, keysafe.DefaultAccessPolicy)
	}
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keysafe.yaml")
	content := `
backend: sqlite
codec: cbor
per_device: false
sqlite:
  path: /tmp/from-file.db
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("KEYSAFE_CODEC", "yaml")
	t.Setenv("KEYSAFE_SQLITE_PATH", "/tmp/from-env.db")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if cfg.Backend != "sqlite" {
		t.Fatalf("Backend = %q, want sqlite", cfg.Backend)
	}
	if cfg.Codec != "yaml" {
		t.Fatalf("Codec = %q, env should win over file", cfg.Codec)
	}
	if cfg.SQLite.Path != "/tmp/from-env.db" {
		t.Fatalf("SQLite.Path = %q", cfg.SQLite.Path)
	}
	if cfg.PerDevice {
		t.Fatal("PerDevice should come from the file")
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("Log.Level = %q", cfg.Log.Level)
	}
	if cfg.Service != "keysafe" {
		t.Fatalf("Service = %q, default should be kept", cfg.Service)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for a missing config file")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *config)
		errMsg string
	}{
		{"unknown backend", func(c *config) { c.Backend = "etcd" }, "unknown backend"},
		{"sql without dsn", func(c *config) { c.Backend = "sql"; c.SQL.Driver = "postgres" }, "sql.dsn"},
		{"dynamodb without table", func(c *config) { c.Backend = "dynamodb" }, "dynamodb.table"},
		{"s3 without bucket", func(c *config) { c.Backend = "s3" }, "s3.bucket"},
		{"mongo without uri", func(c *config) { c.Backend = "mongo" }, "mongo.uri"},
		{"empty class", func(c *config) { c.Class = "" }, "class"},
		{"bad codec", func(c *config) { c.Codec = "xml" }, "codec"},
		{"bad accessibility", func(c *config) { c.Accessibility = "never" }, "accessibility"},
		{"bad seal key", func(c *config) { c.SealKey = "%%%" }, "seal_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Fatalf("error %q does not mention %q", err, tt.errMsg)
			}
		})
	}
}

func TestConfig_SealKey(t *testing.T) {
	cfg := defaultConfig()

	key, err := cfg.sealKey()
	if err != nil || key != nil {
		t.Fatalf("expected sealing off by default, got %v, %v", key, err)
	}

	cfg.SealKey = "QUJD"
	key, err = cfg.sealKey()
	if err != nil {
		t.Fatalf("sealKey: %v", err)
	}
	if string(key) != "ABC" {
		t.Fatalf("sealKey = %q", key)
	}
}
