package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/artilugio0/keysafe"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const envPrefix = "KEYSAFE_"

type config struct {
	Backend       string `yaml:"backend" env:"BACKEND"`
	Service       string `yaml:"service" env:"SERVICE"`
	Class         string `yaml:"class" env:"CLASS"`
	Codec         string `yaml:"codec" env:"CODEC"`
	Accessibility string `yaml:"accessibility" env:"ACCESSIBILITY"`
	PerDevice     bool   `yaml:"per_device" env:"PER_DEVICE"`
	SealKey       string `yaml:"seal_key" env:"SEAL_KEY"`
	MetricsFile   string `yaml:"metrics_file" env:"METRICS_FILE"`

	Log struct {
		Level  string `yaml:"level" env:"LEVEL"`
		Pretty bool   `yaml:"pretty" env:"PRETTY"`
	} `yaml:"log" envPrefix:"LOG_"`

	SQLite struct {
		Path string `yaml:"path" env:"PATH"`
	} `yaml:"sqlite" envPrefix:"SQLITE_"`

	SQL struct {
		Driver string `yaml:"driver" env:"DRIVER"`
		DSN    string `yaml:"dsn" env:"DSN"`
	} `yaml:"sql" envPrefix:"SQL_"`

	DynamoDB struct {
		Table string `yaml:"table" env:"TABLE"`
	} `yaml:"dynamodb" envPrefix:"DYNAMODB_"`

	S3 struct {
		Bucket string `yaml:"bucket" env:"BUCKET"`
		Prefix string `yaml:"prefix" env:"PREFIX"`
	} `yaml:"s3" envPrefix:"S3_"`

	Mongo struct {
		URI        string `yaml:"uri" env:"URI"`
		Database   string `yaml:"database" env:"DATABASE"`
		Collection string `yaml:"collection" env:"COLLECTION"`
	} `yaml:"mongo" envPrefix:"MONGO_"`
}

func defaultConfig() config {
	cfg := config{
		Backend:       "keyring",
		Service:       "keysafe",
		Class:         string(keysafe.ClassGenericPassword),
		Codec:         "json",
		Accessibility: keysafe.WhenUnlocked.String(),
		PerDevice:     true,
	}
	cfg.Log.Level = "warn"
	cfg.Log.Pretty = true
	cfg.Mongo.Database = "keysafe"
	cfg.Mongo.Collection = "entries"

	if dir, err := os.UserConfigDir(); err == nil {
		cfg.SQLite.Path = filepath.Join(dir, "keysafe", "keysafe.db")
	}
	return cfg
}

// loadConfig layers defaults, the optional YAML file and KEYSAFE_* variables.
// Flags are applied by the caller.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return config{}, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

func (c *config) Validate() error {
	switch c.Backend {
	case "keyring":
		if c.Service == "" {
			return fmt.Errorf("service is required for the keyring backend")
		}
	case "memory":
	case "sqlite":
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required for the sqlite backend")
		}
	case "sql":
		if c.SQL.Driver == "" || c.SQL.DSN == "" {
			return fmt.Errorf("sql.driver and sql.dsn are required for the sql backend")
		}
	case "dynamodb":
		if c.DynamoDB.Table == "" {
			return fmt.Errorf("dynamodb.table is required for the dynamodb backend")
		}
	case "s3":
		if c.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket is required for the s3 backend")
		}
	case "mongo":
		if c.Mongo.URI == "" {
			return fmt.Errorf("mongo.uri is required for the mongo backend")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	if c.Class == "" {
		return fmt.Errorf("class must not be empty")
	}
	if _, err := keysafe.CodecByName(c.Codec); err != nil {
		return err
	}
	if _, err := keysafe.ParseAccessibility(c.Accessibility); err != nil {
		return err
	}
	if _, err := c.sealKey(); err != nil {
		return err
	}

	return nil
}

func (c *config) accessPolicy() (keysafe.AccessPolicy, error) {
	a, err := keysafe.ParseAccessibility(c.Accessibility)
	if err != nil {
		return keysafe.AccessPolicy{}, err
	}
	return keysafe.AccessPolicy{Accessibility: a, PerDevice: c.PerDevice}, nil
}

// sealKey decodes the base64 master key; nil means sealing is off.
func (c *config) sealKey() ([]byte, error) {
	if c.SealKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(c.SealKey)
	if err != nil {
		return nil, fmt.Errorf("seal_key is not valid base64: %w", err)
	}
	return key, nil
}
