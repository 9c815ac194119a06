package main

import (
	"os"

	"github.com/artilugio0/keysafe"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	version = "v0.1.0"

	configPathDefault = ""
)

type app struct {
	configPath string
	flags      config

	store       *keysafe.Store
	log         zerolog.Logger
	registry    *prometheus.Registry
	metricsFile string
}

func newKeysafeCmd() *cobra.Command {
	a := &app{flags: defaultConfig()}

	cmd := &cobra.Command{
		Use:   "keysafe",
		Short: "keysafe -- typed values in a secure credential store",
		Long: `keysafe stores codec-encoded values under string keys in a secure
backing store: the OS keyring by default, or SQLite, a SQL server,
DynamoDB, S3 or MongoDB. Entries can optionally be sealed with
AES-256-GCM before they reach the backend.

Configuration is read from the --config YAML file, then KEYSAFE_*
environment variables, then flags.
`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", configPathDefault, "YAML config file")
	flags.StringVarP(&a.flags.Backend, "backend", "b", a.flags.Backend, "Backend: keyring, memory, sqlite, sql, dynamodb, s3 or mongo")
	flags.StringVar(&a.flags.Service, "service", a.flags.Service, "Keyring service name")
	flags.StringVar(&a.flags.Class, "class", a.flags.Class, "Entry class; clear removes the whole class")
	flags.StringVar(&a.flags.Codec, "codec", a.flags.Codec, "Value codec: json, yaml or cbor")
	flags.StringVar(&a.flags.Accessibility, "accessibility", a.flags.Accessibility, "Accessibility: when-unlocked, after-first-unlock or always")
	flags.BoolVar(&a.flags.PerDevice, "per-device", a.flags.PerDevice, "Keep entries on this device only")
	flags.StringVar(&a.flags.Log.Level, "log-level", a.flags.Log.Level, "Log level")
	flags.StringVar(&a.flags.SQLite.Path, "sqlite-path", a.flags.SQLite.Path, "SQLite database file")

	cmd.AddCommand(newSetCommand(a))
	cmd.AddCommand(newGetCommand(a))
	cmd.AddCommand(newClearCommand(a))

	// close even when the command fails
	for _, sub := range cmd.Commands() {
		run := sub.RunE
		sub.RunE = func(cmd *cobra.Command, args []string) (err error) {
			defer func() {
				if cerr := a.close(); err == nil {
					err = cerr
				}
			}()
			return run(cmd, args)
		}
	}

	cmd.Version = version
	return cmd
}

func (a *app) open(cmd *cobra.Command) error {
	path := a.configPath
	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}

	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	applyFlags(cmd, &cfg, a.flags)

	if err := cfg.Validate(); err != nil {
		return err
	}

	a.log = newLogger(cfg, cmd.ErrOrStderr())
	a.metricsFile = cfg.MetricsFile
	a.registry = prometheus.NewRegistry()

	metrics, err := keysafe.NewMetrics(a.registry)
	if err != nil {
		return err
	}

	a.store, err = openStore(cmd.Context(), cfg, a.log)
	if err != nil {
		return err
	}
	a.store = a.store.WithMetrics(metrics)
	return nil
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil

	if a.metricsFile != "" {
		if werr := prometheus.WriteToTextfile(a.metricsFile, a.registry); werr != nil {
			a.log.Warn().Err(werr).Str("path", a.metricsFile).Msg("could not write metrics")
		}
	}
	return err
}

// applyFlags copies the flags set on the command line over cfg.
func applyFlags(cmd *cobra.Command, cfg *config, f config) {
	changed := cmd.Flags().Changed

	if changed("backend") {
		cfg.Backend = f.Backend
	}
	if changed("service") {
		cfg.Service = f.Service
	}
	if changed("class") {
		cfg.Class = f.Class
	}
	if changed("codec") {
		cfg.Codec = f.Codec
	}
	if changed("accessibility") {
		cfg.Accessibility = f.Accessibility
	}
	if changed("per-device") {
		cfg.PerDevice = f.PerDevice
	}
	if changed("log-level") {
		cfg.Log.Level = f.Log.Level
	}
	if changed("sqlite-path") {
		cfg.SQLite.Path = f.SQLite.Path
	}
}
