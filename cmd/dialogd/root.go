package main

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"dialogd/internal/config"
	"dialogd/internal/logging"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "dialogd",
		Short:         "Conversation-aware generation daemon for a local llama.cpp model",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (.yaml, .yml, .json or .toml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug|info|warn|error (defaults DIALOGD_LOG_LEVEL or info)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format: json|console")

	root.AddCommand(newServeCmd(opts), newCheckCmd(opts), newSnapshotCmd(opts))
	return root
}

// load builds the effective configuration: defaults, then the config file,
// then DIALOGD_* variables, then flags that were set explicitly.
func (o *rootOptions) load(cmd *cobra.Command, apply func(*config.Config)) (config.Config, zerolog.Logger, error) {
	cfg := config.Default()
	if o.configPath != "" {
		fileCfg, err := config.Load(o.configPath)
		if err != nil {
			return cfg, zerolog.Nop(), fmt.Errorf("load config: %w", err)
		}
		cfg = cfg.Merge(fileCfg)
	}
	cfg = cfg.ApplyEnv(nil)
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format = o.logFormat
	}
	if apply != nil {
		apply(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, zerolog.Nop(), fmt.Errorf("invalid config: %w", err)
	}
	return cfg, logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr()), nil
}

// splitCSV splits a comma-separated flag value, dropping empty items.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
