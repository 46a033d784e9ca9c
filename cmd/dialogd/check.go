package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"dialogd/internal/config"
	"dialogd/internal/engine"
)

func newCheckCmd(root *rootOptions) *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report whether the engine can be opened with the current config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := root.load(cmd, func(c *config.Config) {
				if cmd.Flags().Changed("model") {
					c.ModelPath = model
				}
			})
			if err != nil {
				return err
			}
			path := cfg.ModelPath
			if path == "" {
				if m, _, err := resolveModel(cfg); err == nil {
					path = m.Path
				}
			}
			rep := engine.Sanity(engineOptions(cfg, path))
			b, _ := json.MarshalIndent(rep, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			if !rep.OK() {
				return fmt.Errorf("engine check failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "Model file to check")
	return cmd
}
