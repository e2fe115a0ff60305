package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"conveyor/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(newConfigInitCommand(ctx))
	cmd.AddCommand(newConfigShowCommand(ctx))
	return cmd
}

func newConfigInitCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ctx.configPath()
			if path == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return err
				}
				path = defaultPath
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, pass --force to overwrite", path)
			}
			if err := config.CreateSample(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, found, err := config.Load(ctx.configPath())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if found {
				fmt.Fprintf(out, "config: %s\n", path)
			} else {
				fmt.Fprintln(out, "config: built-in defaults (no file found)")
			}
			fmt.Fprintf(out, "data dir:        %s\n", cfg.Paths.DataDir)
			fmt.Fprintf(out, "log dir:         %s\n", cfg.Paths.LogDir)
			fmt.Fprintf(out, "redis:           %s (db %d)\n", cfg.Redis.Addr, cfg.Redis.DB)
			fmt.Fprintf(out, "concurrency:     %d\n", cfg.Worker.Concurrency)
			fmt.Fprintf(out, "stage timeout:   %s\n", cfg.StageTimeout())
			fmt.Fprintf(out, "upload timeout:  %s\n", cfg.UploadTimeout())
			fmt.Fprintf(out, "heartbeat:       %s\n", cfg.HeartbeatTimeout())
			fmt.Fprintf(out, "min interval:    %dh\n", cfg.Scheduler.MinIntervalHours)
			return nil
		},
	}
}
