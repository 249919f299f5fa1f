package main

import (
	"os"

	"github.com/chazu/patchbay/pkg/config"
	"github.com/chazu/patchbay/pkg/logging"
	"github.com/spf13/cobra"
)

// cli carries the state shared by every command.
type cli struct {
	configPath string
	cfg        config.Config
	app        *App

	outPath     string
	watch       bool
	tickCount   int
	showMetrics bool
}

// newRootCmd builds the command tree. Each call returns fresh flag state.
func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:           "patchbay",
		Short:         "Build, inspect and run node-graph patches",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			c.cfg = cfg
			log := logging.New(cfg.Log, os.Stderr)
			c.app = NewApp(cfg, log)
			log.Debug("configuration loaded", "path", c.configPath)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&c.configPath, "config", "patchbay.yaml", "configuration file")

	// --- Scripts ---
	runCmd := &cobra.Command{
		Use:   "run [script]",
		Short: "Evaluate a patch script and optionally save the result",
		Args:  cobra.ExactArgs(1),
		RunE:  c.runScript, // Defined in cmd_patch.go
	}
	runCmd.Flags().StringVarP(&c.outPath, "output", "o", "", "save the patch to this file")

	// --- Files ---
	inspectCmd := &cobra.Command{
		Use:   "inspect [file]",
		Short: "Load a patch file and print its nodes and connections",
		Args:  cobra.ExactArgs(1),
		RunE:  c.inspectFile, // Defined in cmd_patch.go
	}
	inspectCmd.Flags().BoolVarP(&c.watch, "watch", "w", false, "reprint whenever the file changes")

	convertCmd := &cobra.Command{
		Use:   "convert [in] [out]",
		Short: "Re-encode a patch file; a .sz output is compressed",
		Args:  cobra.ExactArgs(2),
		RunE:  c.convertFile, // Defined in cmd_patch.go
	}

	tickCmd := &cobra.Command{
		Use:   "tick [file]",
		Short: "Load a patch, fire every pulse node and print the readings",
		Args:  cobra.ExactArgs(1),
		RunE:  c.tickFile, // Defined in cmd_patch.go
	}
	tickCmd.Flags().IntVarP(&c.tickCount, "count", "n", 1, "pulses per pulse node")
	tickCmd.Flags().BoolVar(&c.showMetrics, "metrics", false, "print collected metrics afterwards")

	rootCmd.AddCommand(runCmd, inspectCmd, convertCmd, tickCmd)
	return rootCmd
}
