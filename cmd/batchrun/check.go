package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/batchrun/internal/tui/components"
)

type checkOptions struct {
	ConfigPath string
}

func newCheckCmd(root *rootFlags) *cobra.Command {
	opts := checkOptions{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check that every stage executable resolves where the pipeline runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateConfigPath(opts.ConfigPath); err != nil {
				return err
			}
			return runCheck(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to pipeline file")
	cmd.MarkFlagRequired("config") //nolint:errcheck

	return cmd
}

func runCheck(cmd *cobra.Command, root *rootFlags, opts checkOptions) error {
	log, err := newLogger(root, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	app, err := newAppContext(cfg, log)
	if err != nil {
		return err
	}

	// Probes run directly on the locality, never through the scheduler.
	probe := app.Exec.Copy()
	probe.SetScheduler(nil)
	probe.SetForeground(true)

	var checks []components.CheckStatus
	missing := 0
	for _, stage := range app.Pipeline.Stages {
		ok := app.Processes.IsLocalProcessOperational(cmd.Context(), stage, probe)
		msg := fmt.Sprintf("%s: %s", stage.Name(), stage.Executable())
		if !ok {
			msg += " not found"
			missing++
		}
		checks = append(checks, components.CheckStatus{Passed: ok, Message: msg})
	}

	fmt.Fprintln(cmd.OutOrStdout(), components.NewSummary(components.SummaryData{Checks: checks}).View())
	if missing > 0 {
		return newCommandError("check", fmt.Sprintf("%d of %d stage executables are unavailable", missing, len(checks)), nil,
			"Add the missing tools to PATH or set a pre_commands entry that loads them.")
	}
	return nil
}
