package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/batchrun/internal/execution"
	"github.com/alexisbeaulieu97/batchrun/internal/scheduler"
	"github.com/alexisbeaulieu97/batchrun/internal/service"
)

type killOptions struct {
	Scheduler  string
	ConfigPath string
	DryRun     bool
}

func newKillCmd(root *rootFlags) *cobra.Command {
	opts := killOptions{}

	cmd := &cobra.Command{
		Use:   "kill JOBID...",
		Short: "Cancel scheduler jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKill(cmd, root, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.Scheduler, "scheduler", "", fmt.Sprintf("Scheduler type (%s); defaults to the pipeline's", joinTypes()))
	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Pipeline file whose locality and scheduler are used")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Print the kill commands without running them")

	return cmd
}

func joinTypes() string {
	names := make([]string, 0, len(scheduler.Types()))
	for _, t := range scheduler.Types() {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}

func runKill(cmd *cobra.Command, root *rootFlags, opts killOptions, jobIDs []string) error {
	log, err := newLogger(root, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ec := execution.NewLocal()
	var sched scheduler.Scheduler
	if opts.ConfigPath != "" {
		cfg, err := loadConfig(opts.ConfigPath)
		if err != nil {
			return err
		}
		if ec, err = cfg.BuildContext(log); err != nil {
			return err
		}
		sched = ec.Scheduler()
	}
	if opts.Scheduler != "" || sched == nil {
		if opts.Scheduler == "" {
			return newCommandError("kill", "no scheduler selected", nil, "Pass --scheduler or a pipeline file with a scheduler.")
		}
		if sched, err = scheduler.New(opts.Scheduler, scheduler.WithLogger(log)); err != nil {
			return err
		}
	}

	// Kill commands run on the locality itself.
	ec = ec.Copy()
	ec.SetScheduler(nil)
	ec.SetForeground(true)
	processes := service.NewProcessService(log)

	var failed []string
	for _, id := range jobIDs {
		command := sched.CreateKillCommand(id)
		if opts.DryRun {
			fmt.Fprintln(cmd.OutOrStdout(), command)
			continue
		}
		if _, err := processes.Execute(cmd.Context(), command, ec); err != nil {
			log.WithFields(map[string]any{"job_id": id}).Error(err, "kill failed")
			failed = append(failed, id)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "killed %s job %s\n", sched.Name(), id)
	}

	if len(failed) > 0 {
		return newCommandError("kill", "jobs "+strings.Join(failed, ", "), fmt.Errorf("%d kill commands failed", len(failed)), "")
	}
	return nil
}
