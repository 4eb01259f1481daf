package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/alexisbeaulieu97/batchrun/internal/config"
	"github.com/alexisbeaulieu97/batchrun/internal/events"
	"github.com/alexisbeaulieu97/batchrun/internal/model"
	"github.com/alexisbeaulieu97/batchrun/internal/task"
	"github.com/alexisbeaulieu97/batchrun/internal/taskstore"
	"github.com/alexisbeaulieu97/batchrun/internal/tui"
	"github.com/alexisbeaulieu97/batchrun/internal/tui/components"
	"github.com/alexisbeaulieu97/batchrun/internal/validation"
)

type runOptions struct {
	ConfigPath     string
	StatePath      string
	Params         []string
	Resume         bool
	NonInteractive bool
}

var runCmdRunner = runPipeline

func newRunCmd(root *rootFlags) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a pipeline, or resume its last unfinished task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !opts.NonInteractive {
				opts.NonInteractive = !isTerminal(cmd.OutOrStdout())
			}
			if err := validateConfigPath(opts.ConfigPath); err != nil {
				return err
			}
			return runCmdRunner(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to pipeline file")
	cmd.Flags().StringVar(&opts.StatePath, "state", "", "Task snapshot file (default <output_dir>/.batchrun/tasks.json)")
	cmd.Flags().StringArrayVarP(&opts.Params, "param", "p", nil, "Stage parameter as key=value, overriding the pipeline file")
	cmd.Flags().BoolVar(&opts.Resume, "resume", false, "Resume the most recent unfinished task of this pipeline")
	cmd.Flags().BoolVar(&opts.NonInteractive, "no-tui", false, "Disable the progress display")
	cmd.MarkFlagRequired("config") //nolint:errcheck

	return cmd
}

func isTerminal(w io.Writer) bool {
	if file, ok := w.(*os.File); ok {
		return term.IsTerminal(int(file.Fd()))
	}
	return false
}

func runPipeline(cmd *cobra.Command, root *rootFlags, opts runOptions) error {
	overrides, err := parseParams(opts.Params)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	statePath := opts.StatePath
	if statePath == "" {
		statePath = defaultStatePath(cfg.OutputDirectory())
	}

	// The progress display owns the terminal, so logs go to a file beside the snapshots.
	logWriter := cmd.ErrOrStderr()
	if !opts.NonInteractive {
		logFile, err := openRunLog(filepath.Dir(statePath))
		if err != nil {
			return err
		}
		defer logFile.Close()
		logWriter = logFile
	}

	log, err := newLogger(root, logWriter)
	if err != nil {
		return err
	}

	app, err := newAppContext(cfg, log)
	if err != nil {
		return err
	}

	store, err := taskstore.Open(statePath)
	if err != nil {
		return newCommandError("run", "opening task store", err, "Check that the output directory is writable.")
	}

	params := maps.Clone(app.Config.Parameters)
	if params == nil {
		params = map[string]string{}
	}
	maps.Copy(params, overrides)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t, err := newTask(app, store, params, opts.Resume, app.Events.Listener(ctx))
	if err != nil {
		return err
	}
	app.Events.Subscribe(events.AllEvents, store.Record)

	out := cmd.OutOrStdout()
	var result *model.TaskResult
	var execErr error
	if opts.NonInteractive {
		t.Submit()
		result, execErr = t.Execute(ctx, app.Exec)
	} else {
		result, execErr = executeWithProgress(ctx, cancel, app, t, out)
	}

	if result != nil {
		fmt.Fprintln(out)
		for _, line := range result.Report() {
			fmt.Fprintln(out, line)
		}
	}
	fmt.Fprintf(out, "\nTask %s: %s (%s)\n", t.ID(), t.State(), t.StatusMessage())

	if execErr != nil {
		return newCommandError("run", fmt.Sprintf("pipeline %q", app.Pipeline.Name), execErr, resumeHint(t))
	}
	if t.State() == task.StateCompleted && len(cfg.Outputs) > 0 {
		return verifyOutputs(ctx, cfg, out)
	}
	return nil
}

func verifyOutputs(ctx context.Context, cfg *config.Config, out io.Writer) error {
	results, err := validation.RunChecks(ctx, cfg.OutputDirectory(), cfg.Outputs)
	checks := make([]components.CheckStatus, 0, len(results))
	for _, r := range results {
		checks = append(checks, components.CheckStatus{Passed: r.Passed, Message: r.Message})
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, components.NewSummary(components.SummaryData{Checks: checks}).View())
	if err != nil {
		return newCommandError("verify outputs", fmt.Sprintf("pipeline %q", cfg.Name), err, "Inspect the stage logs in the output directory.")
	}
	return nil
}

func openRunLog(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	return os.OpenFile(filepath.Join(dir, "batchrun.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// newTask creates a fresh task, or restores the latest resumable snapshot when resume is set.
func newTask(app *AppContext, store *taskstore.Store, params map[string]string, resume bool, listener task.Listener) (*task.Task, error) {
	opts := []task.Option{task.WithLogger(app.Log), task.WithListener(listener)}
	if !resume {
		return task.New(app.Pipeline, params, app.Executor, opts...)
	}

	snap, err := store.Latest(app.Pipeline.Name)
	if err != nil {
		if errors.Is(err, taskstore.ErrNotFound) {
			return nil, newCommandError("resume", fmt.Sprintf("pipeline %q", app.Pipeline.Name), err, "Start a new run without --resume.")
		}
		return nil, err
	}
	t, err := task.Restore(app.Pipeline, params, app.Executor, snap, opts...)
	if err != nil {
		return nil, newCommandError("resume", "restoring task "+snap.ID, err, "")
	}
	if t.IsPaused() {
		t.Resume()
	}
	app.Log.WithFields(map[string]any{"task_id": t.ID(), "state": snap.State.String()}).Infof("resuming at stage %d", t.CurrentIndex())
	return t, nil
}

func executeWithProgress(ctx context.Context, cancel context.CancelFunc, app *AppContext, t *task.Task, out io.Writer) (*model.TaskResult, error) {
	m := tui.NewModel(app.Pipeline, t.CurrentIndex(), false).WithCancel(cancel)
	program := tea.NewProgram(m, tea.WithOutput(out))

	sub := app.Events.Subscribe(events.AllEvents, tui.Forward(program.Send))
	defer sub.Unsubscribe()

	done := make(chan error, 1)
	go func() {
		_, err := program.Run()
		done <- err
	}()

	t.Submit()
	result, execErr := t.Execute(ctx, app.Exec)
	program.Send(tui.DoneMsg{Err: execErr})

	if err := <-done; err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		app.Log.Warnf("progress display failed: %v", err)
	}
	return result, execErr
}

func resumeHint(t *task.Task) string {
	if t.State().Resumable() {
		return "Fix the failing stage and continue with 'batchrun run --resume'."
	}
	return ""
}
