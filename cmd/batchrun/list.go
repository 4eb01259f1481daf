package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/batchrun/internal/task"
	"github.com/alexisbeaulieu97/batchrun/internal/taskstore"
)

type listOptions struct {
	ConfigPath string
	StatePath  string
	jsonOutput bool
}

func newListCmd() *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded tasks and where they stopped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Pipeline file whose output directory holds the task store")
	cmd.Flags().StringVar(&opts.StatePath, "state", "", "Task snapshot file")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

func runList(cmd *cobra.Command, opts *listOptions) error {
	statePath := opts.StatePath
	if statePath == "" {
		outputDir := "."
		if opts.ConfigPath != "" {
			cfg, err := loadConfig(opts.ConfigPath)
			if err != nil {
				return err
			}
			outputDir = cfg.OutputDirectory()
		}
		statePath = defaultStatePath(outputDir)
	}

	store, err := taskstore.Open(statePath)
	if err != nil {
		return newCommandError("list", "loading task store", err, "Check the task store file permissions and try again.")
	}

	tasks := store.List()
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].Created.After(tasks[j].Created)
	})

	if opts.jsonOutput {
		return renderListJSON(cmd, tasks)
	}
	if len(tasks) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No tasks recorded yet.")
		return nil
	}
	return renderListTable(cmd, tasks)
}

func renderListTable(cmd *cobra.Command, tasks []task.Snapshot) error {
	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

	fmt.Fprintln(writer, "ID\tPIPELINE\tSTATE\tSTAGE\tSTATUS\tCREATED")
	for _, snap := range tasks {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%d\t%s\t%s\n",
			snap.ID,
			snap.Pipeline,
			snap.State,
			snap.CurrentIndex,
			valueOrFallback(snap.Status, "-"),
			formatRelativeTime(snap.Created),
		)
	}

	return writer.Flush()
}

type listJSONPayload struct {
	Version string          `json:"version"`
	Count   int             `json:"count"`
	Tasks   []task.Snapshot `json:"tasks"`
}

func renderListJSON(cmd *cobra.Command, tasks []task.Snapshot) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(listJSONPayload{Version: "1.0", Count: len(tasks), Tasks: tasks})
}

func formatRelativeTime(ts time.Time) string {
	if ts.IsZero() {
		return "never"
	}

	delta := time.Since(ts)
	switch {
	case delta < time.Minute:
		return "just now"
	case delta < time.Hour:
		return fmt.Sprintf("%dm ago", int(delta.Minutes()))
	case delta < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(delta.Hours()))
	default:
		return ts.Format("2006-01-02 15:04")
	}
}

func valueOrFallback(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
