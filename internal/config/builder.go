package config

import (
	"fmt"
	"maps"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/alexisbeaulieu97/batchrun/internal/execution"
	"github.com/alexisbeaulieu97/batchrun/internal/locality"
	"github.com/alexisbeaulieu97/batchrun/internal/logger"
	"github.com/alexisbeaulieu97/batchrun/internal/process"
	"github.com/alexisbeaulieu97/batchrun/internal/scheduler"
	"github.com/alexisbeaulieu97/batchrun/internal/service"
	"github.com/alexisbeaulieu97/batchrun/internal/task"
	batcherrors "github.com/alexisbeaulieu97/batchrun/pkg/errors"
)

// BuildLocality creates the configured locality.
func (c *Config) BuildLocality(log *logger.Logger) locality.Locality {
	loc := c.Environment.Locality
	if loc.Type != "remote" {
		return locality.NewLocal(locality.WithLogger(log))
	}
	return locality.NewRemote(locality.ConnectionDetails{
		Host:     loc.Host,
		Port:     loc.Port,
		Username: loc.User,
		Password: loc.Password,
		KeyFile:  loc.KeyFile,
		Timeout:  loc.Timeout,
	}, log)
}

// BuildScheduler creates the configured scheduler, or nil when none is set.
func (c *Config) BuildScheduler(log *logger.Logger) (scheduler.Scheduler, error) {
	cfg := c.Environment.Scheduler
	if cfg == nil {
		return nil, nil
	}

	args := scheduler.NewArgs()
	args.QueueName = cfg.Queue
	args.ExtraArgs = cfg.ExtraArgs
	args.MonitorInterval = cfg.MonitorInterval

	sched, err := scheduler.New(cfg.Type, scheduler.WithArgs(args), scheduler.WithLogger(log))
	if err != nil {
		return nil, err
	}
	if slurm, ok := sched.(*scheduler.SLURM); ok && cfg.SlurmJobIDSource != "" {
		slurm.SetJobIDSource(scheduler.JobIDSource(cfg.SlurmJobIDSource))
	}
	return sched, nil
}

// BuildContext assembles the execution context shared by every stage. Inline
// pre-commands override those loaded from pre_commands_file.
func (c *Config) BuildContext(log *logger.Logger) (*execution.Context, error) {
	sched, err := c.BuildScheduler(log)
	if err != nil {
		return nil, err
	}

	commands := make(map[string]string)
	if c.PreCommandsFile != "" {
		loaded, err := loadPreCommands(c.PreCommandsFile)
		if err != nil {
			return nil, err
		}
		maps.Copy(commands, loaded)
	}
	maps.Copy(commands, c.PreCommands)

	ec := execution.New(c.BuildLocality(log), sched, c.Environment.IsForeground())
	ec.SetExternal(execution.NewExternalConfig(commands))
	return ec, nil
}

func loadPreCommands(path string) (map[string]string, error) {
	external, err := execution.LoadExternalConfig(path)
	if err != nil {
		return nil, batcherrors.NewValidationError("pre_commands_file", "cannot load pre-commands", err)
	}
	return external.Commands(), nil
}

// BuildPipeline converts the stage list into a runnable pipeline.
func (c *Config) BuildPipeline() (*task.Pipeline, error) {
	stages := make([]process.Process, 0, len(c.Stages))
	for i, stage := range c.Stages {
		p, err := stage.BuildProcess()
		if err != nil {
			return nil, batcherrors.NewValidationError(fieldForStage(i, "command"), err.Error(), err)
		}
		stages = append(stages, p)
	}

	pipeline := task.NewPipeline(c.Name, stages...)
	pipeline.OutputDir = c.OutputDirectory()
	pipeline.ContinueOnError = c.ContinueOnError
	if err := pipeline.Validate(); err != nil {
		return nil, err
	}
	return pipeline, nil
}

// OutputDirectory is output_dir, or the working directory when unset.
func (c *Config) OutputDirectory() string {
	if strings.TrimSpace(c.OutputDir) == "" {
		return "."
	}
	return filepath.Clean(c.OutputDir)
}

// StageOptions returns per-stage scheduler resources keyed by stage name.
// Stages that request nothing are omitted.
func (c *Config) StageOptions() map[string]service.StageOptions {
	out := make(map[string]service.StageOptions)
	for _, stage := range c.Stages {
		opts := service.StageOptions{
			Threads:     stage.Resources.Threads,
			MemoryMB:    stage.Resources.MemoryMB,
			RuntimeMins: stage.Resources.RuntimeMins,
			OpenMPI:     stage.Resources.OpenMPI,
		}
		if stage.JobArray != nil {
			opts.JobArray = &scheduler.JobArrayArgs{
				MinIndex:            stage.JobArray.Min,
				MaxIndex:            stage.JobArray.Max,
				StepIndex:           stage.JobArray.Step,
				MaxSimultaneousJobs: stage.JobArray.MaxSimultaneous,
			}
		}
		if opts == (service.StageOptions{}) {
			continue
		}
		out[stage.Name] = opts
	}
	return out
}

// BuildProcess compiles the stage into a command process.
func (s Stage) BuildProcess() (*process.CommandProcess, error) {
	params := make([]process.Parameter, 0, len(s.Parameters))
	for _, p := range s.Parameters {
		param := process.Parameter{
			Name:        p.Name,
			Description: p.Description,
			Required:    p.Required,
			Flag:        p.Flag,
			Default:     p.Default,
		}
		if p.Pattern != "" {
			re, err := regexp.Compile(p.Pattern)
			if err != nil {
				return nil, fmt.Errorf("parameter %s: %w", p.Name, err)
			}
			param.Pattern = re
		}
		params = append(params, param)
	}
	return process.NewCommandProcess(s.Name, s.Executable, s.Command, params)
}
