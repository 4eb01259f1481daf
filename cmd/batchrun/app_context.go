package main

import (
	"github.com/alexisbeaulieu97/batchrun/internal/config"
	"github.com/alexisbeaulieu97/batchrun/internal/events"
	"github.com/alexisbeaulieu97/batchrun/internal/execution"
	"github.com/alexisbeaulieu97/batchrun/internal/logger"
	"github.com/alexisbeaulieu97/batchrun/internal/service"
	"github.com/alexisbeaulieu97/batchrun/internal/task"
)

// AppContext bundles the services built from one pipeline document.
type AppContext struct {
	Config    *config.Config
	Log       *logger.Logger
	Exec      *execution.Context
	Pipeline  *task.Pipeline
	Processes *service.ProcessService
	Executor  *service.ExecutorService
	Events    *events.Publisher
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.ParseConfig(path)
	if err != nil {
		return nil, newCommandError("load pipeline", path, err, "Fix the reported fields and try again.")
	}
	return cfg, nil
}

func newAppContext(cfg *config.Config, log *logger.Logger) (*AppContext, error) {
	ec, err := cfg.BuildContext(log)
	if err != nil {
		return nil, newCommandError("prepare environment", cfg.Name, err, "")
	}

	pipeline, err := cfg.BuildPipeline()
	if err != nil {
		return nil, newCommandError("build pipeline", cfg.Name, err, "")
	}

	processes := service.NewProcessService(log)
	executor := service.NewExecutorService(processes, ec, log)
	for name, opts := range cfg.StageOptions() {
		executor.SetStageOptions(name, opts)
	}

	return &AppContext{
		Config:    cfg,
		Log:       log,
		Exec:      ec,
		Pipeline:  pipeline,
		Processes: processes,
		Executor:  executor,
		Events:    events.NewPublisher(log),
	}, nil
}
