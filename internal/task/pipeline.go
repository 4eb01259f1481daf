package task

import (
	"fmt"

	"github.com/alexisbeaulieu97/batchrun/internal/process"
	batcherrors "github.com/alexisbeaulieu97/batchrun/pkg/errors"
)

// Pipeline is an ordered list of stages.
type Pipeline struct {
	Name      string
	OutputDir string
	// ContinueOnError runs the remaining stages after a non-aborting failure.
	ContinueOnError bool
	Stages          []process.Process
}

// NewPipeline creates a Pipeline.
func NewPipeline(name string, stages ...process.Process) *Pipeline {
	return &Pipeline{Name: name, Stages: stages}
}

// Validate requires a name and unique stage names.
func (p *Pipeline) Validate() error {
	if p.Name == "" {
		return batcherrors.NewValidationError("name", "pipeline name is required", nil)
	}
	seen := make(map[string]struct{}, len(p.Stages))
	for i, stage := range p.Stages {
		if stage == nil {
			return batcherrors.NewValidationError(fmt.Sprintf("stages[%d]", i), "stage is nil", nil)
		}
		if _, dup := seen[stage.Name()]; dup {
			return batcherrors.NewValidationError(fmt.Sprintf("stages[%d]", i), fmt.Sprintf("duplicate stage name %q", stage.Name()), nil)
		}
		seen[stage.Name()] = struct{}{}
	}
	return nil
}

// Contains reports whether a stage named name is part of the pipeline.
func (p *Pipeline) Contains(name string) bool {
	return p.IndexOf(name) >= 0
}

// IndexOf returns the position of the stage named name, or -1.
func (p *Pipeline) IndexOf(name string) int {
	for i, stage := range p.Stages {
		if stage.Name() == name {
			return i
		}
	}
	return -1
}

func (p *Pipeline) stage(i int) process.Process {
	if i < 0 || i >= len(p.Stages) {
		return nil
	}
	return p.Stages[i]
}
