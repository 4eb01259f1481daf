package config

import "time"

// Config is the batchrun pipeline document.
type Config struct {
	Version         string            `yaml:"version,omitempty" validate:"omitempty,semver"`
	Name            string            `yaml:"name" validate:"required,stage_name"`
	Description     string            `yaml:"description,omitempty"`
	OutputDir       string            `yaml:"output_dir,omitempty"`
	ContinueOnError bool              `yaml:"continue_on_error,omitempty"`
	Environment     Environment       `yaml:"environment,omitempty"`
	PreCommands     map[string]string `yaml:"pre_commands,omitempty"`
	PreCommandsFile string            `yaml:"pre_commands_file,omitempty"`
	Parameters      map[string]string `yaml:"parameters,omitempty"`
	Stages          []Stage           `yaml:"stages" validate:"required,min=1,dive"`
	Outputs         []OutputCheck     `yaml:"outputs,omitempty" validate:"omitempty,dive"`
}

// Environment selects where and how stages run.
type Environment struct {
	Locality  Locality   `yaml:"locality,omitempty"`
	Scheduler *Scheduler `yaml:"scheduler,omitempty"`
	// Foreground defaults to true; false dispatches scheduled stages without waiting.
	Foreground *bool `yaml:"foreground,omitempty"`
}

// Locality is the local machine or an SSH reachable host.
type Locality struct {
	Type     string        `yaml:"type,omitempty" validate:"omitempty,oneof=local remote"`
	Host     string        `yaml:"host,omitempty" validate:"required_if=Type remote"`
	Port     int           `yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	User     string        `yaml:"user,omitempty" validate:"required_if=Type remote"`
	Password string        `yaml:"password,omitempty"`
	KeyFile  string        `yaml:"key_file,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

// Scheduler configures batch submission shared by every stage.
type Scheduler struct {
	Type             string        `yaml:"type" validate:"required,scheduler_type"`
	Queue            string        `yaml:"queue,omitempty"`
	ExtraArgs        string        `yaml:"extra_args,omitempty"`
	MonitorInterval  time.Duration `yaml:"monitor_interval,omitempty"`
	SlurmJobIDSource string        `yaml:"slurm_job_id_source,omitempty" validate:"omitempty,oneof=stdout stderr"`
}

// Stage is one pipeline step.
type Stage struct {
	Name       string      `yaml:"name" validate:"required,stage_name"`
	Executable string      `yaml:"executable" validate:"required"`
	Command    string      `yaml:"command" validate:"required"`
	Parameters []Parameter `yaml:"parameters,omitempty" validate:"omitempty,dive"`
	Resources  Resources   `yaml:"resources,omitempty"`
	JobArray   *JobArray   `yaml:"job_array,omitempty"`
}

// Parameter declares one stage input.
type Parameter struct {
	Name        string `yaml:"name" validate:"required"`
	Description string `yaml:"description,omitempty"`
	Required    bool   `yaml:"required,omitempty"`
	Flag        bool   `yaml:"flag,omitempty"`
	Default     string `yaml:"default,omitempty"`
	Pattern     string `yaml:"pattern,omitempty"`
}

// Resources requested from the scheduler for a stage.
type Resources struct {
	Threads     int  `yaml:"threads,omitempty" validate:"omitempty,min=1"`
	MemoryMB    int  `yaml:"memory_mb,omitempty" validate:"omitempty,min=1"`
	RuntimeMins int  `yaml:"runtime_mins,omitempty" validate:"omitempty,min=1"`
	OpenMPI     bool `yaml:"openmpi,omitempty"`
}

// JobArray fans a stage out over an index range.
type JobArray struct {
	Min             int `yaml:"min" validate:"min=0"`
	Max             int `yaml:"max" validate:"gtefield=Min"`
	Step            int `yaml:"step,omitempty" validate:"omitempty,min=1"`
	MaxSimultaneous int `yaml:"max_simultaneous,omitempty" validate:"omitempty,min=1"`
}

// IsForeground resolves the foreground default.
func (e Environment) IsForeground() bool {
	return e.Foreground == nil || *e.Foreground
}

// Output check types.
const (
	CheckFileExists   = "file_exists"
	CheckNonEmpty     = "non_empty"
	CheckPathContains = "path_contains"
)

// OutputCheck describes a file the pipeline must have produced. Relative paths
// are resolved against output_dir.
type OutputCheck struct {
	Type string `yaml:"type" validate:"required,oneof=file_exists non_empty path_contains"`
	Path string `yaml:"path" validate:"required"`
	// Text is a regular expression, required for path_contains.
	Text string `yaml:"text,omitempty" validate:"required_if=Type path_contains"`
}
