// Package execution bundles where and how a command runs.
package execution

import (
	"github.com/alexisbeaulieu97/batchrun/internal/locality"
	"github.com/alexisbeaulieu97/batchrun/internal/scheduler"
)

// Context is a Locality plus an optional Scheduler and the foreground intent.
// Services always work on a Copy so per-stage mutations never leak back.
type Context struct {
	locality   locality.Locality
	scheduler  scheduler.Scheduler
	foreground bool

	// jobName and monitorFile apply when no scheduler is present.
	jobName     string
	monitorFile string
	external    *ExternalConfig
}

// New creates a Context. A nil locality is allowed; executing through it is a no-op.
func New(loc locality.Locality, sched scheduler.Scheduler, foreground bool) *Context {
	return &Context{locality: loc, scheduler: sched, foreground: foreground}
}

// NewLocal creates a foreground Context on the local machine without a scheduler.
func NewLocal() *Context {
	return New(locality.NewLocal(), nil, true)
}

// Copy returns a deep copy: the locality and scheduler (with its args) are duplicated.
// The external configuration is read-only and shared.
func (c *Context) Copy() *Context {
	cp := *c
	if c.locality != nil {
		cp.locality = c.locality.Copy()
	}
	if c.scheduler != nil {
		cp.scheduler = c.scheduler.Copy()
	}
	return &cp
}

func (c *Context) Locality() locality.Locality { return c.locality }

func (c *Context) SetLocality(loc locality.Locality) { c.locality = loc }

func (c *Context) Scheduler() scheduler.Scheduler { return c.scheduler }

func (c *Context) SetScheduler(s scheduler.Scheduler) { c.scheduler = s }

// UsingScheduler reports whether commands are submitted as jobs.
func (c *Context) UsingScheduler() bool { return c.scheduler != nil }

func (c *Context) Foreground() bool { return c.foreground }

func (c *Context) SetForeground(foreground bool) { c.foreground = foreground }

// JobName comes from the scheduler args when a scheduler is in use.
func (c *Context) JobName() string {
	if c.scheduler != nil {
		return c.scheduler.Args().JobName
	}
	return c.jobName
}

func (c *Context) SetJobName(name string) {
	c.jobName = name
	if c.scheduler != nil {
		c.scheduler.Args().JobName = name
	}
}

// MonitorFile comes from the scheduler args when a scheduler is in use.
func (c *Context) MonitorFile() string {
	if c.scheduler != nil {
		return c.scheduler.Args().MonitorFile
	}
	return c.monitorFile
}

func (c *Context) SetMonitorFile(path string) {
	c.monitorFile = path
	if c.scheduler != nil {
		c.scheduler.Args().MonitorFile = path
	}
}

// External returns the pre-command configuration, possibly nil.
func (c *Context) External() *ExternalConfig { return c.external }

func (c *Context) SetExternal(cfg *ExternalConfig) { c.external = cfg }
