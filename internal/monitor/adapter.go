// Package monitor detects completion of background scheduler jobs by polling the
// monitor file the scheduler writes when a job ends.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/alexisbeaulieu97/batchrun/internal/shell"
)

// DefaultInterval is the poll period used when an adapter is created without one.
const DefaultInterval = 5 * time.Second

// Completion is what a Detector extracts from a finished monitor file.
type Completion struct {
	ExitCode int
	Host     string
}

// Detector inspects the current monitor file contents and reports whether the job has finished.
type Detector func(lines []string) (Completion, bool)

// Adapter watches one monitor file.
type Adapter struct {
	file     string
	interval time.Duration
	detect   Detector

	mu     sync.RWMutex
	output []string
	host   string
}

// NewAdapter creates an adapter for file.
func NewAdapter(file string, interval time.Duration, detect Detector) *Adapter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Adapter{file: file, interval: interval, detect: detect}
}

// File returns the watched path.
func (a *Adapter) File() string {
	return a.file
}

// Reset removes a stale monitor file left by an earlier attempt so it is not
// mistaken for the completion of the job about to be submitted.
func (a *Adapter) Reset() error {
	if err := os.Remove(a.file); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reset monitor file %s: %w", a.file, err)
	}
	return nil
}

// Start begins polling in the background and returns the listener that receives the outcome.
func (a *Adapter) Start(ctx context.Context) *Listener {
	listener := newListener()
	go a.poll(ctx, listener)
	return listener
}

// WaitFor blocks until the job finishes and returns its exit value.
func (a *Adapter) WaitFor(ctx context.Context) (int, error) {
	return a.Start(ctx).WaitFor(ctx)
}

// Output returns the monitor file contents captured at completion.
func (a *Adapter) Output() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.output...)
}

// Host returns the execution host reported in the monitor file, if any.
func (a *Adapter) Host() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.host
}

func (a *Adapter) poll(ctx context.Context, listener *Listener) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		done, err := a.check(listener)
		if err != nil {
			listener.processError(err)
			return
		}
		if done {
			return
		}

		select {
		case <-ctx.Done():
			listener.processError(ctx.Err())
			return
		case <-ticker.C:
		}
	}
}

func (a *Adapter) check(listener *Listener) (bool, error) {
	data, err := os.ReadFile(a.file)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read monitor file %s: %w", a.file, err)
	}

	lines := shell.SplitLines(string(data))
	completion, finished := a.detect(lines)
	if !finished {
		return false, nil
	}

	a.mu.Lock()
	a.output = lines
	a.host = completion.Host
	a.mu.Unlock()

	listener.processComplete(completion.ExitCode)
	return true, nil
}
