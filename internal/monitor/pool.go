package monitor

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// Outcome is the result of one monitored unit of a job array.
type Outcome struct {
	Index    int
	ExitCode int
	Err      error
}

// Failed reports whether the unit ended badly.
func (o Outcome) Failed() bool {
	return o.Err != nil || o.ExitCode != 0
}

// WaitAll waits on every adapter concurrently, on a pool sized to the number of
// adapters, and blocks until each unit has completed or failed. Units are
// independent: one failing never cancels the others. The returned error
// aggregates every unit error.
func WaitAll(ctx context.Context, adapters []*Adapter) ([]Outcome, error) {
	outcomes := make([]Outcome, len(adapters))
	if len(adapters) == 0 {
		return outcomes, nil
	}

	var g errgroup.Group
	g.SetLimit(len(adapters))

	for i, adapter := range adapters {
		i, adapter := i, adapter
		g.Go(func() error {
			unitCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			exitCode, err := adapter.WaitFor(unitCtx)
			outcomes[i] = Outcome{Index: i, ExitCode: exitCode, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	var result *multierror.Error
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			result = multierror.Append(result, fmt.Errorf("unit %d (%s): %w", outcome.Index, adapters[outcome.Index].File(), outcome.Err))
		}
	}
	return outcomes, result.ErrorOrNil()
}
