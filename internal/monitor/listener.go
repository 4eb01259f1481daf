package monitor

import (
	"context"
	"sync"
)

// Listener receives the single outcome of a watched job.
type Listener struct {
	once     sync.Once
	done     chan struct{}
	exitCode int
	err      error
}

func newListener() *Listener {
	return &Listener{done: make(chan struct{}), exitCode: -1}
}

func (l *Listener) processComplete(exitCode int) {
	l.once.Do(func() {
		l.exitCode = exitCode
		close(l.done)
	})
}

func (l *Listener) processError(err error) {
	l.once.Do(func() {
		l.err = err
		close(l.done)
	})
}

// Done is closed once the outcome is known.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// WaitFor blocks until the outcome is known or ctx ends.
func (l *Listener) WaitFor(ctx context.Context) (int, error) {
	select {
	case <-l.done:
		return l.exitCode, l.err
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}
