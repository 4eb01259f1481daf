// Package events fans task lifecycle events out to subscribers and the structured log.
package events

import (
	"context"
	"sync"

	"github.com/alexisbeaulieu97/batchrun/internal/logger"
	"github.com/alexisbeaulieu97/batchrun/internal/task"
)

// AllEvents subscribes a handler to every kind.
const AllEvents task.EventKind = "*"

// Handler processes one event. Returned errors are logged and do not stop delivery.
type Handler func(context.Context, task.Event) error

// Subscription stops delivery when cancelled.
type Subscription interface {
	Unsubscribe()
}

// Publisher writes each event as a structured log entry and then invokes the
// handlers subscribed to its kind. Dispatch is synchronous.
type Publisher struct {
	log    *logger.Logger
	subs   map[task.EventKind][]subscriptionEntry
	nextID int
	mu     sync.RWMutex
}

// NewPublisher creates a Publisher.
func NewPublisher(log *logger.Logger) *Publisher {
	return &Publisher{
		log:  log.Component("events"),
		subs: make(map[task.EventKind][]subscriptionEntry),
	}
}

// Publish logs ev and delivers it to subscribers.
func (p *Publisher) Publish(ctx context.Context, ev task.Event) error {
	if p == nil {
		return nil
	}

	p.mu.RLock()
	handlers := append([]subscriptionEntry(nil), p.subs[ev.Kind]...)
	handlers = append(handlers, p.subs[AllEvents]...)
	p.mu.RUnlock()

	fields := map[string]any{
		"event_type": string(ev.Kind),
		"task_id":    ev.TaskID,
		"pipeline":   ev.TaskName,
		"state":      ev.State.String(),
		"status":     ev.StatusMessage,
	}
	if ev.Process != "" {
		fields["process"] = ev.Process
	}
	if ev.Run != nil && !ev.Run.End.IsZero() {
		fields["exit_value"] = ev.Run.ExitValue
		fields["duration"] = ev.Run.Duration().String()
	}
	entry := p.log.WithFields(fields)
	if ev.Err != nil {
		entry.Error(ev.Err, "task event")
	} else {
		entry.Info("task event")
	}

	for _, sub := range handlers {
		if sub.handler == nil {
			continue
		}
		if err := sub.handler(ctx, ev); err != nil {
			p.log.WithFields(map[string]any{"event_type": string(ev.Kind)}).Warnf("event handler failed: %v", err)
		}
	}
	return nil
}

// Subscribe registers handler for kind, or for every kind with AllEvents.
func (p *Publisher) Subscribe(kind task.EventKind, handler Handler) Subscription {
	if p == nil || handler == nil {
		return noopSubscription{}
	}
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.subs[kind] = append(p.subs[kind], subscriptionEntry{id: id, handler: handler})
	p.mu.Unlock()

	return subscription{
		cancel: func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			handlers := p.subs[kind]
			for i, entry := range handlers {
				if entry.id == id {
					p.subs[kind] = append(handlers[:i], handlers[i+1:]...)
					break
				}
			}
		},
	}
}

// Listener adapts the publisher to a task listener publishing under ctx.
func (p *Publisher) Listener(ctx context.Context) task.Listener {
	publish := func(ev task.Event) { _ = p.Publish(ctx, ev) }
	return task.ListenerFuncs{
		OnStateChanged:   publish,
		OnProcessStarted: publish,
		OnProcessEnded:   publish,
		OnProcessFailed:  publish,
	}
}

type noopSubscription struct{}

func (noopSubscription) Unsubscribe() {}

type subscription struct {
	cancel func()
}

func (s subscription) Unsubscribe() {
	if s.cancel != nil {
		s.cancel()
	}
}

type subscriptionEntry struct {
	id      int
	handler Handler
}
