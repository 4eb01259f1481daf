package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/batchrun/internal/logger"
	"github.com/alexisbeaulieu97/batchrun/internal/task"
)

func newLogger(t *testing.T, buf *bytes.Buffer) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Options{Writer: buf, Level: "debug"})
	require.NoError(t, err)
	return log
}

func sampleEvent(kind task.EventKind) task.Event {
	start := time.Now().Add(-time.Second)
	return task.Event{
		Kind:          kind,
		TaskID:        "abc-123",
		TaskName:      "demo",
		State:         task.StateRunning,
		StatusMessage: "Finished 'align'",
		Process:       "align",
		Run:           &task.ProcessRun{ProcessName: "align", Start: start, End: start.Add(time.Second)},
	}
}

func TestPublisherLogsStructuredEntry(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	publisher := NewPublisher(newLogger(t, buf))
	require.NoError(t, publisher.Publish(context.Background(), sampleEvent(task.EventProcessEnded)))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "task event", entry["message"])
	require.Equal(t, string(task.EventProcessEnded), entry["event_type"])
	require.Equal(t, "abc-123", entry["task_id"])
	require.Equal(t, "RUNNING", entry["state"])
	require.Equal(t, "align", entry["process"])
	require.EqualValues(t, 0, entry["exit_value"])
}

func TestPublisherInvokesSubscribers(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	publisher := NewPublisher(newLogger(t, buf))

	var kinds []task.EventKind
	sub := publisher.Subscribe(task.EventProcessEnded, func(_ context.Context, ev task.Event) error {
		kinds = append(kinds, ev.Kind)
		return nil
	})
	publisher.Subscribe(AllEvents, func(_ context.Context, ev task.Event) error {
		kinds = append(kinds, "all:"+ev.Kind)
		return errors.New("handler broke")
	})

	require.NoError(t, publisher.Publish(context.Background(), sampleEvent(task.EventProcessEnded)))
	require.NoError(t, publisher.Publish(context.Background(), sampleEvent(task.EventProcessStarted)))
	sub.Unsubscribe()
	require.NoError(t, publisher.Publish(context.Background(), sampleEvent(task.EventProcessEnded)))

	require.Equal(t, []task.EventKind{
		task.EventProcessEnded,
		"all:" + task.EventProcessEnded,
		"all:" + task.EventProcessStarted,
		"all:" + task.EventProcessEnded,
	}, kinds)
	require.True(t, strings.Contains(buf.String(), "event handler failed"))
}

func TestPublisherListenerForwardsEvents(t *testing.T) {
	t.Parallel()

	publisher := NewPublisher(logger.Nop())
	var got []task.EventKind
	publisher.Subscribe(AllEvents, func(_ context.Context, ev task.Event) error {
		got = append(got, ev.Kind)
		return nil
	})

	listener := publisher.Listener(context.Background())
	listener.ProcessStarted(sampleEvent(task.EventProcessStarted))
	listener.ProcessFailed(sampleEvent(task.EventProcessFailed))
	require.Equal(t, []task.EventKind{task.EventProcessStarted, task.EventProcessFailed}, got)
}

func TestNilPublisherIsSafe(t *testing.T) {
	t.Parallel()

	var publisher *Publisher
	require.NoError(t, publisher.Publish(context.Background(), sampleEvent(task.EventStateChanged)))
	publisher.Subscribe(AllEvents, func(context.Context, task.Event) error { return nil }).Unsubscribe()
}
