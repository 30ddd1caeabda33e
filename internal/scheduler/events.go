package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/omnitensor/omnitensor-node/pkg/types"
)

// Event names emitted by the dispatcher.
const (
	EventTaskCompleted = "task_completed"
	EventTaskFailed    = "task_failed"
)

// Event reports the terminal outcome of one task. Downstream collaborators
// (result consumers, network broadcast) subscribe through an EventPublisher.
type Event struct {
	Name   string
	TaskID string
	Device string
	// Result is set for completed tasks.
	Result *types.TaskResult
	// Err is set for failed tasks.
	Err error
}

// EventPublisher receives dispatcher events. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// LogPublisher writes each event as a structured log line. The daemon's
// default downstream until a network/consensus consumer is attached.
type LogPublisher struct {
	Log zerolog.Logger
}

func (p LogPublisher) Publish(e Event) {
	switch e.Name {
	case EventTaskCompleted:
		ev := p.Log.Info().Str("task_id", e.TaskID).Str("device", e.Device)
		if e.Result != nil {
			ev = ev.Dur("duration", e.Result.Duration).Bool("overdue", e.Result.Overdue)
		}
		ev.Msg("task completed")
	case EventTaskFailed:
		p.Log.Error().Str("task_id", e.TaskID).Str("device", e.Device).Err(e.Err).Msg("task failed")
	}
}
