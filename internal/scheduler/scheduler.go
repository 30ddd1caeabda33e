package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/omnitensor/omnitensor-node/internal/device"
	"github.com/omnitensor/omnitensor-node/pkg/types"
)

// defaultMaxInputBytes caps a submitted payload when no limit is configured.
const defaultMaxInputBytes = 4 << 20

// Scheduler is the node's compute core: a bounded FIFO task queue drained by
// a single dispatch loop that binds each task to the least-loaded device and
// hands it to the model executor.
type Scheduler struct {
	queue      *Queue
	dispatcher *Dispatcher
	devices    *device.Registry
	registry   []types.Model
	metrics    *Metrics
	log        zerolog.Logger

	maxInputBytes int
	startTime     time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Config carries the scheduler's collaborators and tunables. Zero values get
// package defaults.
type Config struct {
	Models        []types.Model
	Devices       *device.Registry
	Executor      Executor
	Metrics       *Metrics
	Publisher     EventPublisher
	QueueCapacity int
	IdleInterval  time.Duration
	MaxInputBytes int
	Log           zerolog.Logger
}

// New wires a scheduler from its collaborators.
func New(cfg Config) *Scheduler {
	q := NewQueue(cfg.QueueCapacity)
	s := &Scheduler{
		queue:         q,
		devices:       cfg.Devices,
		registry:      cfg.Models,
		metrics:       cfg.Metrics,
		log:           cfg.Log,
		maxInputBytes: cfg.MaxInputBytes,
		startTime:     time.Now(),
	}
	if s.maxInputBytes <= 0 {
		s.maxInputBytes = defaultMaxInputBytes
	}
	s.dispatcher = NewDispatcher(DispatcherConfig{
		Queue:        q,
		Pool:         registryPool{reg: cfg.Devices},
		Executor:     cfg.Executor,
		Metrics:      cfg.Metrics,
		Publisher:    cfg.Publisher,
		IdleInterval: cfg.IdleInterval,
		Log:          cfg.Log,
	})
	return s
}

// registryPool adapts *device.Registry to the dispatcher's DevicePool.
type registryPool struct{ reg *device.Registry }

func (p registryPool) Acquire() (DeviceLease, bool) {
	l, ok := p.reg.Acquire()
	if !ok {
		return nil, false
	}
	return l, true
}

// Start launches the dispatch loop. Idempotent while running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	go func() {
		defer close(s.done)
		s.dispatcher.Run(runCtx)
	}()
	s.log.Info().Int("queue_capacity", s.queue.Cap()).Msg("scheduler started")
}

// Shutdown closes the queue, lets the dispatcher drain, and waits for
// in-flight executions up to ctx's deadline before forcing the loop down.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	s.queue.Close()
	select {
	case <-done:
		cancel()
		return nil
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

// Submit validates and enqueues a task. Blocks under backpressure until the
// queue frees a slot or ctx ends.
func (s *Scheduler) Submit(ctx context.Context, task types.Task) error {
	if strings.TrimSpace(task.ModelID) == "" {
		return ErrInvalidTask("model id is required")
	}
	if len(task.Input) > s.maxInputBytes {
		return ErrInvalidTask("input payload too large")
	}
	if len(s.registry) > 0 && !s.hasModel(task.ModelID) {
		return unknownModelError{id: task.ModelID}
	}
	if err := s.queue.Submit(ctx, task); err != nil {
		return err
	}
	s.metrics.TaskQueued(s.queue.Len())
	s.log.Debug().Str("task_id", task.ID).Str("model", task.ModelID).Msg("task queued")
	return nil
}

// SubmitTask admits an API submission, assigning a task id.
func (s *Scheduler) SubmitTask(ctx context.Context, req types.SubmitTaskRequest) (string, error) {
	task := types.Task{
		ID:          uuid.NewString(),
		ModelID:     req.Model,
		Input:       req.Input,
		Params:      req.Params,
		Priority:    req.Priority,
		MaxDuration: time.Duration(req.MaxDurationMS) * time.Millisecond,
	}
	if err := s.Submit(ctx, task); err != nil {
		return "", err
	}
	return task.ID, nil
}

func (s *Scheduler) hasModel(id string) bool {
	for _, m := range s.registry {
		if m.ID == id {
			return true
		}
	}
	return false
}

// QueueLength reports the current pending count.
func (s *Scheduler) QueueLength() int { return s.queue.Len() }

// DeviceStats snapshots {total, used} per registered device.
func (s *Scheduler) DeviceStats() []types.MemoryInfo { return s.devices.Stats() }

// ListModels returns the model registry.
func (s *Scheduler) ListModels() []types.Model {
	out := make([]types.Model, len(s.registry))
	copy(out, s.registry)
	return out
}

// Ready reports whether the dispatch loop is running.
func (s *Scheduler) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status builds the /status report.
func (s *Scheduler) Status() types.StatusResponse {
	state := "stopped"
	if s.Ready() {
		state = "running"
	}
	now := time.Now()
	return types.StatusResponse{
		State:          state,
		QueueLength:    s.queue.Len(),
		QueueCapacity:  s.queue.Cap(),
		Devices:        s.devices.Status(),
		UptimeSeconds:  int64(now.Sub(s.startTime).Seconds()),
		ServerTimeUnix: now.Unix(),
	}
}
