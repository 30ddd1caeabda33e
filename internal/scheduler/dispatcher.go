package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/omnitensor/omnitensor-node/pkg/types"
)

// defaultIdleInterval is how long the dispatch loop sleeps when the queue is
// empty. Trades up to that much added latency for not busy-spinning a core.
const defaultIdleInterval = 100 * time.Millisecond

// DeviceLease is a scoped hold on one device; Release must be idempotent.
type DeviceLease interface {
	Device() string
	Release()
}

// DevicePool hands out device leases, least-loaded first. The second return
// is false when the pool is (transiently) empty.
type DevicePool interface {
	Acquire() (DeviceLease, bool)
}

// ExecResult is the terminal outcome of one execution.
type ExecResult struct {
	Output []byte
	Err    error
}

// Executor starts a task against its target model and returns immediately;
// the result arrives on the returned channel, which is sent to exactly once.
// Implementations must support concurrent executions of independent tasks.
type Executor interface {
	Execute(ctx context.Context, task types.Task) <-chan ExecResult
}

// Dispatcher drains the queue and drives tasks through device selection and
// execution. A single Run loop owns the queue-pop step and starts executions
// in strict FIFO order; because Execute is non-blocking, tasks bound to
// different devices proceed concurrently while the loop moves on.
type Dispatcher struct {
	queue   *Queue
	pool    DevicePool
	exec    Executor
	metrics *Metrics
	pub     EventPublisher
	idle    time.Duration
	log     zerolog.Logger

	wg sync.WaitGroup
}

// DispatcherConfig carries the dispatcher's collaborators and tunables.
type DispatcherConfig struct {
	Queue        *Queue
	Pool         DevicePool
	Executor     Executor
	Metrics      *Metrics
	Publisher    EventPublisher
	IdleInterval time.Duration
	Log          zerolog.Logger
}

// NewDispatcher constructs a dispatcher, applying package defaults for unset
// tunables.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		queue:   cfg.Queue,
		pool:    cfg.Pool,
		exec:    cfg.Executor,
		metrics: cfg.Metrics,
		pub:     cfg.Publisher,
		idle:    cfg.IdleInterval,
		log:     cfg.Log,
	}
	if d.idle <= 0 {
		d.idle = defaultIdleInterval
	}
	if d.pub == nil {
		d.pub = noopPublisher{}
	}
	return d
}

// Run is the dispatch loop. It returns once ctx is canceled or the queue has
// been closed and drained, after all in-flight executions finish. Exactly one
// Run goroutine may exist per dispatcher.
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.wg.Wait()
	for {
		task, ok := d.queue.TryDequeue()
		if !ok {
			if d.queue.Closed() {
				// A submit racing Close commits its send before Close
				// completes, so one more dequeue after observing Closed
				// settles any such straggler.
				if task, ok = d.queue.TryDequeue(); !ok {
					return
				}
			} else {
				if !d.sleep(ctx) {
					return
				}
				continue
			}
		}
		d.metrics.QueueLength(d.queue.Len())
		if !d.dispatch(ctx, task) {
			return
		}
	}
}

// sleep waits one idle interval; false means ctx ended.
func (d *Dispatcher) sleep(ctx context.Context) bool {
	select {
	case <-time.After(d.idle):
		return true
	case <-ctx.Done():
		return false
	}
}

// dispatch binds task to a device and starts its execution. When no device is
// available the task is held and retried after a backoff, never dropped.
// Returns false when ctx ended before the task could be bound; the task is
// then recorded as failed so it is not silently lost.
func (d *Dispatcher) dispatch(ctx context.Context, task types.Task) bool {
	for {
		lease, ok := d.pool.Acquire()
		if ok {
			start := time.Now()
			d.metrics.DeviceAcquired(lease.Device())
			resCh := d.exec.Execute(ctx, task)
			d.wg.Add(1)
			go d.await(task, lease, start, resCh)
			return true
		}
		d.log.Warn().Str("task_id", task.ID).Msg("no device available, holding task")
		if !d.sleep(ctx) {
			// Never reached a device, so the execution histogram is not
			// observed for this task.
			d.metrics.TaskNotDispatched()
			d.pub.Publish(Event{
				Name:   EventTaskFailed,
				TaskID: task.ID,
				Err:    fmt.Errorf("scheduler stopped before device assignment"),
			})
			return false
		}
	}
}

// await resolves one in-flight execution. The lease release is deferred so
// device load accounting survives every exit path.
func (d *Dispatcher) await(task types.Task, lease DeviceLease, start time.Time, resCh <-chan ExecResult) {
	defer d.wg.Done()
	defer func() {
		lease.Release()
		d.metrics.DeviceReleased(lease.Device())
	}()

	res, ok := <-resCh
	dur := time.Since(start)
	if !ok {
		res = ExecResult{Err: fmt.Errorf("executor closed result channel without a result")}
	}
	if res.Err != nil {
		d.recordFailure(task, lease.Device(), dur.Seconds(), res.Err)
		return
	}

	overdue := task.MaxDuration > 0 && dur > task.MaxDuration
	if overdue {
		d.log.Warn().Str("task_id", task.ID).Dur("duration", dur).
			Dur("max_duration", task.MaxDuration).Msg("task exceeded max duration")
	}
	d.metrics.TaskCompleted(dur.Seconds(), overdue)
	d.pub.Publish(Event{
		Name:   EventTaskCompleted,
		TaskID: task.ID,
		Device: lease.Device(),
		Result: &types.TaskResult{TaskID: task.ID, Output: res.Output, Duration: dur, Overdue: overdue},
	})
}

// recordFailure resolves a dequeued task as failed; per-task failures never
// stop the loop and are never retried here.
func (d *Dispatcher) recordFailure(task types.Task, device string, seconds float64, err error) {
	d.metrics.TaskFailed(seconds)
	d.pub.Publish(Event{Name: EventTaskFailed, TaskID: task.ID, Device: device, Err: err})
}
