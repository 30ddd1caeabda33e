package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/omnitensor/omnitensor-node/internal/device"
	"github.com/omnitensor/omnitensor-node/pkg/types"
)

func newTestScheduler(t *testing.T, models []types.Model, exec Executor) (*Scheduler, *Metrics, *device.Registry) {
	t.Helper()
	reg, err := device.NewRegistry(device.StaticEnumerator{
		{Name: "gpu0", TotalMemory: 8 << 30},
		{Name: "gpu1", TotalMemory: 8 << 30},
	}, 0, 512<<20, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	m := NewMetrics(prometheus.NewRegistry())
	s := New(Config{
		Models:        models,
		Devices:       reg,
		Executor:      exec,
		Metrics:       m,
		QueueCapacity: 16,
		IdleInterval:  5 * time.Millisecond,
		Log:           zerolog.Nop(),
	})
	return s, m, reg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSubmitValidation(t *testing.T) {
	models := []types.Model{{ID: "llama-7b", Name: "llama-7b"}}
	s, _, _ := newTestScheduler(t, models, &fakeExecutor{})

	err := s.Submit(context.Background(), types.Task{ID: "t0"})
	if !IsInvalidTask(err) {
		t.Fatalf("Submit without model = %v, want invalid-task error", err)
	}

	big := make([]byte, defaultMaxInputBytes+1)
	err = s.Submit(context.Background(), types.Task{ID: "t1", ModelID: "llama-7b", Input: big})
	if !IsInvalidTask(err) {
		t.Fatalf("Submit oversized input = %v, want invalid-task error", err)
	}

	err = s.Submit(context.Background(), types.Task{ID: "t2", ModelID: "nope"})
	if !IsUnknownModel(err) {
		t.Fatalf("Submit unknown model = %v, want unknown-model error", err)
	}

	if err := s.Submit(context.Background(), types.Task{ID: "t3", ModelID: "llama-7b"}); err != nil {
		t.Fatalf("Submit valid task: %v", err)
	}
}

func TestSubmitSkipsModelCheckWithEmptyRegistry(t *testing.T) {
	s, _, _ := newTestScheduler(t, nil, &fakeExecutor{})
	if err := s.Submit(context.Background(), types.Task{ID: "t0", ModelID: "anything"}); err != nil {
		t.Fatalf("Submit with empty model registry: %v", err)
	}
}

func TestQueueLengthAndQueuedCounter(t *testing.T) {
	s, m, _ := newTestScheduler(t, nil, &fakeExecutor{})
	for i := 0; i < 5; i++ {
		task := types.Task{ID: fmt.Sprintf("t%d", i), ModelID: "m"}
		if err := s.Submit(context.Background(), task); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	if got := s.QueueLength(); got != 5 {
		t.Fatalf("QueueLength = %d, want 5", got)
	}
	// queued is monotonic: it counts admissions, not current occupancy.
	if got := testutil.ToFloat64(m.queued); got != 5 {
		t.Fatalf("queued counter = %v, want 5", got)
	}
}

func TestSubmitTaskAssignsID(t *testing.T) {
	s, _, _ := newTestScheduler(t, nil, &fakeExecutor{})
	id, err := s.SubmitTask(context.Background(), types.SubmitTaskRequest{Model: "m", Input: []byte("hi")})
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}
	if id == "" {
		t.Fatal("SubmitTask returned empty task id")
	}
}

func TestSchedulerRunDrainAndRelease(t *testing.T) {
	exec := &fakeExecutor{delay: 5 * time.Millisecond}
	s, m, reg := newTestScheduler(t, nil, exec)

	for i := 0; i < 6; i++ {
		task := types.Task{ID: fmt.Sprintf("t%d", i), ModelID: fmt.Sprintf("m%d", i)}
		if err := s.Submit(context.Background(), task); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}

	s.Start(context.Background())
	if !s.Ready() {
		t.Fatal("Ready = false after Start")
	}
	waitFor(t, "all tasks to complete", func() bool {
		return testutil.ToFloat64(m.completed) == 6
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	for _, d := range reg.Status() {
		if d.Load != 0 {
			t.Fatalf("device %s load = %d after drain, want 0", d.Name, d.Load)
		}
		if d.UsedBytes != 0 {
			t.Fatalf("device %s used = %d after drain, want 0", d.Name, d.UsedBytes)
		}
	}
}

func TestSubmitAfterShutdown(t *testing.T) {
	s, _, _ := newTestScheduler(t, nil, &fakeExecutor{})
	s.Start(context.Background())
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	err := s.Submit(context.Background(), types.Task{ID: "late", ModelID: "m"})
	if !IsQueueClosed(err) {
		t.Fatalf("Submit after Shutdown = %v, want queue-closed error", err)
	}
}

func TestShutdownResolvesRacingSubmits(t *testing.T) {
	exec := &fakeExecutor{}
	s, m, _ := newTestScheduler(t, nil, exec)
	s.Start(context.Background())

	var accepted int64
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; ; i++ {
				task := types.Task{ID: fmt.Sprintf("g%d-t%d", g, i), ModelID: "m"}
				err := s.Submit(context.Background(), task)
				if err != nil {
					if !IsQueueClosed(err) {
						t.Errorf("Submit: %v", err)
					}
					return
				}
				atomic.AddInt64(&accepted, 1)
			}
		}(g)
	}

	time.Sleep(20 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	wg.Wait()

	// Shutdown waits for the dispatcher to drain and resolve everything it
	// accepted; no accepted task may vanish.
	got := testutil.ToFloat64(m.completed) + testutil.ToFloat64(m.failed)
	if want := float64(atomic.LoadInt64(&accepted)); got != want {
		t.Fatalf("resolved %v tasks, accepted %v", got, want)
	}
}

func TestShutdownIdempotent(t *testing.T) {
	s, _, _ := newTestScheduler(t, nil, &fakeExecutor{})
	s.Start(context.Background())
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

// stuckExecutor holds every execution until released.
type stuckExecutor struct {
	release chan struct{}
}

func (e *stuckExecutor) Execute(context.Context, types.Task) <-chan ExecResult {
	ch := make(chan ExecResult, 1)
	go func() {
		<-e.release
		ch <- ExecResult{Output: []byte("done")}
	}()
	return ch
}

func TestShutdownTimeoutWithInflightTask(t *testing.T) {
	exec := &stuckExecutor{release: make(chan struct{})}
	s, m, _ := newTestScheduler(t, nil, exec)
	if err := s.Submit(context.Background(), types.Task{ID: "t0", ModelID: "m"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	s.Start(context.Background())
	waitFor(t, "task to start executing", func() bool {
		return s.QueueLength() == 0
	})

	// The in-flight execution outlives the shutdown deadline.
	go func() {
		time.Sleep(100 * time.Millisecond)
		close(exec.release)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := s.Shutdown(ctx)
	if err != context.DeadlineExceeded {
		t.Fatalf("Shutdown = %v, want context.DeadlineExceeded", err)
	}
	if got := testutil.ToFloat64(m.completed); got != 1 {
		t.Fatalf("completed = %v, want 1 (shutdown still waits for in-flight work)", got)
	}
}

func TestStatusReport(t *testing.T) {
	s, _, _ := newTestScheduler(t, []types.Model{{ID: "m1"}}, &fakeExecutor{})

	st := s.Status()
	if st.State != "stopped" {
		t.Fatalf("State = %q before Start, want stopped", st.State)
	}
	if st.QueueCapacity != 16 {
		t.Fatalf("QueueCapacity = %d, want 16", st.QueueCapacity)
	}
	if len(st.Devices) != 2 {
		t.Fatalf("Devices = %d, want 2", len(st.Devices))
	}

	s.Start(context.Background())
	defer s.Shutdown(context.Background())
	if st := s.Status(); st.State != "running" {
		t.Fatalf("State = %q after Start, want running", st.State)
	}

	models := s.ListModels()
	if len(models) != 1 || models[0].ID != "m1" {
		t.Fatalf("ListModels = %+v, want [m1]", models)
	}
}
