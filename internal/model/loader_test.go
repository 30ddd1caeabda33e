package model

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/omnitensor/omnitensor-node/pkg/types"
)

type fakeHandle struct {
	output []byte
	closed int32
}

func (h *fakeHandle) Execute(_ context.Context, input []byte, _ *types.GenerationParams) ([]byte, error) {
	if h.output != nil {
		return h.output, nil
	}
	return input, nil
}

func (h *fakeHandle) Close() error {
	atomic.AddInt32(&h.closed, 1)
	return nil
}

type fakeBackend struct {
	family   string
	openErr  error
	opens    int32
	lastOpen types.Model
}

func (b *fakeBackend) Family() string { return b.family }

func (b *fakeBackend) Open(mdl types.Model) (Handle, error) {
	atomic.AddInt32(&b.opens, 1)
	b.lastOpen = mdl
	if b.openErr != nil {
		return nil, b.openErr
	}
	return &fakeHandle{}, nil
}

func testModels() []types.Model {
	return []types.Model{
		{ID: "llama-7b.gguf", Name: "llama-7b.gguf", Family: "llama", SizeMB: 4096},
		{ID: "mistral-7b.gguf", Name: "mistral-7b.gguf", Family: "mistral", SizeMB: 4096},
	}
}

func TestLoadCachesHandle(t *testing.T) {
	be := &fakeBackend{family: "llama"}
	l := NewLoader(testModels(), zerolog.Nop(), be)

	h1, err := l.Load(context.Background(), "llama-7b.gguf")
	if err != nil {
		t.Fatalf("first Load: %v", err)
	}
	h2, err := l.Load(context.Background(), "llama-7b.gguf")
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if h1 != h2 {
		t.Fatal("second Load returned a different handle")
	}
	if n := atomic.LoadInt32(&be.opens); n != 1 {
		t.Fatalf("backend opened %d times, want 1", n)
	}
}

func TestLoadUnknownModel(t *testing.T) {
	l := NewLoader(testModels(), zerolog.Nop(), &fakeBackend{family: "llama"})
	_, err := l.Load(context.Background(), "absent.gguf")
	if !IsModelNotFound(err) {
		t.Fatalf("Load absent model = %v, want model-not-found error", err)
	}
}

func TestLoadRoutesByFamily(t *testing.T) {
	llama := &fakeBackend{family: "llama"}
	mistral := &fakeBackend{family: "mistral"}
	l := NewLoader(testModels(), zerolog.Nop(), llama, mistral)

	if _, err := l.Load(context.Background(), "mistral-7b.gguf"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n := atomic.LoadInt32(&mistral.opens); n != 1 {
		t.Fatalf("mistral backend opened %d times, want 1", n)
	}
	if n := atomic.LoadInt32(&llama.opens); n != 0 {
		t.Fatalf("llama backend opened %d times, want 0", n)
	}
}

func TestLoadFallsBackToFirstBackend(t *testing.T) {
	first := &fakeBackend{family: "llama"}
	models := []types.Model{{ID: "phi-2.gguf", Family: "phi"}}
	l := NewLoader(models, zerolog.Nop(), first)

	if _, err := l.Load(context.Background(), "phi-2.gguf"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n := atomic.LoadInt32(&first.opens); n != 1 {
		t.Fatalf("fallback backend opened %d times, want 1", n)
	}
}

func TestLoadWithoutBackends(t *testing.T) {
	l := NewLoader(testModels(), zerolog.Nop())
	_, err := l.Load(context.Background(), "llama-7b.gguf")
	if !IsDependencyUnavailable(err) {
		t.Fatalf("Load without backends = %v, want dependency-unavailable error", err)
	}
}

func TestLoadOpenFailure(t *testing.T) {
	be := &fakeBackend{family: "llama", openErr: fmt.Errorf("artifact corrupt")}
	l := NewLoader(testModels(), zerolog.Nop(), be)
	if _, err := l.Load(context.Background(), "llama-7b.gguf"); err == nil {
		t.Fatal("Load with failing backend returned nil error")
	}
	// A failed open must not poison the cache.
	be.openErr = nil
	if _, err := l.Load(context.Background(), "llama-7b.gguf"); err != nil {
		t.Fatalf("Load after backend recovered: %v", err)
	}
}

func TestLoadCanceledContext(t *testing.T) {
	l := NewLoader(testModels(), zerolog.Nop(), &fakeBackend{family: "llama"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Load(ctx, "llama-7b.gguf"); err != context.Canceled {
		t.Fatalf("Load with canceled ctx = %v, want context.Canceled", err)
	}
}

func TestUnloadClosesHandle(t *testing.T) {
	be := &fakeBackend{family: "llama"}
	l := NewLoader(testModels(), zerolog.Nop(), be)

	h, err := l.Load(context.Background(), "llama-7b.gguf")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := l.Unload("llama-7b.gguf"); err != nil {
		t.Fatalf("Unload: %v", err)
	}
	if n := atomic.LoadInt32(&h.(*fakeHandle).closed); n != 1 {
		t.Fatalf("handle closed %d times, want 1", n)
	}
	if err := l.Unload("llama-7b.gguf"); err != nil {
		t.Fatalf("Unload of unloaded model: %v", err)
	}

	// Next Load reopens the artifact.
	if _, err := l.Load(context.Background(), "llama-7b.gguf"); err != nil {
		t.Fatalf("Load after Unload: %v", err)
	}
	if n := atomic.LoadInt32(&be.opens); n != 2 {
		t.Fatalf("backend opened %d times, want 2", n)
	}
}

func TestCloseReleasesAllHandles(t *testing.T) {
	be := &fakeBackend{family: "llama"}
	l := NewLoader(testModels(), zerolog.Nop(), be)

	h1, _ := l.Load(context.Background(), "llama-7b.gguf")
	h2, _ := l.Load(context.Background(), "mistral-7b.gguf")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for i, h := range []Handle{h1, h2} {
		if n := atomic.LoadInt32(&h.(*fakeHandle).closed); n != 1 {
			t.Fatalf("handle %d closed %d times, want 1", i, n)
		}
	}
}
