//go:build !llama

package model

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/omnitensor/omnitensor-node/pkg/types"
)

func TestLlamaStubRefusesOpen(t *testing.T) {
	be := NewLlamaBackend(0, 0)
	if got := be.Family(); got != "llama" {
		t.Fatalf("Family = %q, want llama", got)
	}
	_, err := be.Open(types.Model{ID: "llama-7b.gguf", Path: "/nowhere/llama-7b.gguf"})
	if !IsDependencyUnavailable(err) {
		t.Fatalf("Open = %v, want dependency-unavailable error", err)
	}
}

func TestLlamaStubThroughLoader(t *testing.T) {
	models := []types.Model{{ID: "llama-7b.gguf", Family: "llama"}}
	l := NewLoader(models, zerolog.Nop(), NewLlamaBackend(0, 0))
	_, err := l.Load(context.Background(), "llama-7b.gguf")
	if !IsDependencyUnavailable(err) {
		t.Fatalf("Load through stub = %v, want dependency-unavailable error", err)
	}
}
