//go:build !llama

package model

import (
	"github.com/omnitensor/omnitensor-node/pkg/types"
)

// This file provides a no-CGO stub for the llama backend, compiled when the
// 'llama' build tag is NOT set. Default builds and CI stay CGO-free; the
// backend refuses to run rather than mocking inference.

var llamaBuilt = false

type llamaBackend struct {
	ctxSize int
	threads int
}

// NewLlamaBackend returns a stub that satisfies Backend but fails fast on
// Open without the 'llama' build tag.
func NewLlamaBackend(ctxSize, threads int) Backend {
	return &llamaBackend{ctxSize: ctxSize, threads: threads}
}

func (b *llamaBackend) Family() string { return "llama" }

func (b *llamaBackend) Open(mdl types.Model) (Handle, error) {
	return nil, ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}
