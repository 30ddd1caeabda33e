//go:build llama

package model

import (
	"context"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"

	"github.com/omnitensor/omnitensor-node/pkg/types"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

// llamaBackend opens gguf artifacts in-process via go-llama.cpp.
type llamaBackend struct {
	ctxSize int
	threads int
}

// NewLlamaBackend configures the in-process llama backend. ctxSize and
// threads of 0 use the library defaults.
func NewLlamaBackend(ctxSize, threads int) Backend {
	return &llamaBackend{ctxSize: ctxSize, threads: threads}
}

func (b *llamaBackend) Family() string { return "llama" }

func (b *llamaBackend) Open(mdl types.Model) (Handle, error) {
	if strings.TrimSpace(mdl.Path) == "" {
		return nil, ErrModelNotFound(mdl.ID)
	}
	var opts []llama.ModelOption
	if b.ctxSize > 0 {
		opts = append(opts, llama.SetContext(b.ctxSize))
	}
	m, err := llama.New(mdl.Path, opts...)
	if err != nil {
		return nil, err
	}
	return &llamaHandle{model: m, threads: b.threads}, nil
}

// llamaHandle owns one loaded llama model.
type llamaHandle struct {
	model   *llama.LLama
	threads int
}

// Execute treats input as a UTF-8 prompt and returns the generated text.
// The token callback checks ctx so client disconnects stop generation early.
func (h *llamaHandle) Execute(ctx context.Context, input []byte, params *types.GenerationParams) ([]byte, error) {
	h.model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	})
	var opts []llama.PredictOption
	if h.threads > 0 {
		opts = append(opts, llama.SetThreads(h.threads))
	}
	if params != nil {
		if params.Temperature > 0 {
			opts = append(opts, llama.SetTemperature(float32(params.Temperature)))
		}
		if params.TopP > 0 {
			opts = append(opts, llama.SetTopP(float32(params.TopP)))
		}
		if params.MaxTokens > 0 {
			opts = append(opts, llama.SetTokens(params.MaxTokens))
		}
	}
	text, err := h.model.Predict(string(input), opts...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return []byte(text), nil
}

func (h *llamaHandle) Close() error {
	if h.model != nil {
		h.model.Free()
		h.model = nil
	}
	return nil
}
