// Package mock provides a scripted language model for tests and offline runs.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/harunnryd/cipher/pkg/llm"
)

// ErrScriptExhausted is returned once every scripted response was consumed
// and no fallback text is configured.
var ErrScriptExhausted = errors.New("mock llm: script exhausted")

type LLMConfig struct {
	// Responses are returned in order, one per Generate call.
	Responses []llm.Response
	// ResponseText is returned after the script runs out.
	ResponseText string
	// Errors, when set at an index, fail the matching call instead.
	Errors map[int]error
}

// LLMAdapter replays scripted responses and records every request.
type LLMAdapter struct {
	cfg LLMConfig

	mu     sync.Mutex
	calls  int
	inputs []llm.Context
}

func NewLLMAdapter(cfg LLMConfig) *LLMAdapter {
	return &LLMAdapter{cfg: cfg}
}

func (a *LLMAdapter) Name() string { return "mock_llm" }

func (a *LLMAdapter) Generate(ctx context.Context, input llm.Context) (llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return llm.Response{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	idx := a.calls
	a.calls++
	a.inputs = append(a.inputs, cloneContext(input))
	if err, ok := a.cfg.Errors[idx]; ok && err != nil {
		return llm.Response{}, err
	}
	if idx < len(a.cfg.Responses) {
		return a.cfg.Responses[idx], nil
	}
	if a.cfg.ResponseText != "" {
		return llm.Response{Text: a.cfg.ResponseText, FinishReason: "stop"}, nil
	}
	return llm.Response{}, ErrScriptExhausted
}

// Inputs returns the contexts passed to Generate so far.
func (a *LLMAdapter) Inputs() []llm.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]llm.Context, len(a.inputs))
	copy(out, a.inputs)
	return out
}

// Calls returns how many times Generate ran.
func (a *LLMAdapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func cloneContext(in llm.Context) llm.Context {
	out := in
	out.Messages = append([]llm.Message(nil), in.Messages...)
	out.Tools = append([]llm.Tool(nil), in.Tools...)
	return out
}
