// Package agent runs the model/tool loop for one conversation: the model
// either answers in text or asks for tools, whose results are fed back until
// it answers.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/cipher/pkg/errorsx"
	"github.com/harunnryd/cipher/pkg/llm"
	"github.com/harunnryd/cipher/pkg/logging"
	"github.com/harunnryd/cipher/pkg/metrics"
	"github.com/harunnryd/cipher/pkg/resilience"
)

var ErrMaxSteps = errors.New("agent: model kept calling tools without answering")

type Options struct {
	// MaxSteps bounds model calls per user turn.
	MaxSteps int
	// MaxHistory bounds non-system messages kept between turns. Zero keeps all.
	MaxHistory  int
	ToolTimeout time.Duration
	Observer    metrics.Observer
	Logger      *slog.Logger
}

// Agent holds the model and the system prompt shared by its conversations.
type Agent struct {
	model  llm.LLMAdapter
	system string
	opts   Options
	logger *slog.Logger
}

func New(model llm.LLMAdapter, system string, opts Options) *Agent {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = 6
	}
	if opts.ToolTimeout <= 0 {
		opts.ToolTimeout = 5 * time.Second
	}
	if opts.Observer == nil {
		opts.Observer = metrics.NoopObserver{}
	}
	return &Agent{
		model:  model,
		system: system,
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "agent"),
	}
}

// Conversation is the history of one session with its tool registry.
type Conversation struct {
	agent    *Agent
	registry llm.ToolRegistry
	traceID  string

	mu       sync.Mutex
	messages []llm.Message
}

// NewConversation starts an empty history. traceID tags logs and metrics.
func (a *Agent) NewConversation(registry llm.ToolRegistry, traceID string) *Conversation {
	return &Conversation{agent: a, registry: registry, traceID: traceID}
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.Message(nil), c.messages...)
}

// Send runs one user turn and returns the model's final text. Turns on the
// same conversation are serialized.
func (c *Conversation) Send(ctx context.Context, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	a := c.agent
	c.messages = append(c.messages, llm.Message{Role: llm.RoleUser, Content: text})
	var tools []llm.Tool
	if c.registry != nil {
		tools = c.registry.Tools()
	}

	for step := 0; step < a.opts.MaxSteps; step++ {
		c.messages = pruneByHistory(c.messages, a.opts.MaxHistory)
		started := time.Now()
		resp, err := a.model.Generate(ctx, llm.Context{
			System:   a.system,
			Messages: append([]llm.Message(nil), c.messages...),
			Tools:    tools,
		})
		if err != nil {
			reason := errorsx.ReasonLLMGenerate
			if resilience.IsRateLimit(err) {
				reason = errorsx.ReasonLLMRateLimit
			}
			err = errorsx.Wrap(err, reason)
			a.logger.Error("llm_generate_error", "trace_id", c.traceID, "provider", a.model.Name(), "step", step, "reason_code", errorsx.LogValue(err), "error", err)
			return "", err
		}
		metrics.Record(a.opts.Observer, metrics.EventLLMGenerate, map[string]string{
			"provider": a.model.Name(),
			"trace_id": c.traceID,
		}, map[string]any{
			"latency_ms":        time.Since(started).Milliseconds(),
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
			"tool_calls":        len(resp.ToolCalls),
		})

		if len(resp.ToolCalls) == 0 {
			c.messages = append(c.messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Text})
			return resp.Text, nil
		}

		c.messages = append(c.messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Text, ToolCalls: resp.ToolCalls})
		for _, call := range resp.ToolCalls {
			result := c.callTool(ctx, call)
			c.messages = append(c.messages, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: call.ID,
				Name:       call.Name,
				Content:    result,
			})
		}
	}
	a.logger.Warn("agent_max_steps", "trace_id", c.traceID, "max_steps", a.opts.MaxSteps)
	return "", ErrMaxSteps
}

// callTool runs one tool synchronously under the tool timeout. Errors become
// the tool result text so the model can recover.
func (c *Conversation) callTool(ctx context.Context, call llm.ToolCall) string {
	a := c.agent
	if c.registry == nil {
		return "error: no tools available"
	}
	toolCtx, cancel := context.WithTimeout(ctx, a.opts.ToolTimeout)
	defer cancel()

	started := time.Now()
	result, err := c.registry.HandleTool(toolCtx, call.Name, call.Arguments)
	if err == nil && toolCtx.Err() != nil {
		err = toolCtx.Err()
	}
	status := "ok"
	if err != nil {
		status = "error"
		reason := errorsx.ReasonToolFailed
		if errors.Is(err, context.DeadlineExceeded) {
			status = "timeout"
			reason = errorsx.ReasonToolTimeout
		}
		err = errorsx.Wrap(err, reason)
		args, _ := json.Marshal(call.Arguments)
		a.logger.Warn("tool_call_failed", "trace_id", c.traceID, "tool_name", call.Name, "tool_args", string(args), "reason_code", errorsx.LogValue(err), "error", err)
		if result == "" {
			result = fmt.Sprintf("error: %v", err)
		}
	}
	metrics.Record(a.opts.Observer, metrics.EventToolCall, map[string]string{
		"tool":     call.Name,
		"status":   status,
		"trace_id": c.traceID,
	}, map[string]any{"duration_ms": time.Since(started).Milliseconds()})
	return result
}

// pruneByHistory keeps system messages and the newest maxHistory others.
// A tool result whose call was pruned away is dropped as well.
func pruneByHistory(messages []llm.Message, maxHistory int) []llm.Message {
	if maxHistory <= 0 {
		return messages
	}
	nonSystem := nonSystemIndices(messages)
	if len(nonSystem) <= maxHistory {
		return messages
	}
	toDrop := len(nonSystem) - maxHistory
	drop := make(map[int]struct{}, toDrop)
	for i := 0; i < toDrop; i++ {
		drop[nonSystem[i]] = struct{}{}
	}
	filtered := make([]llm.Message, 0, len(messages)-toDrop)
	leading := true
	for idx, msg := range messages {
		if _, ok := drop[idx]; ok {
			continue
		}
		if leading && msg.Role == llm.RoleTool {
			continue
		}
		if msg.Role != llm.RoleSystem {
			leading = false
		}
		filtered = append(filtered, msg)
	}
	return filtered
}

func nonSystemIndices(messages []llm.Message) []int {
	out := make([]int, 0, len(messages))
	for i, msg := range messages {
		if msg.Role != llm.RoleSystem {
			out = append(out, i)
		}
	}
	return out
}
