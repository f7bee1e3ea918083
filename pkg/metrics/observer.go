package metrics

import "time"

// Event names emitted by the shop, agent and LLM layers.
const (
	EventAction        = "action"
	EventToolCall      = "tool_call"
	EventLLMGenerate   = "llm_generate"
	EventRateLimit     = "llm_rate_limit"
	EventBreakerOpen   = "breaker_open"
	EventBreakerClose  = "breaker_close"
	EventBreakerDenied = "breaker_denied"
	EventSessionOpen   = "session_open"
	EventSessionClose  = "session_close"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type Flusher interface {
	Flush() error
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// Record emits an event stamped with the current time. A nil observer is ignored.
func Record(obs Observer, name string, tags map[string]string, fields map[string]any) {
	if obs == nil {
		return
	}
	obs.RecordEvent(MetricsEvent{Name: name, Time: time.Now(), Tags: tags, Fields: fields})
}
