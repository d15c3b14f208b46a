package llm

import (
	"context"
	"strings"

	"hydralite/internal/services"
)

// Completer is the chat completion surface the summarizer and translator need.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Summarizer turns a role-attributed conversation into the structured summary payload.
type Summarizer struct {
	client      Completer
	temperature float64
}

// NewSummarizer constructs a summarizer on top of the supplied completer.
func NewSummarizer(client Completer, temperature float64) *Summarizer {
	return &Summarizer{client: client, temperature: temperature}
}

// Summarize requests the summary and decodes it into a generic object so
// unexpected keys survive untouched.
func (s *Summarizer) Summarize(ctx context.Context, conversation string) (map[string]any, error) {
	if strings.TrimSpace(conversation) == "" {
		return nil, services.Wrap(services.ErrSummarizationFailed, "summarizing", "prompt", "conversation is empty", nil)
	}
	content, err := s.client.Complete(ctx, Request{
		System:      SummarySystemPrompt,
		User:        SummaryPrompt(conversation),
		Temperature: s.temperature,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrSummarizationFailed, "summarizing", "complete", "", err)
	}
	if strings.TrimSpace(content) == "" {
		return nil, services.Wrap(services.ErrSummarizationFailed, "summarizing", "complete", "empty response", nil)
	}
	var payload map[string]any
	if err := DecodeLLMJSON(content, &payload); err != nil {
		return nil, services.Wrap(services.ErrInvalidSummaryFormat, "summarizing", "decode", "", err)
	}
	if payload == nil {
		return nil, services.Wrap(services.ErrInvalidSummaryFormat, "summarizing", "decode", "payload is not an object", nil)
	}
	return payload, nil
}
