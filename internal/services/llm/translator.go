package llm

import (
	"context"
	"strings"

	"hydralite/internal/language"
	"hydralite/internal/services"
)

// Translator translates individual summary values.
type Translator struct {
	client      Completer
	temperature float64
}

// NewTranslator constructs a translator on top of the supplied completer.
func NewTranslator(client Completer, temperature float64) *Translator {
	return &Translator{client: client, temperature: temperature}
}

// Translate returns text in the target language. Blank input is returned
// unchanged without a provider call.
func (t *Translator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}
	content, err := t.client.Complete(ctx, Request{
		System:      TranslationSystemPrompt,
		User:        TranslationPrompt(text, language.PromptName(targetLang)),
		Temperature: t.temperature,
	})
	if err != nil {
		return "", services.Wrap(services.ErrSummarizationFailed, "summarizing", "translate", targetLang, err)
	}
	return strings.TrimSpace(content), nil
}
