package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"hydralite/internal/services"
)

type fakeCompleter struct {
	responses []string
	err       error
	requests  []Request
}

func (f *fakeCompleter) Complete(_ context.Context, req Request) (string, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", nil
	}
	out := f.responses[0]
	f.responses = f.responses[1:]
	return out, nil
}

func TestSummarizerDecodesPayload(t *testing.T) {
	fake := &fakeCompleter{responses: []string{"Sure!\n{\"doctor_summary\":\"Fever\",\"symptoms\":[\"cough\"]}"}}
	summarizer := NewSummarizer(fake, 0.2)

	payload, err := summarizer.Summarize(context.Background(), "Doctor: hello\nPatient: cough\n")
	if err != nil {
		t.Fatalf("Summarize returned error: %v", err)
	}
	if payload["doctor_summary"] != "Fever" {
		t.Fatalf("unexpected payload %v", payload)
	}
	req := fake.requests[0]
	if req.System != SummarySystemPrompt || req.Temperature != 0.2 {
		t.Fatalf("unexpected request %+v", req)
	}
	if !strings.Contains(req.User, "Conversation:\nDoctor: hello\nPatient: cough") {
		t.Fatalf("conversation missing from prompt: %q", req.User)
	}
	if !strings.Contains(req.User, `"recommended_action": ""`) {
		t.Fatalf("json format missing from prompt: %q", req.User)
	}
}

func TestSummarizerErrorTaxonomy(t *testing.T) {
	cases := []struct {
		name   string
		fake   *fakeCompleter
		marker error
	}{
		{"provider error", &fakeCompleter{err: errors.New("boom")}, services.ErrSummarizationFailed},
		{"empty", &fakeCompleter{responses: []string{"   "}}, services.ErrSummarizationFailed},
		{"unparseable", &fakeCompleter{responses: []string{"I cannot help"}}, services.ErrInvalidSummaryFormat},
		{"array", &fakeCompleter{responses: []string{`["a"]`}}, services.ErrInvalidSummaryFormat},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSummarizer(tc.fake, 0.2).Summarize(context.Background(), "Doctor: hi\n")
			if !errors.Is(err, tc.marker) {
				t.Fatalf("expected %v, got %v", tc.marker, err)
			}
		})
	}
}

func TestTranslatorSkipsBlankText(t *testing.T) {
	fake := &fakeCompleter{responses: []string{"unused"}}
	translator := NewTranslator(fake, 0.1)

	got, err := translator.Translate(context.Background(), "   ", "hi")
	if err != nil {
		t.Fatalf("Translate returned error: %v", err)
	}
	if got != "   " {
		t.Fatalf("expected blank text unchanged, got %q", got)
	}
	if len(fake.requests) != 0 {
		t.Fatalf("expected no provider call, got %d", len(fake.requests))
	}
}

func TestTranslatorBuildsPrompt(t *testing.T) {
	fake := &fakeCompleter{responses: []string{" बुखार "}}
	translator := NewTranslator(fake, 0.1)

	got, err := translator.Translate(context.Background(), "fever", "hi")
	if err != nil {
		t.Fatalf("Translate returned error: %v", err)
	}
	if got != "बुखार" {
		t.Fatalf("unexpected translation %q", got)
	}
	req := fake.requests[0]
	if req.System != TranslationSystemPrompt || req.Temperature != 0.1 {
		t.Fatalf("unexpected request %+v", req)
	}
	if !strings.Contains(req.User, "into Hindi") || !strings.HasSuffix(req.User, "Text:\nfever") {
		t.Fatalf("unexpected prompt %q", req.User)
	}
}

func TestTranslatorWrapsProviderErrors(t *testing.T) {
	translator := NewTranslator(&fakeCompleter{err: errors.New("down")}, 0.1)
	if _, err := translator.Translate(context.Background(), "fever", "mr"); !errors.Is(err, services.ErrSummarizationFailed) {
		t.Fatalf("expected summarization failure, got %v", err)
	}
}
