package llm

import (
	"fmt"
	"strings"
)

const (
	// SummarySystemPrompt pins the model to JSON-only output.
	SummarySystemPrompt = "You output ONLY valid JSON."
	// TranslationSystemPrompt frames the model as a translation engine.
	TranslationSystemPrompt = "You are a medical translation engine."
)

const summaryPromptTemplate = `You are a medical summarization system.

STRICT RULES:
- Output ONLY valid JSON
- No markdown
- No explanations

JSON FORMAT:
{
  "doctor_summary": "",
  "symptoms": [],
  "patient_history": [],
  "risk_factors": [],
  "prescription": [],
  "advice": [],
  "recommended_action": ""
}

Conversation:
%s`

const translationPromptTemplate = `Translate the following medical text into %s.

STRICT RULES:
- Preserve medical terminology
- Do NOT summarize
- Do NOT explain
- Do NOT add extra words
- Output ONLY the translated text

Text:
%s`

// SummaryPrompt renders the user prompt for a conversation excerpt.
func SummaryPrompt(conversation string) string {
	return fmt.Sprintf(summaryPromptTemplate, strings.TrimRight(conversation, "\n"))
}

// TranslationPrompt renders the user prompt for a single text value.
func TranslationPrompt(text, targetLanguage string) string {
	return fmt.Sprintf(translationPromptTemplate, targetLanguage, text)
}
