// Package llm talks to an OpenAI-compatible chat completion endpoint (Groq by
// default) for medical summarization and translation.
//
// # Entry Points
//
// NewClient: construct the transport from Config.
// Client.Complete: send a system/user prompt pair, receive the assistant text.
// Client.HealthCheck: verify API key and model availability.
// Summarizer.Summarize: conversation excerpt to summary object.
// Translator.Translate: one value into a target language.
//
// # Retry Behaviour
//
// The client retries empty completions, HTTP 408/429/5xx responses (honouring
// Retry-After) and network timeouts with exponential backoff. The SDK's own
// retries are disabled so attempts stay visible here. Context cancellation
// aborts retries immediately.
//
// # Decoding
//
// DecodeLLMJSON accepts raw JSON, fenced code blocks, and prose surrounding a
// single object; anything else surfaces as an invalid summary format.
package llm
