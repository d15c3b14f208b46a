package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	defaultBaseURL          = "https://api.assemblyai.com"
	defaultPollInterval     = 3 * time.Second
	defaultTimeout          = 15 * time.Minute
	defaultRequestTimeout   = 5 * time.Minute
	defaultSpeakersExpected = 2
	maxPollFailures         = 3
)

// HTTPDoer describes the HTTP client used by the AssemblyAI client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config captures AssemblyAI connection and diarization settings.
type Config struct {
	APIKey           string
	BaseURL          string
	SpeakersExpected int
	PollInterval     time.Duration
	Timeout          time.Duration
}

// Client uploads audio, submits a diarized transcription and polls for the result.
type Client struct {
	cfg    Config
	client HTTPDoer
	sleep  func(context.Context, time.Duration) error
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// WithSleeper overrides how poll waits are performed (useful for tests).
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// NewClient constructs an AssemblyAI client.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.SpeakersExpected <= 0 {
		cfg.SpeakersExpected = defaultSpeakersExpected
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: defaultRequestTimeout},
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transcribe uploads the audio file, requests speaker-labelled transcription
// with language detection, and waits for the transcript to finish. A transcript
// that ends in the error state is returned as an error.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (*Transcript, error) {
	if c.cfg.APIKey == "" {
		return nil, errors.New("assemblyai: api key not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	uploadURL, err := c.upload(ctx, audioPath)
	if err != nil {
		return nil, err
	}
	submitted, err := c.submit(ctx, uploadURL)
	if err != nil {
		return nil, err
	}
	return c.wait(ctx, submitted.ID)
}

// HealthCheck lists one transcript to confirm the endpoint is reachable and
// the key is accepted.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return errors.New("assemblyai: api key not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v2/transcript?limit=1", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	var out json.RawMessage
	if err := c.do(req, &out); err != nil {
		return fmt.Errorf("assemblyai health check: %w", err)
	}
	return nil
}

func (c *Client) upload(ctx context.Context, audioPath string) (string, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer file.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v2/upload", file)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	var out uploadResponse
	if err := c.do(req, &out); err != nil {
		return "", fmt.Errorf("upload audio: %w", err)
	}
	if out.UploadURL == "" {
		return "", errors.New("upload audio: response missing upload_url")
	}
	return out.UploadURL, nil
}

func (c *Client) submit(ctx context.Context, audioURL string) (*Transcript, error) {
	body, err := json.Marshal(transcriptRequest{
		AudioURL:          audioURL,
		SpeakerLabels:     true,
		SpeakersExpected:  c.cfg.SpeakersExpected,
		LanguageDetection: true,
		Punctuate:         true,
		FormatText:        true,
		Disfluencies:      false,
	})
	if err != nil {
		return nil, fmt.Errorf("encode transcript request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v2/transcript", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build transcript request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out Transcript
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("submit transcript: %w", err)
	}
	if out.ID == "" {
		return nil, errors.New("submit transcript: response missing id")
	}
	return &out, nil
}

func (c *Client) wait(ctx context.Context, id string) (*Transcript, error) {
	failures := 0
	for {
		transcript, err := c.get(ctx, id)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, fmt.Errorf("poll transcript %s: %w", id, ctx.Err())
			}
			failures++
			if failures >= maxPollFailures {
				return nil, fmt.Errorf("poll transcript %s: %w", id, err)
			}
		case transcript.Status == StatusCompleted:
			return transcript, nil
		case transcript.Status == StatusError:
			msg := strings.TrimSpace(transcript.Error)
			if msg == "" {
				msg = "unknown error"
			}
			return nil, fmt.Errorf("transcript %s failed: %s", id, msg)
		default:
			failures = 0
		}
		if err := c.sleep(ctx, c.cfg.PollInterval); err != nil {
			return nil, fmt.Errorf("poll transcript %s: %w", id, err)
		}
	}
}

func (c *Client) get(ctx context.Context, id string) (*Transcript, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v2/transcript/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("build poll request: %w", err)
	}
	var out Transcript
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", c.cfg.APIKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("assemblyai returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("assemblyai returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
