// Package llm adapts a generative model into a structured-output
// client: prompts go out sanitized, responses come back as validated
// JSON, and transport failures are retried behind a circuit breaker.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"google.golang.org/api/option"

	"github.com/finpulse/finpulse/internal/errs"
)

// Client produces schema-validated structured output from a prompt.
type Client interface {
	GenerateStructured(ctx context.Context, prompt string, out any) error
}

// Default transport tuning.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultModel      = "gemini-1.5-flash"
)

// GeminiConfig configures the Gemini-backed client.
type GeminiConfig struct {
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// Gemini generates structured output through the Gemini API.
type Gemini struct {
	model      *genai.GenerativeModel
	client     *genai.Client
	breaker    *gobreaker.CircuitBreaker
	log        zerolog.Logger
	timeout    time.Duration
	maxRetries int
}

// NewGemini dials the Gemini API and wraps it with a circuit breaker.
func NewGemini(ctx context.Context, cfg GeminiConfig, log zerolog.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errs.Validation("gemini api key is required", nil)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.ResponseMIMEType = "application/json"

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "gemini",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit state changed")
		},
	})

	return &Gemini{
		model:      model,
		client:     client,
		breaker:    breaker,
		log:        log,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
	}, nil
}

// Close releases the underlying API connection.
func (g *Gemini) Close() error {
	return g.client.Close()
}

// GenerateStructured sends the prompt and decodes the JSON response
// into out. Transport errors are retried with exponential backoff;
// malformed output fails fast as an LLM validation error.
func (g *Gemini) GenerateStructured(ctx context.Context, prompt string, out any) error {
	if err := validatePrompt(prompt); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Second << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		text, err := g.generate(ctx, prompt)
		if err != nil {
			lastErr = err
			g.log.Warn().Err(err).Int("attempt", attempt+1).Msg("generation attempt failed")
			continue
		}

		if err := DecodeJSON(text, out); err != nil {
			// a schema miss is not a transport problem; do not retry
			return err
		}
		return nil
	}
	return errs.External("gemini", lastErr)
}

func (g *Gemini) generate(ctx context.Context, prompt string) (string, error) {
	result, err := g.breaker.Execute(func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return g.model.GenerateContent(callCtx, genai.Text(prompt))
	})
	if err != nil {
		return "", err
	}
	resp := result.(*genai.GenerateContentResponse)
	return extractText(resp)
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty model response")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("model response carries no text parts")
	}
	return sb.String(), nil
}

// DecodeJSON strips a markdown code fence if present and unmarshals
// the payload, mapping failures to the LLM validation kind.
func DecodeJSON(text string, out any) error {
	clean := StripCodeFence(text)
	if err := json.Unmarshal([]byte(clean), out); err != nil {
		return errs.LLMValidation("model output is not valid JSON: %v", err)
	}
	return nil
}

// StripCodeFence unwraps ```json ... ``` fencing that models add
// despite JSON response mode.
func StripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
