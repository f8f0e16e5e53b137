package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	defaultGeminiModel   = "gemini-2.0-flash"
	defaultGeminiTimeout = 30 * time.Second
)

// GeminiModel answers prompts with Google's Gemini API in JSON mode.
type GeminiModel struct {
	client      *genai.Client
	model       string
	temperature float32
	timeout     time.Duration
}

// NewGeminiModel creates a Gemini-backed Model. Each call is bounded by
// timeout; zero selects 30s.
func NewGeminiModel(ctx context.Context, apiKey, model string, temperature float32, timeout time.Duration) (*GeminiModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = defaultGeminiModel
	}
	if timeout <= 0 {
		timeout = defaultGeminiTimeout
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiModel{client: client, model: model, temperature: temperature, timeout: timeout}, nil
}

// GenerateJSON sends the prompt with the response schema attached.
func (g *GeminiModel) GenerateJSON(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	temperature := g.temperature
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   req.Schema,
		Temperature:      &temperature,
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", &ModelUnavailableError{Prompt: req.Name, Err: err}
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", &SchemaValidationError{Prompt: req.Name, Reason: "model returned no content"}
	}
	return text, nil
}

// Name identifies the backend in logs.
func (g *GeminiModel) Name() string {
	return fmt.Sprintf("genai:%s", g.model)
}

// Disabled is used when no model credentials are configured. Every call fails
// with ModelUnavailableError.
type Disabled struct {
	Reason string
}

func (d Disabled) GenerateJSON(_ context.Context, req Request) (string, error) {
	return "", &ModelUnavailableError{Prompt: req.Name, Err: errors.New(d.Reason)}
}

// WithLogging logs the outcome and latency of every model call.
func WithLogging(m Model, logger *zap.Logger) Model {
	return &loggedModel{next: m, logger: logger.With(zap.String("component", "prompt"))}
}

type loggedModel struct {
	next   Model
	logger *zap.Logger
}

func (l *loggedModel) GenerateJSON(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	out, err := l.next.GenerateJSON(ctx, req)
	fields := []zap.Field{
		zap.String("prompt", req.Name),
		zap.Duration("latency", time.Since(start)),
	}
	switch {
	case err == nil:
		l.logger.Debug("model call", append(fields, zap.String("outcome", "ok"))...)
	case errors.Is(err, ErrSchemaValidation):
		l.logger.Warn("model call", append(fields, zap.String("outcome", "invalid_response"), zap.Error(err))...)
	default:
		l.logger.Warn("model call", append(fields, zap.String("outcome", "unavailable"), zap.Error(err))...)
	}
	return out, err
}
