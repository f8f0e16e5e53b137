/**
 * @description
 * Structured prompt invocation. A Prompt renders a text template with typed
 * input, sends it to a Model that returns JSON, checks the JSON against the
 * declared output schema and decodes it into the typed output.
 *
 * @notes
 * - Each Invoke is at most one model call. There are no retries.
 * - Input types that implement Validate() are checked before rendering, so a
 *   malformed input never reaches the model.
 *
 * @dependencies
 * - google.golang.org/genai: schema types shared with the Gemini backend.
 */

package prompt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"google.golang.org/genai"
)

// Request is a rendered prompt ready for a model.
type Request struct {
	Name   string
	Prompt string
	Schema *genai.Schema
}

// Model produces a JSON document for a rendered prompt.
type Model interface {
	GenerateJSON(ctx context.Context, req Request) (string, error)
}

type validator interface {
	Validate() error
}

// Prompt is a named template with declared input and output types.
type Prompt[In, Out any] struct {
	name   string
	tmpl   *template.Template
	schema *genai.Schema
}

// New parses text as a template. Missing keys are an error at render time.
func New[In, Out any](name, text string, schema *genai.Schema) (*Prompt[In, Out], error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt %s: %w", name, err)
	}
	return &Prompt[In, Out]{name: name, tmpl: tmpl, schema: schema}, nil
}

// Must is like New but panics on a template error. Use it for package-level prompts.
func Must[In, Out any](name, text string, schema *genai.Schema) *Prompt[In, Out] {
	p, err := New[In, Out](name, text, schema)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Prompt[In, Out]) Name() string { return p.name }

func (p *Prompt[In, Out]) Schema() *genai.Schema { return p.schema }

// Render substitutes in into the template as literal text.
func (p *Prompt[In, Out]) Render(in In) (string, error) {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, in); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", p.name, err)
	}
	return buf.String(), nil
}

// Invoke validates in, renders the template, calls m once and decodes the answer.
func (p *Prompt[In, Out]) Invoke(ctx context.Context, m Model, in In) (Out, error) {
	var zero Out

	if v, ok := any(in).(validator); ok {
		if err := v.Validate(); err != nil {
			return zero, err
		}
	}

	text, err := p.Render(in)
	if err != nil {
		return zero, err
	}

	raw, err := m.GenerateJSON(ctx, Request{Name: p.name, Prompt: text, Schema: p.schema})
	if err != nil {
		var schemaErr *SchemaValidationError
		if errors.As(err, &schemaErr) {
			return zero, err
		}
		var unavailable *ModelUnavailableError
		if errors.As(err, &unavailable) {
			return zero, err
		}
		return zero, &ModelUnavailableError{Prompt: p.name, Err: err}
	}

	return p.Decode(raw)
}

// Decode checks raw against the output schema and unmarshals it.
func (p *Prompt[In, Out]) Decode(raw string) (Out, error) {
	var zero Out
	body := stripFences(raw)
	if body == "" {
		return zero, &SchemaValidationError{Prompt: p.name, Reason: "empty response"}
	}

	var generic any
	if err := json.Unmarshal([]byte(body), &generic); err != nil {
		return zero, &SchemaValidationError{Prompt: p.name, Reason: "not valid JSON: " + err.Error()}
	}
	if path, reason, ok := validateValue(p.schema, generic, "$"); !ok {
		return zero, &SchemaValidationError{Prompt: p.name, Path: path, Reason: reason}
	}

	var out Out
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return zero, &SchemaValidationError{Prompt: p.name, Reason: err.Error()}
	}
	return out, nil
}

// stripFences removes a surrounding ```json fence that some models add.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
