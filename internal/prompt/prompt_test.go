package prompt_test

import (
	"context"
	"errors"
	"testing"

	"github.com/herodrop/rewards-service/internal/prompt"
	"github.com/herodrop/rewards-service/internal/prompt/prompttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type greetIn struct {
	Name string
}

func (g greetIn) Validate() error {
	if g.Name == "" {
		return errors.New("name required")
	}
	return nil
}

type greetOut struct {
	Message string `json:"message"`
	Mood    string `json:"mood"`
	Count   int    `json:"count"`
}

var greetPrompt = prompt.Must[greetIn, greetOut]("greet", `Say hello to "{{.Name}}".`, prompt.Object(map[string]*genai.Schema{
	"message": prompt.String("greeting"),
	"mood":    prompt.Enum("tone", "happy", "calm"),
	"count":   {Type: genai.TypeInteger},
}, "message", "mood"))

func TestInvoke_RendersAndDecodes(t *testing.T) {
	model := prompttest.New().Returns("greet", "```json\n{\"message\":\"hi Jane\",\"mood\":\"happy\",\"count\":2}\n```")

	out, err := greetPrompt.Invoke(context.Background(), model, greetIn{Name: "Jane"})
	require.NoError(t, err)
	assert.Equal(t, greetOut{Message: "hi Jane", Mood: "happy", Count: 2}, out)

	calls := model.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, `Say hello to "Jane".`, calls[0].Prompt)
	assert.Same(t, greetPrompt.Schema(), calls[0].Schema)
}

func TestInvoke_InvalidInputSkipsModel(t *testing.T) {
	model := prompttest.New()
	_, err := greetPrompt.Invoke(context.Background(), model, greetIn{})
	require.Error(t, err)
	assert.Zero(t, model.CallCount("greet"))
}

func TestInvoke_SchemaViolations(t *testing.T) {
	cases := map[string]string{
		"not json":         "Sorry, I cannot help with that.",
		"missing required": `{"message":"hi"}`,
		"enum violation":   `{"message":"hi","mood":"angry"}`,
		"wrong type":       `{"message":3,"mood":"calm"}`,
		"fractional int":   `{"message":"hi","mood":"calm","count":1.5}`,
		"empty":            "  ",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			model := prompttest.New().Returns("greet", raw)
			_, err := greetPrompt.Invoke(context.Background(), model, greetIn{Name: "Jane"})
			require.Error(t, err)
			assert.ErrorIs(t, err, prompt.ErrSchemaValidation)
			var schemaErr *prompt.SchemaValidationError
			assert.ErrorAs(t, err, &schemaErr)
		})
	}
}

func TestInvoke_TransportErrorIsModelUnavailable(t *testing.T) {
	model := prompttest.New().Fails("greet", errors.New("dial tcp: timeout"))
	_, err := greetPrompt.Invoke(context.Background(), model, greetIn{Name: "Jane"})
	require.Error(t, err)
	assert.ErrorIs(t, err, prompt.ErrModelUnavailable)
	assert.NotErrorIs(t, err, prompt.ErrSchemaValidation)
	assert.Contains(t, err.Error(), "dial tcp")
}

func TestDisabledModel(t *testing.T) {
	_, err := greetPrompt.Invoke(context.Background(), prompt.Disabled{Reason: "GEMINI_API_KEY not set"}, greetIn{Name: "Jane"})
	assert.ErrorIs(t, err, prompt.ErrModelUnavailable)
}

func TestNew_RejectsBadTemplate(t *testing.T) {
	_, err := prompt.New[greetIn, greetOut]("broken", "{{.Name", nil)
	assert.Error(t, err)
}

func TestNewGeminiModel_RequiresKey(t *testing.T) {
	_, err := prompt.NewGeminiModel(context.Background(), "  ", "", 0.2, 0)
	require.Error(t, err)
}
