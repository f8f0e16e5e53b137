package advisor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/herodrop/rewards-service/internal/prompt/prompttest"
)

func TestSuggest_RendersFacilityAndService(t *testing.T) {
	model := prompttest.New().Returns("suggestRedemptionTime", `{"suggestedTime":"Weekdays, 2-4 PM","reasoning":"Mornings are busy."}`)

	s, err := New(model).Suggest(context.Background(), "Kenyatta National Hospital", "Free Lab Test")
	if err != nil {
		t.Fatalf("Suggest returned error: %v", err)
	}
	if s.SuggestedTime != "Weekdays, 2-4 PM" {
		t.Fatalf("unexpected suggestion %+v", s)
	}
	rendered := model.Calls()[0].Prompt
	if !strings.Contains(rendered, `User wants to redeem: "Free Lab Test"`) || !strings.Contains(rendered, `At this facility: "Kenyatta National Hospital"`) {
		t.Fatalf("inputs missing from prompt:\n%s", rendered)
	}
}

func TestSuggestOrFallback(t *testing.T) {
	cases := map[string]*prompttest.ScriptedModel{
		"unavailable":  prompttest.New().Fails("suggestRedemptionTime", errors.New("timeout")),
		"invalid json": prompttest.New().Returns("suggestRedemptionTime", `not json`),
		"empty time":   prompttest.New().Returns("suggestRedemptionTime", `{"suggestedTime":" ","reasoning":"?"}`),
	}
	for name, model := range cases {
		t.Run(name, func(t *testing.T) {
			s, err := New(model).SuggestOrFallback(context.Background(), "Coptic Hospital", "General Checkup")
			if err == nil {
				t.Fatalf("expected the failure cause")
			}
			if s != Fallback {
				t.Fatalf("expected fallback suggestion, got %+v", s)
			}
		})
	}
}
