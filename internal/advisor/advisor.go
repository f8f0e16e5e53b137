// Package advisor suggests when a donor should visit a facility to redeem a service.
// Suggestions are advisory; callers fall back to Fallback when the model fails.
package advisor

import (
	"context"
	"strings"

	"github.com/herodrop/rewards-service/internal/domain"
	"github.com/herodrop/rewards-service/internal/prompt"
	"google.golang.org/genai"
)

// Suggestion is a recommended visit window with its rationale.
type Suggestion struct {
	SuggestedTime string `json:"suggestedTime"`
	Reasoning     string `json:"reasoning"`
}

// Fallback is used whenever no suggestion can be produced.
var Fallback = Suggestion{
	SuggestedTime: "Anytime during opening hours",
	Reasoning:     "Please check with the location for their specific operating hours.",
}

type Input struct {
	FacilityName string
	ServiceName  string
}

func (in Input) Validate() error {
	if strings.TrimSpace(in.FacilityName) == "" {
		return &domain.FieldError{Field: "facilityName", Message: "is required"}
	}
	if strings.TrimSpace(in.ServiceName) == "" {
		return &domain.FieldError{Field: "serviceName", Message: "is required"}
	}
	return nil
}

var suggestTimePrompt = prompt.Must[Input, Suggestion]("suggestRedemptionTime", `You are an intelligent assistant for the HeroDrop+ platform. Your task is to suggest the best time for a user to visit a specific hospital to redeem a service, aiming to minimize their wait time.

Consider the type of hospital (large public hospitals are generally busier than smaller private ones) and the nature of the service. For example, lab tests are often busiest in the mornings.

User wants to redeem: "{{.ServiceName}}"
At this facility: "{{.FacilityName}}"

Here is some context on hospitals in Kenya. Use this to inform your suggestion:
- Large public referral hospitals like Kenyatta National Hospital, Moi Teaching & Referral, and Coast General are very busy, especially in the mornings (8 AM - 1 PM). Afternoons are often better.
- Private hospitals like Aga Khan, Nairobi Hospital, and Karen Hospital are generally well-organized, but specialty clinics can have specific busy hours.
- Lab services are almost always busiest in the early morning due to fasting requirements. Suggesting an afternoon visit is usually a safe bet.
- General checkups and counseling sessions are more flexible. Suggesting mid-morning (e.g., 10-11 AM) or mid-afternoon (2-4 PM) on a weekday is a good strategy to avoid peak times.

Based on this, provide a concise 'suggestedTime' (e.g., "Weekdays, 2-4 PM") and a brief 'reasoning' for your suggestion.`,
	prompt.Object(map[string]*genai.Schema{
		"suggestedTime": prompt.String("The suggested time window for the visit."),
		"reasoning":     prompt.String("A brief explanation for the suggestion."),
	}, "suggestedTime", "reasoning"),
)

// Advisor wraps the time-suggestion prompt.
type Advisor struct {
	model prompt.Model
}

func New(model prompt.Model) *Advisor {
	return &Advisor{model: model}
}

// Suggest asks the model for a visit window. Errors are returned as-is.
func (a *Advisor) Suggest(ctx context.Context, facilityName, serviceName string) (Suggestion, error) {
	s, err := suggestTimePrompt.Invoke(ctx, a.model, Input{FacilityName: facilityName, ServiceName: serviceName})
	if err != nil {
		return Suggestion{}, err
	}
	if strings.TrimSpace(s.SuggestedTime) == "" {
		return Suggestion{}, &prompt.SchemaValidationError{Prompt: suggestTimePrompt.Name(), Path: "$.suggestedTime", Reason: "empty suggestion"}
	}
	return s, nil
}

// SuggestOrFallback always returns a usable suggestion. When the model fails
// it returns Fallback together with the cause.
func (a *Advisor) SuggestOrFallback(ctx context.Context, facilityName, serviceName string) (Suggestion, error) {
	s, err := a.Suggest(ctx, facilityName, serviceName)
	if err != nil {
		return Fallback, err
	}
	return s, nil
}
