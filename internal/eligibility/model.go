package eligibility

import (
	"context"

	"github.com/herodrop/rewards-service/internal/domain"
	"github.com/herodrop/rewards-service/internal/prompt"
	"google.golang.org/genai"
)

const checkEligibilityText = `You are a medical assistant reviewing a blood donor's pre-screening questionnaire. Your task is to determine if the donor is eligible based on the following standard criteria for blood donation in Kenya.

Donation is NOT ALLOWED if the user answers 'yes' to any of the following:
- Had a fever in the past 7 days.
- Recently experienced unexplained weight loss or fatigue.
- Had malaria in the last 3 months.
- Had typhoid, TB, or hepatitis recently.
- Had surgery in the past 6 months.
- Tested positive for HIV/AIDS.
- Has any known sexually transmitted infections.
- Received any vaccines in the last 4 weeks.
- Is currently pregnant.
- Gave birth in the past 6 months.
- Is breastfeeding.
- Has had a new sexual partner in the last 6 months.
- Has ever injected drugs not prescribed by a doctor.
- Has ever been paid to donate or receive blood.
- Is currently taking disqualifying medication (e.g., antibiotics, blood thinners). Assume any listed medication is a potential disqualifier unless it's a common over-the-counter painkiller like paracetamol.

Donation is NOT ALLOWED if the user answers 'no' to the following:
- Feeling well today.

Based on the user's answers below, determine their eligibility. Set 'isEligible' to true or false. Provide a 'feedback' message that is clear, friendly, and explains the decision. If they are ineligible, state the primary reason clearly. If they are eligible, provide a confirmation message.

User's Answers:
- Feeling well today? {{.FeelingWell}}
- Had a fever in the past 7 days? {{.Fever}}
- Unexplained weight loss or fatigue? {{.WeightLoss}}
- Malaria in last 3 months? {{.Malaria}}
- Typhoid, TB, or hepatitis recently? {{.Typhoid}}
- Surgery in past 6 months? {{.Surgery}}
- Tested positive for HIV/AIDS? {{.HIV}}
- Known STIs? {{.STI}}
- Exposed to COVID-19 recently? {{.Covid}}
- Taking medication? {{.Medication}}
- List of medications: {{.MedicationList}}
- Received vaccine in last 4 weeks? {{.Vaccine}}
- Currently pregnant? {{.Pregnant}}
- Given birth in past 6 months? {{.GaveBirth}}
- Breastfeeding? {{.Breastfeeding}}
- New sexual partner in last 6 months? {{.NewPartner}}
- Injected non-prescribed drugs? {{.InjectedDrugs}}
- Paid for blood? {{.PaidForBlood}}
`

// CheckEligibilityPrompt is the model-facing eligibility contract.
var CheckEligibilityPrompt = prompt.Must[domain.AnswerSet, domain.EligibilityDecision](
	"checkEligibility",
	checkEligibilityText,
	prompt.Object(map[string]*genai.Schema{
		"isEligible": prompt.Boolean("Whether the user is eligible to donate blood."),
		"feedback":   prompt.String("A clear, concise, and friendly explanation for the eligibility decision. If ineligible, state the primary reason."),
	}, "isEligible", "feedback"),
)

// ModelRuleSet labels decisions produced by the language model.
const ModelRuleSet = "model:" + StrictRuleSet

// ModelOracle delegates the decision to the language model. Identical answers
// may produce different decisions across calls.
type ModelOracle struct {
	model prompt.Model
}

func NewModelOracle(model prompt.Model) *ModelOracle {
	return &ModelOracle{model: model}
}

func (o *ModelOracle) Decide(ctx context.Context, answers domain.AnswerSet) (domain.EligibilityDecision, error) {
	decision, err := CheckEligibilityPrompt.Invoke(ctx, o.model, answers)
	if err != nil {
		return domain.EligibilityDecision{}, err
	}
	decision.RuleSet = ModelRuleSet
	return decision, nil
}
