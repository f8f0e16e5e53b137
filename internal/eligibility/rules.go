package eligibility

import (
	"context"
	"strings"

	"github.com/herodrop/rewards-service/internal/domain"
)

// StrictRuleSet is the full Kenyan pre-screening policy: every questionnaire
// item is evaluated, including the medication list.
const StrictRuleSet = "kenya-strict-v1"

type rule struct {
	field        string
	disqualifier domain.Answer
	reason       string
}

var strictRules = []rule{
	{"feelingWell", domain.AnswerNo, "you are not feeling well today"},
	{"fever", domain.AnswerYes, "you had a fever in the past 7 days"},
	{"weightLoss", domain.AnswerYes, "you recently experienced unexplained weight loss or fatigue"},
	{"malaria", domain.AnswerYes, "you had malaria in the last 3 months"},
	{"typhoid", domain.AnswerYes, "you recently had typhoid, TB or hepatitis"},
	{"surgery", domain.AnswerYes, "you had surgery in the past 6 months"},
	{"hiv", domain.AnswerYes, "you have tested positive for HIV/AIDS"},
	{"sti", domain.AnswerYes, "you have a known sexually transmitted infection"},
	{"vaccine", domain.AnswerYes, "you received a vaccine in the last 4 weeks"},
	{"pregnant", domain.AnswerYes, "you are currently pregnant"},
	{"gaveBirth", domain.AnswerYes, "you gave birth in the past 6 months"},
	{"breastfeeding", domain.AnswerYes, "you are breastfeeding"},
	{"newPartner", domain.AnswerYes, "you have had a new sexual partner in the last 6 months"},
	{"injectedDrugs", domain.AnswerYes, "you have injected drugs not prescribed by a doctor"},
	{"paidForBlood", domain.AnswerYes, "you have been paid to donate or receive blood"},
}

// Over-the-counter painkillers that do not defer a donation.
var permittedMedication = []string{"paracetamol", "panadol", "acetaminophen"}

// RuleOracle evaluates StrictRuleSet without any external call.
type RuleOracle struct{}

func (RuleOracle) Decide(_ context.Context, answers domain.AnswerSet) (domain.EligibilityDecision, error) {
	byField := make(map[string]domain.Answer, len(strictRules))
	for _, q := range answers.Questions() {
		byField[q.Field] = q.Answer
	}

	for _, r := range strictRules {
		if byField[r.field] == r.disqualifier {
			return ineligible(r.reason), nil
		}
	}
	if answers.Medication == domain.AnswerYes {
		if med, ok := firstDisqualifyingMedication(answers.MedicationList); ok {
			return ineligible("you are taking " + med + ", which may affect your donation"), nil
		}
	}

	return domain.EligibilityDecision{
		IsEligible: true,
		Feedback:   "Great news! Based on your answers you are eligible to donate blood. Thank you for choosing to save lives.",
		RuleSet:    StrictRuleSet,
	}, nil
}

func ineligible(reason string) domain.EligibilityDecision {
	return domain.EligibilityDecision{
		IsEligible: false,
		Feedback:   "Thank you for your willingness to donate. Unfortunately you cannot donate at this time because " + reason + ". Please check again later or speak to a health worker.",
		RuleSet:    StrictRuleSet,
	}
}

// firstDisqualifyingMedication returns the first listed medication that is not
// a permitted painkiller.
func firstDisqualifyingMedication(list string) (string, bool) {
	items := strings.FieldsFunc(list, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n' || r == '/' || r == '&'
	})
	for _, item := range items {
		for _, part := range strings.Split(item, " and ") {
			name := strings.TrimSpace(part)
			if name == "" {
				continue
			}
			if !isPermittedMedication(name) {
				return name, true
			}
		}
	}
	return "", false
}

func isPermittedMedication(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range permittedMedication {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
