/**
 * @description
 * Pre-screening questionnaire submitted before a donor books an appointment,
 * and the eligibility decision produced for it.
 *
 * @notes
 * - Answer values are the literal strings "yes" and "no". They are embedded in
 *   prompt text sent to the language model and must not be renamed.
 * - An AnswerSet is created per booking attempt and is never persisted.
 */

package domain

import "strings"

// Answer is a yes/no questionnaire response.
type Answer string

const (
	AnswerYes Answer = "yes"
	AnswerNo  Answer = "no"
)

// AnswerSet holds the full eligibility questionnaire.
type AnswerSet struct {
	FeelingWell    Answer `json:"feelingWell"`
	Fever          Answer `json:"fever"`
	WeightLoss     Answer `json:"weightLoss"`
	Malaria        Answer `json:"malaria"`
	Typhoid        Answer `json:"typhoid"`
	Surgery        Answer `json:"surgery"`
	HIV            Answer `json:"hiv"`
	STI            Answer `json:"sti"`
	Covid          Answer `json:"covid"`
	Medication     Answer `json:"medication"`
	MedicationList string `json:"medicationList,omitempty"`
	Vaccine        Answer `json:"vaccine"`
	Pregnant       Answer `json:"pregnant"`
	GaveBirth      Answer `json:"gaveBirth"`
	Breastfeeding  Answer `json:"breastfeeding"`
	NewPartner     Answer `json:"newPartner"`
	InjectedDrugs  Answer `json:"injectedDrugs"`
	PaidForBlood   Answer `json:"paidForBlood"`
}

// Question pairs a wire field name with its answer.
type Question struct {
	Field  string
	Answer Answer
}

// Questions returns every yes/no question in questionnaire order.
func (a AnswerSet) Questions() []Question {
	return []Question{
		{"feelingWell", a.FeelingWell},
		{"fever", a.Fever},
		{"weightLoss", a.WeightLoss},
		{"malaria", a.Malaria},
		{"typhoid", a.Typhoid},
		{"surgery", a.Surgery},
		{"hiv", a.HIV},
		{"sti", a.STI},
		{"covid", a.Covid},
		{"medication", a.Medication},
		{"vaccine", a.Vaccine},
		{"pregnant", a.Pregnant},
		{"gaveBirth", a.GaveBirth},
		{"breastfeeding", a.Breastfeeding},
		{"newPartner", a.NewPartner},
		{"injectedDrugs", a.InjectedDrugs},
		{"paidForBlood", a.PaidForBlood},
	}
}

// Validate checks that every question is answered and that a medication list
// accompanies a "yes" to current medication.
func (a AnswerSet) Validate() error {
	for _, q := range a.Questions() {
		if q.Answer != AnswerYes && q.Answer != AnswerNo {
			return fieldError(q.Field, "must be \"yes\" or \"no\"")
		}
	}
	if a.Medication == AnswerYes && strings.TrimSpace(a.MedicationList) == "" {
		return fieldError("medicationList", "please list your medications")
	}
	return nil
}

// EligibilityDecision is immutable once produced.
type EligibilityDecision struct {
	IsEligible bool   `json:"isEligible"`
	Feedback   string `json:"feedback"`
	// RuleSet names the policy that produced the decision.
	RuleSet string `json:"ruleSet,omitempty"`
}
