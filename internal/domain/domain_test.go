package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func allNo() AnswerSet {
	return AnswerSet{
		FeelingWell: AnswerNo, Fever: AnswerNo, WeightLoss: AnswerNo, Malaria: AnswerNo,
		Typhoid: AnswerNo, Surgery: AnswerNo, HIV: AnswerNo, STI: AnswerNo, Covid: AnswerNo,
		Medication: AnswerNo, Vaccine: AnswerNo, Pregnant: AnswerNo, GaveBirth: AnswerNo,
		Breastfeeding: AnswerNo, NewPartner: AnswerNo, InjectedDrugs: AnswerNo, PaidForBlood: AnswerNo,
	}
}

func TestAnswerSetValidate_MedicationRequiresList(t *testing.T) {
	a := allNo()
	a.Medication = AnswerYes
	a.MedicationList = "   "

	err := a.Validate()
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var fe *FieldError
	if !errors.As(err, &fe) || fe.Field != "medicationList" {
		t.Fatalf("expected medicationList field error, got %#v", err)
	}

	a.MedicationList = "Panadol"
	if err := a.Validate(); err != nil {
		t.Fatalf("expected valid answer set, got %v", err)
	}
}

func TestAnswerSetValidate_RejectsUnanswered(t *testing.T) {
	a := allNo()
	a.Typhoid = ""
	var fe *FieldError
	if err := a.Validate(); !errors.As(err, &fe) || fe.Field != "typhoid" {
		t.Fatalf("expected typhoid field error, got %v", err)
	}
}

func TestNotificationIntentValidate(t *testing.T) {
	bal := int64(40)
	cases := []struct {
		name   string
		intent NotificationIntent
		field  string
	}{
		{"reminder ok", NotificationIntent{Type: NotifyReminder, UserName: "Jane", HospitalName: "KNH", AppointmentTime: "tomorrow 9AM"}, ""},
		{"reminder missing hospital", NotificationIntent{Type: NotifyReminder, UserName: "Jane", AppointmentTime: "9AM"}, "hospitalName"},
		{"rewards missing balance", NotificationIntent{Type: NotifyRewards, UserName: "Jane"}, "tokenBalance"},
		{"redemption ok", NotificationIntent{Type: NotifyRedemption, UserName: "Jane", ServiceRedeemed: "Lab Test", RedemptionCode: "LABX-374", TokenBalance: &bal}, ""},
		{"redemption missing code", NotificationIntent{Type: NotifyRedemption, UserName: "Jane", ServiceRedeemed: "Lab Test", TokenBalance: &bal}, "redemptionCode"},
		{"unknown type", NotificationIntent{Type: "promo", UserName: "Jane"}, "type"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.intent.Validate()
			if tc.field == "" {
				if err != nil {
					t.Fatalf("expected valid intent, got %v", err)
				}
				return
			}
			var fe *FieldError
			if !errors.As(err, &fe) || fe.Field != tc.field {
				t.Fatalf("expected %s field error, got %v", tc.field, err)
			}
		})
	}
}

func TestNewLedgerEntry_DerivesType(t *testing.T) {
	donor := uuid.New()
	credit := NewLedgerEntry(donor, WelcomeBonusReason, WelcomeBonusTokens)
	debit := NewLedgerEntry(donor, "Redeemed: General Checkup", -60)
	if credit.Type != TxCredit || debit.Type != TxDebit {
		t.Fatalf("unexpected types credit=%s debit=%s", credit.Type, debit.Type)
	}
	if got := Balance([]LedgerEntry{credit, debit}); got != -50 {
		t.Fatalf("expected balance -50, got %d", got)
	}
}

func TestVendorMatches(t *testing.T) {
	v := Vendor{Name: "Goodlife Pharmacy", Address: "Village Market, Nairobi", Category: VendorPharmacy}
	for _, q := range []string{"", "goodlife", "VILLAGE", "pharmacy"} {
		if !v.Matches(q) {
			t.Fatalf("expected %q to match", q)
		}
	}
	if v.Matches("mombasa") {
		t.Fatalf("did not expect mombasa to match")
	}
}
