package notify

import (
	"fmt"
	"strings"

	"github.com/herodrop/rewards-service/internal/domain"
)

// Template renders the house-style message for intent without the model.
func Template(intent domain.NotificationIntent) string {
	switch intent.Type {
	case domain.NotifyRewards:
		return fmt.Sprintf("👏🏽 Congrats, %s! You've earned DamuTokens. Total balance: %d DT. Redeem now at damuhero.co.ke/redeem",
			intent.UserName, balanceOf(intent))
	case domain.NotifyRedemption:
		msg := fmt.Sprintf("🎉 %s, you've redeemed %s! Your redemption code is %s. Total balance: %d DT.",
			intent.UserName, intent.ServiceRedeemed, intent.RedemptionCode, balanceOf(intent))
		if s := strings.TrimSpace(intent.SuggestedTime); s != "" {
			msg += " Best time to visit: " + s + "."
		}
		return msg
	case domain.NotifyReminder:
		return fmt.Sprintf("🔔 Hi %s, your appointment at %s is scheduled for %s.",
			intent.UserName, intent.HospitalName, intent.AppointmentTime)
	case domain.NotifyConfirmation:
		return fmt.Sprintf("✅ Hi %s, your appointment at %s on %s has been confirmed.",
			intent.UserName, intent.HospitalName, intent.AppointmentTime)
	}
	return ""
}

func balanceOf(intent domain.NotificationIntent) int64 {
	if intent.TokenBalance == nil {
		return 0
	}
	return *intent.TokenBalance
}

// missingFacts reports which facts a composed message for intent must carry but does not.
func missingFacts(intent domain.NotificationIntent, text string) []string {
	var missing []string
	if intent.Type.ShowsBalance() && !containsNumber(text, fmt.Sprint(balanceOf(intent))) {
		missing = append(missing, "tokenBalance")
	}
	if intent.Type == domain.NotifyRedemption && !strings.Contains(text, intent.RedemptionCode) {
		missing = append(missing, "redemptionCode")
	}
	return missing
}

// containsNumber reports whether num appears in text as a whole number, so
// "40" is not found in "400", "1,040" or "10:40".
func containsNumber(text, num string) bool {
	for i := 0; i <= len(text)-len(num); {
		j := strings.Index(text[i:], num)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(num)
		if !partOfNumber(text, start-1, -1) && !partOfNumber(text, end, 1) {
			return true
		}
		i = start + 1
	}
	return false
}

// partOfNumber reports whether the byte at i continues a number, either a
// digit or a separator followed by a digit in direction dir.
func partOfNumber(text string, i, dir int) bool {
	if i < 0 || i >= len(text) {
		return false
	}
	if isDigit(text[i]) {
		return true
	}
	switch text[i] {
	case ',', '.', ':':
		k := i + dir
		return k >= 0 && k < len(text) && isDigit(text[k])
	}
	return false
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
