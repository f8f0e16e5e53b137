package domain

import "strings"

// NotificationType selects the SMS template family.
type NotificationType string

const (
	NotifyReminder     NotificationType = "reminder"
	NotifyConfirmation NotificationType = "confirmation"
	NotifyRewards      NotificationType = "rewards"
	NotifyRedemption   NotificationType = "redemption"
)

// NotificationIntent carries the context for one composed SMS. Which fields are
// required depends on Type; see Validate.
type NotificationIntent struct {
	Type            NotificationType `json:"type"`
	PhoneNumber     string           `json:"phoneNumber"`
	UserName        string           `json:"userName"`
	HospitalName    string           `json:"hospitalName,omitempty"`
	AppointmentTime string           `json:"appointmentTime,omitempty"`
	TokenBalance    *int64           `json:"tokenBalance,omitempty"`
	ServiceRedeemed string           `json:"serviceRedeemed,omitempty"`
	RedemptionCode  string           `json:"redemptionCode,omitempty"`
	SuggestedTime   string           `json:"suggestedTime,omitempty"`
}

// ShowsBalance reports whether the token balance belongs in the message.
func (t NotificationType) ShowsBalance() bool {
	return t == NotifyRewards || t == NotifyRedemption
}

// Validate enforces the per-type required fields. The phone number is checked
// by the dispatcher, not here, so intents can be composed without sending.
func (n NotificationIntent) Validate() error {
	if strings.TrimSpace(n.UserName) == "" {
		return fieldError("userName", "is required")
	}
	switch n.Type {
	case NotifyReminder, NotifyConfirmation:
		if strings.TrimSpace(n.HospitalName) == "" {
			return fieldError("hospitalName", "is required for "+string(n.Type))
		}
		if strings.TrimSpace(n.AppointmentTime) == "" {
			return fieldError("appointmentTime", "is required for "+string(n.Type))
		}
	case NotifyRewards:
		if n.TokenBalance == nil {
			return fieldError("tokenBalance", "is required for rewards")
		}
	case NotifyRedemption:
		if strings.TrimSpace(n.ServiceRedeemed) == "" {
			return fieldError("serviceRedeemed", "is required for redemption")
		}
		if strings.TrimSpace(n.RedemptionCode) == "" {
			return fieldError("redemptionCode", "is required for redemption")
		}
		if n.TokenBalance == nil {
			return fieldError("tokenBalance", "is required for redemption")
		}
	default:
		return fieldError("type", "must be one of reminder, confirmation, rewards, redemption")
	}
	return nil
}

// ComposedMessage is the output of the notification composer.
type ComposedMessage struct {
	SMSMessage string `json:"smsMessage"`
}

// SMS is a message ready for dispatch.
type SMS struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// DeliveryResult is what an SMS gateway reports for one message.
type DeliveryResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Simulated bool   `json:"simulated,omitempty"`
}
