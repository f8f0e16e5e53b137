package app

import (
	"context"
	"strings"

	"github.com/herodrop/rewards-service/internal/domain"
	"github.com/herodrop/rewards-service/internal/notify"
	"go.uber.org/zap"
)

// Broadcast template keys.
const (
	TemplateCustom          = "custom"
	TemplateNewService      = "new-service"
	TemplateRewardOffer     = "reward-offer"
	TemplateUrgentBloodNeed = "urgent-blood-need"
)

var broadcastTemplates = map[string]string{
	TemplateCustom:          "",
	TemplateNewService:      "Hi {{userName}}, great news! We've just added a new service you can redeem with your DamuTokens. Check it out now!",
	TemplateRewardOffer:     "Hi {{userName}}, for a limited time, earn double DamuTokens for every blood donation. Book your appointment today!",
	TemplateUrgentBloodNeed: "URGENT: Hi {{userName}}, there is a critical need for your blood type. Please consider donating soon and be a hero. Thank you!",
}

// BroadcastRequest is one admin-initiated message.
type BroadcastRequest struct {
	PhoneNumber string `json:"phone"`
	Template    string `json:"template"`
	Message     string `json:"message"`
	UserName    string `json:"userName"`
}

// BroadcastResult reports the outcome; failures are carried here, not as errors.
type BroadcastResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Text    string `json:"text,omitempty"`
}

// RenderBroadcast resolves the template (or custom message) and substitutes
// the recipient name, defaulting to "Donor".
func RenderBroadcast(req BroadcastRequest) (string, error) {
	key := strings.TrimSpace(req.Template)
	if key == "" {
		key = TemplateCustom
	}
	text, ok := broadcastTemplates[key]
	if !ok {
		return "", &domain.FieldError{Field: "template", Message: "must be one of custom, new-service, reward-offer, urgent-blood-need"}
	}
	if strings.TrimSpace(req.Message) != "" {
		text = req.Message
	}
	if strings.TrimSpace(text) == "" {
		return "", &domain.FieldError{Field: "message", Message: "is required"}
	}
	name := strings.TrimSpace(req.UserName)
	if name == "" {
		name = "Donor"
	}
	return strings.ReplaceAll(text, "{{userName}}", name), nil
}

// Broadcaster sends admin broadcasts.
type Broadcaster struct {
	dispatcher MessageDispatcher
	logger     *zap.Logger
}

func NewBroadcaster(dispatcher MessageDispatcher, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{dispatcher: dispatcher, logger: logger.With(zap.String("component", "broadcast"))}
}

// Send renders and dispatches req. Validation errors are returned as errors;
// delivery failures are reported in the result.
func (b *Broadcaster) Send(ctx context.Context, req BroadcastRequest) (BroadcastResult, error) {
	if _, err := notify.NormalizePhone(req.PhoneNumber); err != nil {
		return BroadcastResult{}, err
	}
	text, err := RenderBroadcast(req)
	if err != nil {
		return BroadcastResult{}, err
	}
	if _, err := b.dispatcher.Dispatch(ctx, req.PhoneNumber, text); err != nil {
		b.logger.Warn("broadcast failed", zap.String("template", req.Template), zap.Error(err))
		return BroadcastResult{Success: false, Message: "Failed to send SMS.", Text: text}, nil
	}
	return BroadcastResult{Success: true, Message: "SMS sent successfully.", Text: text}, nil
}
