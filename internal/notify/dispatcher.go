package notify

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/herodrop/rewards-service/internal/domain"
	"github.com/herodrop/rewards-service/pkg/smsclient"
	"go.uber.org/zap"
)

// ErrDispatchFailed wraps every failure to hand a message to the gateway.
var ErrDispatchFailed = errors.New("sms dispatch failed")

// Sender delivers one SMS.
type Sender interface {
	Send(ctx context.Context, msg domain.SMS) (domain.DeliveryResult, error)
}

// ClientSender adapts a gateway client to Sender.
type ClientSender struct {
	Client smsclient.Client
}

func (s ClientSender) Send(ctx context.Context, msg domain.SMS) (domain.DeliveryResult, error) {
	res, err := s.Client.Send(ctx, msg.To, msg.Message)
	if err != nil {
		return domain.DeliveryResult{}, err
	}
	return domain.DeliveryResult{
		Success:   true,
		MessageID: res.MessageID,
		Status:    res.Status,
		Simulated: res.Simulated,
	}, nil
}

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{9,14}$`)

// NormalizePhone converts local Kenyan formats (07xx, 01xx, 2547xx) to E.164.
func NormalizePhone(raw string) (string, error) {
	p := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(raw))
	switch {
	case strings.HasPrefix(p, "+"):
	case strings.HasPrefix(p, "254"):
		p = "+" + p
	case strings.HasPrefix(p, "0") && len(p) == 10:
		p = "+254" + p[1:]
	}
	if !e164.MatchString(p) {
		return "", &domain.FieldError{Field: "phoneNumber", Message: "must be a valid phone number"}
	}
	return p, nil
}

// Dispatcher sends composed messages.
type Dispatcher struct {
	sender Sender
	logger *zap.Logger
}

func NewDispatcher(sender Sender, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, logger: logger.With(zap.String("component", "sms"))}
}

// Dispatch normalizes the recipient and sends message. Invalid numbers are
// validation errors; gateway failures wrap ErrDispatchFailed.
func (d *Dispatcher) Dispatch(ctx context.Context, to, message string) (domain.DeliveryResult, error) {
	phone, err := NormalizePhone(to)
	if err != nil {
		return domain.DeliveryResult{}, err
	}
	if strings.TrimSpace(message) == "" {
		return domain.DeliveryResult{}, &domain.FieldError{Field: "message", Message: "is required"}
	}

	res, err := d.sender.Send(ctx, domain.SMS{To: phone, Message: message})
	if err == nil && !res.Success {
		err = errors.New("gateway reported failure")
	}
	if err != nil {
		d.logger.Warn("sms dispatch failed", zap.String("to", phone), zap.String("outcome", "failed"), zap.Error(err))
		return domain.DeliveryResult{}, fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}
	d.logger.Info("sms dispatched", zap.String("to", phone), zap.String("message_id", res.MessageID), zap.Bool("simulated", res.Simulated))
	return res, nil
}

// Notifier composes and then dispatches.
type Notifier struct {
	Composer   *Composer
	Dispatcher *Dispatcher
}

// Notify composes intent and, when send is true, dispatches the result to
// intent.PhoneNumber. The composed message is returned either way.
func (n *Notifier) Notify(ctx context.Context, intent domain.NotificationIntent, send bool) (domain.ComposedMessage, *domain.DeliveryResult, error) {
	if send {
		if _, err := NormalizePhone(intent.PhoneNumber); err != nil {
			return domain.ComposedMessage{}, nil, err
		}
	}
	msg, err := n.Composer.Compose(ctx, intent)
	if err != nil {
		return domain.ComposedMessage{}, nil, err
	}
	if !send {
		return msg, nil, nil
	}
	res, err := n.Dispatcher.Dispatch(ctx, intent.PhoneNumber, msg.SMSMessage)
	if err != nil {
		return msg, nil, err
	}
	return msg, &res, nil
}
