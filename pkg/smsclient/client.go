/**
 * @description
 * This package provides SMS gateway clients. Africa's Talking is the primary
 * provider in Kenya; Twilio is supported as an alternative. When no gateway
 * credentials are configured the LogSender records messages in the log and
 * reports a simulated success.
 */
package smsclient

import (
	"context"
	"errors"
)

// Result is the gateway's report for one recipient.
type Result struct {
	MessageID string
	Status    string
	Cost      string
	Simulated bool
}

// Client sends a single SMS.
type Client interface {
	Send(ctx context.Context, to, message string) (*Result, error)
}

// ErrRejected is returned when the gateway accepted the request but refused the recipient.
var ErrRejected = errors.New("sms rejected by gateway")
