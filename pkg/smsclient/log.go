package smsclient

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// LogSender writes messages to the log instead of sending them.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger.With(zap.String("component", "sms"), zap.String("mode", "fallback"))}
}

func (s *LogSender) Send(_ context.Context, to, message string) (*Result, error) {
	s.logger.Info("sms not sent; no gateway credentials", zap.String("to", to), zap.String("message", message))
	return &Result{
		MessageID: fmt.Sprintf("ATXid_%d", time.Now().UnixMilli()),
		Status:    "Success",
		Cost:      "KES 0.0000",
		Simulated: true,
	}, nil
}
