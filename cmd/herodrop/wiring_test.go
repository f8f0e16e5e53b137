package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/herodrop/rewards-service/internal/config"
	"github.com/herodrop/rewards-service/internal/notify"
	"github.com/herodrop/rewards-service/pkg/smsclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBuildComponents_InMemory(t *testing.T) {
	cfg := config.Config{
		StoreDriver:                 "memory",
		KVPath:                      filepath.Join(t.TempDir(), "kv.db"),
		RedisKeyPrefix:              "herodrop",
		EligibilityOracle:           "rules",
		SMSProvider:                 "none",
		ReminderSchedule:            "0 8 * * *",
		PromptRateLimitPerMinute:    30,
		LocatorCacheTTLMinutes:      60,
		RedemptionSessionTTLMinutes: 30,
	}

	c, err := buildComponents(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer c.close()

	assert.Nil(t, c.limiter, "rate limiting needs redis")
	assert.NotNil(t, c.services.Workflow)
	assert.NotNil(t, c.services.Pledges)
	assert.NotNil(t, c.reminder)
	assert.NotEmpty(t, c.services.Catalog.Items())
}

func TestNewSender_MissingCredentialsLogs(t *testing.T) {
	sender := newSender(config.Config{SMSProvider: "africastalking"}, zap.NewNop())
	cs, ok := sender.(notify.ClientSender)
	require.True(t, ok)
	_, isLog := cs.Client.(*smsclient.LogSender)
	assert.True(t, isLog)

	sender = newSender(config.Config{
		SMSProvider:      "twilio",
		TwilioAccountSID: "AC123",
		TwilioAuthToken:  "token",
		TwilioFromNumber: "+15550001111",
	}, zap.NewNop())
	_, isTwilio := sender.(notify.ClientSender).Client.(*smsclient.Twilio)
	assert.True(t, isTwilio)
}
