package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/herodrop/rewards-service/internal/advisor"
	"github.com/herodrop/rewards-service/internal/app"
	"github.com/herodrop/rewards-service/internal/catalog"
	"github.com/herodrop/rewards-service/internal/domain"
	"github.com/herodrop/rewards-service/internal/eligibility"
	"github.com/herodrop/rewards-service/internal/locator"
	"github.com/herodrop/rewards-service/internal/notify"
	"github.com/herodrop/rewards-service/internal/prompt/prompttest"
	"github.com/herodrop/rewards-service/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testSecret = "test-secret"
	testIssuer = "herodrop"
)

type gatewaySender struct {
	err error
}

func (s *gatewaySender) Send(_ context.Context, msg domain.SMS) (domain.DeliveryResult, error) {
	if s.err != nil {
		return domain.DeliveryResult{}, s.err
	}
	return domain.DeliveryResult{Success: true, MessageID: "msg-1"}, nil
}

type fixedLimiter struct {
	count, retryAfter int
}

func (l fixedLimiter) ConsumeRateLimit(context.Context, string, string, int, time.Duration) (int, int, error) {
	return l.count, l.retryAfter, nil
}

type testServer struct {
	router  http.Handler
	repo    *store.MemoryRepository
	model   *prompttest.ScriptedModel
	sender  *gatewaySender
	donors  *app.DonorService
	limiter app.RateLimiter
}

func newTestServer(t *testing.T, limiter app.RateLimiter) *testServer {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := store.NewMemoryRepository()
	model := prompttest.New()
	sender := &gatewaySender{}
	composer := notify.NewComposer(model, logger)
	dispatcher := notify.NewDispatcher(sender, logger)
	loc := locator.New(locator.NewModelMatcher(model, cat), cat, nil, logger)
	donors := app.NewDonorService(repo, nil, logger)

	h := NewHandlers(Services{
		Eligibility: eligibility.NewEvaluator(eligibility.RuleOracle{}, logger),
		Locator:     loc,
		Catalog:     cat,
		Workflow: app.NewWorkflow(repo, cat, loc, advisor.New(model), composer, dispatcher,
			app.NewMemorySessionStore(app.DefaultSessionTTL), nil, logger),
		Pledges:     app.NewPledgeService(repo, loc, nil, composer, dispatcher, nil, logger),
		Donors:      donors,
		Notifier:    &notify.Notifier{Composer: composer, Dispatcher: dispatcher},
		Broadcaster: app.NewBroadcaster(dispatcher, logger),
	}, logger)

	router := NewRouter(h, RouterConfig{
		JWTSecret:            testSecret,
		JWTIssuer:            testIssuer,
		Limiter:              limiter,
		PromptLimitPerMinute: 30,
	}, logger)

	return &testServer{router: router, repo: repo, model: model, sender: sender, donors: donors, limiter: limiter}
}

func signToken(t *testing.T, sub, role, issuer, secret string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": sub,
		"iss": issuer,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if role != "" {
		claims["role"] = role
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func (s *testServer) donor(t *testing.T, balance int64) (uuid.UUID, string) {
	t.Helper()
	d, err := s.donors.Register(context.Background(), domain.Donor{Name: "Jane", PhoneNumber: "0712345678"})
	require.NoError(t, err)
	if extra := balance - domain.WelcomeBonusTokens; extra != 0 {
		require.NoError(t, s.repo.AppendLedgerEntry(context.Background(), domain.NewLedgerEntry(d.ID, "Seed", extra)))
	}
	return d.ID, signToken(t, d.ID.String(), "", testIssuer, testSecret)
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", rec.Body.String())
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t, nil)
	sub := uuid.NewString()

	tests := []struct {
		name  string
		token string
		path  string
		want  int
	}{
		{name: "missing_token", path: "/wallet", want: http.StatusUnauthorized},
		{name: "wrong_secret", token: signToken(t, sub, "", testIssuer, "other"), path: "/wallet", want: http.StatusUnauthorized},
		{name: "wrong_issuer", token: signToken(t, sub, "", "someone-else", testSecret), path: "/wallet", want: http.StatusUnauthorized},
		{name: "non_uuid_subject", token: signToken(t, "user_abc", "", testIssuer, testSecret), path: "/wallet", want: http.StatusUnauthorized},
		{name: "donor_on_admin", token: signToken(t, sub, "", testIssuer, testSecret), path: "/admin/pledges", want: http.StatusForbidden},
		{name: "admin", token: signToken(t, sub, RoleAdmin, testIssuer, testSecret), path: "/admin/pledges", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, tt.path, tt.token, nil)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestRedemptionFlow(t *testing.T) {
	s := newTestServer(t, nil)
	donorID, token := s.donor(t, 100)
	s.model.
		Returns("suggestRedemptionTime", `{"suggestedTime":"Weekdays 2-4PM","reasoning":"Quieter after lunch."}`).
		Returns("generateSmsNotification", `{"smsMessage":"🎉 Jane, you've redeemed General Checkup!"}`)

	rec := s.do(t, http.MethodPost, "/redemptions/sessions", token, map[string]string{"item_id": "general-checkup"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var session domain.RedemptionSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.Equal(t, donorID, session.DonorID)
	assert.Equal(t, domain.StateSelectingLocation, session.State)

	base := "/redemptions/sessions/" + session.ID.String()
	rec = s.do(t, http.MethodPut, base+"/location", token, map[string]string{
		"name":    "Kenyatta National Hospital",
		"address": "Hospital Road, Nairobi",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, base+"/proceed", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	require.NotNil(t, session.Details)
	assert.Equal(t, "Weekdays 2-4PM", session.Details.SuggestedTime)

	rec = s.do(t, http.MethodPost, base+"/confirm", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var confirmation app.Confirmation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &confirmation))
	assert.Equal(t, session.Details.Code, confirmation.Redemption.Code)
	assert.Contains(t, confirmation.Message, confirmation.Redemption.Code, "template fallback carries the code")

	rec = s.do(t, http.MethodGet, "/wallet", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var wallet domain.Wallet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wallet))
	assert.Equal(t, int64(40), wallet.Balance)

	rec = s.do(t, http.MethodGet, base, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "completed sessions are closed")
}

func TestCreateSession_InsufficientBalance(t *testing.T) {
	s := newTestServer(t, nil)
	_, token := s.donor(t, 50)

	rec := s.do(t, http.MethodPost, "/redemptions/sessions", token, map[string]string{"item_id": "general-checkup"})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	rec = s.do(t, http.MethodPost, "/redemptions/sessions", token, map[string]string{"item_id": "no-such-item"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfirm_DispatchFailureIsBadGateway(t *testing.T) {
	s := newTestServer(t, nil)
	_, token := s.donor(t, 100)
	s.model.
		Returns("suggestRedemptionTime", `{"suggestedTime":"Mornings","reasoning":"Short queues."}`).
		Returns("generateSmsNotification", `{"smsMessage":"🎉 Jane, you've redeemed General Checkup!"}`)

	rec := s.do(t, http.MethodPost, "/redemptions/sessions", token, map[string]string{"item_id": "general-checkup"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var session domain.RedemptionSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	base := "/redemptions/sessions/" + session.ID.String()

	s.do(t, http.MethodPut, base+"/location", token, map[string]string{"name": "Kenyatta National Hospital", "address": "Hospital Road, Nairobi"})
	s.do(t, http.MethodPost, base+"/proceed", token, nil)

	s.sender.err = errors.New("gateway down")
	rec = s.do(t, http.MethodPost, base+"/confirm", token, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = s.do(t, http.MethodGet, "/wallet", token, nil)
	var wallet domain.Wallet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wallet))
	assert.Equal(t, int64(100), wallet.Balance)
}

func TestSessionTransitions(t *testing.T) {
	s := newTestServer(t, nil)
	_, token := s.donor(t, 100)

	rec := s.do(t, http.MethodPost, "/redemptions/sessions", token, map[string]string{"item_id": "general-checkup"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var session domain.RedemptionSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	base := "/redemptions/sessions/" + session.ID.String()

	rec = s.do(t, http.MethodPost, base+"/proceed", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "proceed without a location")

	rec = s.do(t, http.MethodPost, base+"/back", token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	_, other := s.donor(t, 100)
	rec = s.do(t, http.MethodGet, base, other, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodDelete, base, token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/redemptions/sessions/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEligibilityCheck(t *testing.T) {
	s := newTestServer(t, nil)
	_, token := s.donor(t, domain.WelcomeBonusTokens)

	answers := map[string]string{"feelingWell": "yes"}
	for _, field := range []string{"fever", "weightLoss", "malaria", "typhoid", "surgery", "hiv", "sti", "covid",
		"medication", "vaccine", "pregnant", "gaveBirth", "breastfeeding", "newPartner", "injectedDrugs", "paidForBlood"} {
		answers[field] = "no"
	}
	rec := s.do(t, http.MethodPost, "/eligibility/check", token, answers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var decision domain.EligibilityDecision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.True(t, decision.IsEligible)

	delete(answers, "fever")
	rec = s.do(t, http.MethodPost, "/eligibility/check", token, answers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"fever"`)
}

func TestFindFacilities_ModelUnavailable(t *testing.T) {
	s := newTestServer(t, nil)
	_, token := s.donor(t, domain.WelcomeBonusTokens)
	s.model.Fails("findFacilities", errors.New("quota exceeded"))

	rec := s.do(t, http.MethodGet, "/facilities?q=Nairobi", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = s.do(t, http.MethodGet, "/facilities", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/vendors?q=pharmacy", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitedEndpoint(t *testing.T) {
	s := newTestServer(t, fixedLimiter{count: 31, retryAfter: 12})
	_, token := s.donor(t, domain.WelcomeBonusTokens)

	rec := s.do(t, http.MethodGet, "/facilities?q=Nairobi", token, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "12", rec.Header().Get("Retry-After"))

	rec = s.do(t, http.MethodGet, "/catalog/items", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "catalog reads are not limited")
}

func TestAdminBroadcast(t *testing.T) {
	s := newTestServer(t, nil)
	admin := signToken(t, uuid.NewString(), RoleAdmin, testIssuer, testSecret)
	body := app.BroadcastRequest{PhoneNumber: "0712345678", Template: app.TemplateRewardOffer, UserName: "Jane"}

	rec := s.do(t, http.MethodPost, "/admin/sms/broadcast", admin, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "SMS sent successfully.")

	s.sender.err = errors.New("gateway down")
	rec = s.do(t, http.MethodPost, "/admin/sms/broadcast", admin, body)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to send SMS.")

	body.Template = "bogus"
	rec = s.do(t, http.MethodPost, "/admin/sms/broadcast", admin, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminListFilters(t *testing.T) {
	s := newTestServer(t, nil)
	admin := signToken(t, uuid.NewString(), RoleAdmin, testIssuer, testSecret)

	rec := s.do(t, http.MethodGet, "/admin/pledges?status=Bogus", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/admin/pledges?from=2024-08-15&until=2024-08-16", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"pledges":[]`))

	rec = s.do(t, http.MethodGet, "/admin/redemptions?status=staged", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/admin/redemptions/"+uuid.NewString()+"/fulfill", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminNotificationComposeOnly(t *testing.T) {
	s := newTestServer(t, nil)
	admin := signToken(t, uuid.NewString(), RoleAdmin, testIssuer, testSecret)
	s.model.Returns("generateSmsNotification", `{"smsMessage":"🔔 Hi Jane, your appointment at Kenyatta National Hospital is scheduled for 2024-08-15 at 10:00."}`)

	rec := s.do(t, http.MethodPost, "/admin/sms/notifications", admin, map[string]interface{}{
		"type":            "reminder",
		"phoneNumber":     "0712345678",
		"userName":        "Jane",
		"hospitalName":    "Kenyatta National Hospital",
		"appointmentTime": "2024-08-15 at 10:00",
		"send":            false,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp notificationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.Delivery)
	assert.Contains(t, resp.SMSMessage, "2024-08-15 at 10:00")
}
