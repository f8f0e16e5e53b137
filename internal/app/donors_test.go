package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/herodrop/rewards-service/internal/domain"
	"github.com/herodrop/rewards-service/internal/store"
	"go.uber.org/zap"
)

func TestRegister_NormalizesPhones(t *testing.T) {
	f := newFixture(t)
	d := f.donor(t, domain.WelcomeBonusTokens, true)
	if d.PhoneNumber != "+254712345678" || d.KinPhone != "+254722000111" {
		t.Fatalf("phones not normalized: %+v", d)
	}
	if b := f.balance(t, d.ID); b != domain.WelcomeBonusTokens {
		t.Fatalf("balance = %d", b)
	}
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)
	svc := NewDonorService(f.repo, f.publisher, zap.NewNop())
	ctx := context.Background()

	cases := map[string]domain.Donor{
		"missing name":  {PhoneNumber: "0712345678"},
		"bad phone":     {Name: "Jane", PhoneNumber: "12"},
		"bad kin phone": {Name: "Jane", PhoneNumber: "0712345678", KinName: "Mary", KinPhone: "abc"},
	}
	for name, d := range cases {
		if _, err := svc.Register(ctx, d); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
	}
	if got := f.publisher.published(); len(got) != 0 {
		t.Fatalf("no events expected, got %v", got)
	}
}

func TestWalletAndReferral(t *testing.T) {
	f := newFixture(t)
	d := f.donor(t, domain.WelcomeBonusTokens, false)
	svc := NewDonorService(f.repo, f.publisher, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.CreditReferral(ctx, d.ID, "  "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	entry, err := svc.CreditReferral(ctx, d.ID, "Otieno")
	if err != nil {
		t.Fatalf("CreditReferral: %v", err)
	}
	if entry.Amount != domain.ReferralTokens || entry.Description != "Refer a friend: Otieno" {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	w, err := svc.Wallet(ctx, d.ID)
	if err != nil {
		t.Fatalf("Wallet: %v", err)
	}
	if w.Balance != 40 || w.Available != 40 {
		t.Fatalf("unexpected balances: %+v", w)
	}
	if len(w.Entries) != 2 || w.Entries[0].Description != "Refer a friend: Otieno" {
		t.Fatalf("entries should be newest first: %+v", w.Entries)
	}
	if got := f.publisher.published(); len(got) != 1 || got[0] != domain.EventLedgerCredited {
		t.Fatalf("unexpected events: %v", got)
	}

	if _, err := svc.Wallet(ctx, uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown donor: got %v", err)
	}
}

func TestRejectRedemption_Refunds(t *testing.T) {
	f := newFixture(t)
	d := f.donor(t, 100, false)
	f.model.
		Returns("suggestRedemptionTime", `{"suggestedTime":"Weekdays 2-4PM","reasoning":"Quieter."}`).
		Returns("generateSmsNotification", `{"smsMessage":"🎉 Jane, your code is GENE-4821. Total balance: 40 DT."}`)
	w := f.workflow()
	w.intn = fixedSuffixes(3821)
	s := readyToConfirm(t, f, w, d.ID)
	res, err := w.Confirm(context.Background(), d.ID, s.ID)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	svc := NewDonorService(f.repo, f.publisher, zap.NewNop())
	rejected, err := svc.RejectRedemption(context.Background(), res.Redemption.ID)
	if err != nil {
		t.Fatalf("RejectRedemption: %v", err)
	}
	if rejected.Status != domain.RedemptionRejected {
		t.Fatalf("status = %s", rejected.Status)
	}
	if b := f.balance(t, d.ID); b != 100 {
		t.Fatalf("balance = %d, want 100 after refund", b)
	}
	if _, err := svc.FulfillRedemption(context.Background(), res.Redemption.ID); !errors.Is(err, store.ErrInvalidStatus) {
		t.Fatalf("fulfilling a rejected voucher: got %v", err)
	}
}

func TestRenderBroadcast(t *testing.T) {
	text, err := RenderBroadcast(BroadcastRequest{Template: TemplateNewService})
	if err != nil {
		t.Fatalf("RenderBroadcast: %v", err)
	}
	if want := "Hi Donor, great news! We've just added a new service you can redeem with your DamuTokens. Check it out now!"; text != want {
		t.Fatalf("got %q", text)
	}

	text, err = RenderBroadcast(BroadcastRequest{Template: TemplateCustom, Message: "Hello {{userName}}", UserName: "Jane"})
	if err != nil || text != "Hello Jane" {
		t.Fatalf("custom: %q, %v", text, err)
	}

	if _, err := RenderBroadcast(BroadcastRequest{Template: "bogus"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("unknown template: got %v", err)
	}
	if _, err := RenderBroadcast(BroadcastRequest{Template: TemplateCustom}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("empty custom: got %v", err)
	}
}

func TestBroadcasterReportsDeliveryFailure(t *testing.T) {
	f := newFixture(t)
	b := NewBroadcaster(f.dispatch, zap.NewNop())
	req := BroadcastRequest{PhoneNumber: "0712345678", Template: TemplateUrgentBloodNeed, UserName: "Jane"}

	res, err := b.Send(context.Background(), req)
	if err != nil || !res.Success || res.Message != "SMS sent successfully." {
		t.Fatalf("unexpected result: %+v, %v", res, err)
	}

	f.sender.mu.Lock()
	f.sender.err = errGateway
	f.sender.mu.Unlock()
	res, err = b.Send(context.Background(), req)
	if err != nil {
		t.Fatalf("delivery failures are not errors: %v", err)
	}
	if res.Success || res.Message != "Failed to send SMS." {
		t.Fatalf("unexpected result: %+v", res)
	}

	if _, err := b.Send(context.Background(), BroadcastRequest{PhoneNumber: "nope", Template: TemplateRewardOffer}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("bad phone: got %v", err)
	}
}

func TestMemorySessionStoreExpiry(t *testing.T) {
	sessions := NewMemorySessionStore(time.Minute)
	now := time.Date(2024, 8, 14, 8, 0, 0, 0, time.UTC)
	sessions.now = func() time.Time { return now }
	ctx := context.Background()

	s := domain.RedemptionSession{ID: uuid.New(), DonorID: uuid.New(), State: domain.StateSelectingLocation}
	if err := sessions.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := sessions.Get(ctx, s.ID); err != nil {
		t.Fatalf("Get: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := sessions.Get(ctx, s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestDecodeWindow(t *testing.T) {
	count, retry, err := decodeWindow([]interface{}{int64(3), int64(1500)}, time.Minute)
	if err != nil || count != 3 || retry != 2 {
		t.Fatalf("got %d, %d, %v", count, retry, err)
	}

	_, retry, err = decodeWindow([]interface{}{int64(1), int64(-1)}, time.Minute)
	if err != nil || retry != 60 {
		t.Fatalf("missing ttl should fall back to the window: %d, %v", retry, err)
	}

	if _, _, err := decodeWindow("nope", time.Second); err == nil {
		t.Fatal("expected shape error")
	}
}
