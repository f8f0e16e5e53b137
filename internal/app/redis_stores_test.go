package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/herodrop/rewards-service/internal/domain"
	"github.com/herodrop/rewards-service/internal/redistest"
)

func TestRedisSessionStore_RoundTrip(t *testing.T) {
	client, srv := redistest.NewClient()
	t.Cleanup(func() { client.Close() })
	srv.Advance(0)
	sessions := NewRedisSessionStore(client, "herodrop:", 30*time.Minute)
	ctx := context.Background()

	s := domain.RedemptionSession{
		ID:       uuid.New(),
		DonorID:  uuid.New(),
		Item:     domain.RedemptionItem{ID: "general-checkup", Title: "General Checkup", Cost: 60, Category: domain.ItemService},
		State:    domain.StateConfirmingRedemption,
		Location: &domain.Location{Name: "Kenyatta National Hospital", Address: "Hospital Road, Nairobi"},
		Details:  &domain.RedemptionDetails{Code: "GENE-4821", SuggestedTime: "Mid-morning"},
		Balance:  100,
	}
	if err := sessions.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	key := "herodrop:redemption_session:" + s.ID.String()
	if got := srv.TTL(key); got != 30*time.Minute {
		t.Fatalf("ttl for %s = %v, want 30m", key, got)
	}

	got, err := sessions.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != s.State || got.Details == nil || got.Details.Code != "GENE-4821" || got.Location.Name != s.Location.Name || got.Item.Cost != 60 {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	if err := sessions.Delete(ctx, s.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := sessions.Get(ctx, s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
}

func TestRedisSessionStore_Expires(t *testing.T) {
	client, srv := redistest.NewClient()
	t.Cleanup(func() { client.Close() })
	sessions := NewRedisSessionStore(client, "", time.Minute)
	ctx := context.Background()

	s := domain.RedemptionSession{ID: uuid.New(), DonorID: uuid.New(), State: domain.StateSelectingLocation}
	if err := sessions.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	srv.Advance(2 * time.Minute)
	if _, err := sessions.Get(ctx, s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

// fixedWindow mirrors promptWindowScript against the in-memory server.
func fixedWindow(srv *redistest.Server) redistest.ScriptFunc {
	return func(keys []string, args []interface{}) (interface{}, error) {
		window := time.Duration(args[0].(int64)) * time.Millisecond
		srv.SetValue(keys[0], "0", window, true)
		n, err := srv.Incr(keys[0])
		if err != nil {
			return nil, err
		}
		return []interface{}{n, srv.TTL(keys[0]).Milliseconds()}, nil
	}
}

func TestRedisRateLimiter_CountsPerSubjectWindow(t *testing.T) {
	client, srv := redistest.NewClient()
	t.Cleanup(func() { client.Close() })
	srv.Advance(0)
	srv.HandleScript(promptWindowScript, fixedWindow(srv))
	limiter := NewRedisRateLimiter(client, "herodrop")
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		count, retry, err := limiter.ConsumeRateLimit(ctx, "facilities", "donor-1", 2, time.Minute)
		if err != nil {
			t.Fatalf("ConsumeRateLimit: %v", err)
		}
		if count != want || retry != 60 {
			t.Fatalf("call %d: count=%d retry=%d", want, count, retry)
		}
	}
	if got := srv.TTL("herodrop:prompt_quota:facilities:donor-1"); got != time.Minute {
		t.Fatalf("window ttl = %v, want 1m", got)
	}

	if count, _, _ := limiter.ConsumeRateLimit(ctx, "facilities", "donor-2", 2, time.Minute); count != 1 {
		t.Fatalf("subjects must not share a window, got %d", count)
	}

	srv.Advance(time.Minute)
	if count, _, _ := limiter.ConsumeRateLimit(ctx, "facilities", "donor-1", 2, time.Minute); count != 1 {
		t.Fatalf("window should reset after expiry, got %d", count)
	}
}

func TestRedisRateLimiter_SkipsDisabledLimits(t *testing.T) {
	client, srv := redistest.NewClient()
	t.Cleanup(func() { client.Close() })
	limiter := NewRedisRateLimiter(client, "herodrop")

	if count, _, err := limiter.ConsumeRateLimit(context.Background(), "facilities", "donor-1", 0, time.Minute); err != nil || count != 0 {
		t.Fatalf("zero limit: count=%d err=%v", count, err)
	}
	if count, _, err := limiter.ConsumeRateLimit(context.Background(), " ", "donor-1", 5, time.Minute); err != nil || count != 0 {
		t.Fatalf("blank scope: count=%d err=%v", count, err)
	}
	if keys := srv.Keys(); len(keys) != 0 {
		t.Fatalf("nothing should be written, got %v", keys)
	}
}
