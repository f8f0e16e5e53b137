package locator

import (
	"context"
	"testing"
	"time"

	"github.com/herodrop/rewards-service/internal/domain"
	"github.com/herodrop/rewards-service/internal/prompt/prompttest"
	"github.com/herodrop/rewards-service/internal/redistest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_RoundTripWithTTL(t *testing.T) {
	client, srv := redistest.NewClient()
	t.Cleanup(func() { client.Close() })
	srv.Advance(0)
	cache := NewRedisCache(client, "herodrop:", time.Hour)
	ctx := context.Background()
	key := CacheKey("v1", "KNH")

	_, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "empty cache must miss")

	want := []domain.FacilityMatch{{Name: "Kenyatta National Hospital", Address: "Hospital Road, Nairobi", Distance: "approx. 2 km", Availability: domain.AvailabilityHigh}}
	require.NoError(t, cache.Set(ctx, key, want))

	require.Equal(t, []string{"herodrop:facilities:" + key}, srv.Keys())
	assert.Equal(t, time.Hour, srv.TTL("herodrop:facilities:"+key))

	got, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	srv.Advance(time.Hour + time.Second)
	_, ok, err = cache.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "entry must expire with its TTL")
}

func TestRedisCache_CorruptEntryIsAnError(t *testing.T) {
	client, srv := redistest.NewClient()
	t.Cleanup(func() { client.Close() })
	cache := NewRedisCache(client, "", time.Minute)

	srv.SetValue("herodrop:facilities:k", "{not json", 0, false)
	_, _, err := cache.Get(context.Background(), "k")
	require.ErrorContains(t, err, "decode cached matches")
}

func TestFindFacilities_ServedFromRedisCache(t *testing.T) {
	client, _ := redistest.NewClient()
	t.Cleanup(func() { client.Close() })
	model := prompttest.New().Returns("findFacilities", knhResponse)
	loc := newLocator(t, model, NewRedisCache(client, "herodrop", time.Hour))

	first, err := loc.FindFacilities(context.Background(), "KNH")
	require.NoError(t, err)
	second, err := loc.FindFacilities(context.Background(), "knh")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, model.CallCount("findFacilities"))
}
