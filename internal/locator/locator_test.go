package locator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/herodrop/rewards-service/internal/catalog"
	"github.com/herodrop/rewards-service/internal/domain"
	"github.com/herodrop/rewards-service/internal/prompt"
	"github.com/herodrop/rewards-service/internal/prompt/prompttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]domain.FacilityMatch
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]domain.FacilityMatch)}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]domain.FacilityMatch, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.entries[key]
	return m, ok, nil
}

func (c *memoryCache) Set(_ context.Context, key string, matches []domain.FacilityMatch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = matches
	return nil
}

func newLocator(t *testing.T, model prompt.Model, cache Cache) *Locator {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	return New(NewModelMatcher(model, cat), cat, cache, zap.NewNop())
}

const knhResponse = `{"facilities":[
 {"name":"Kenyatta National Hospital","address":"Hospital Road, Nairobi","distance":"approx. 2 km","availability":"Low"},
 {"name":"Imaginary Clinic","address":"Nowhere","distance":"1 km","availability":"High"},
 {"name":"kenyatta national hospital","address":"Hospital Road, Nairobi","distance":"2 km","availability":"High"},
 {"name":"Coptic Hospital","address":"Ngong Road, Nairobi","distance":"approx. 4 km","availability":"High"}
]}`

func TestFindFacilities_RestrictsToCatalog(t *testing.T) {
	model := prompttest.New().Returns("findFacilities", knhResponse)
	loc := newLocator(t, model, nil)

	matches, err := loc.FindFacilities(context.Background(), "KNH")
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "Kenyatta National Hospital", matches[0].Name)
	assert.Equal(t, domain.AvailabilityHigh, matches[0].Availability, "availability must come from the catalog")
	assert.Equal(t, "approx. 2 km", matches[0].Distance)
	assert.Equal(t, "Coptic Hospital", matches[1].Name)
	assert.Equal(t, domain.AvailabilityMedium, matches[1].Availability)

	rendered := model.Calls()[0].Prompt
	assert.Contains(t, rendered, `User's location query: "KNH"`)
	assert.Contains(t, rendered, "- Kenyatta National Hospital, Hospital Road, Nairobi. Availability: High")
	assert.Contains(t, rendered, "**Turkana:**")
}

func TestFindFacilities_RepeatedQueryIsStable(t *testing.T) {
	model := prompttest.New().Returns("findFacilities", knhResponse)
	loc := newLocator(t, model, newMemoryCache())

	first, err := loc.FindFacilities(context.Background(), "KNH")
	require.NoError(t, err)
	second, err := loc.FindFacilities(context.Background(), "  knh ")
	require.NoError(t, err)

	assert.ElementsMatch(t, first, second)
	assert.Equal(t, 1, model.CallCount("findFacilities"))
}

func TestFindFacilities_EmptyResultIsNotFailure(t *testing.T) {
	model := prompttest.New().Returns("findFacilities", `{"facilities":[]}`)
	matches, err := newLocator(t, model, nil).FindFacilities(context.Background(), "the moon")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFindFacilities_SchemaFailureDegradesToEmpty(t *testing.T) {
	model := prompttest.New().Returns("findFacilities", `{"facilities":[{"name":"KNH","availability":"Busy"}]}`)
	matches, err := newLocator(t, model, nil).FindFacilities(context.Background(), "KNH")
	require.NoError(t, err)
	assert.NotNil(t, matches)
	assert.Empty(t, matches)
}

func TestFindFacilities_ModelUnavailableIsSurfaced(t *testing.T) {
	model := prompttest.New().Fails("findFacilities", errors.New("503 from upstream"))
	_, err := newLocator(t, model, newMemoryCache()).FindFacilities(context.Background(), "Kisumu")
	assert.ErrorIs(t, err, prompt.ErrModelUnavailable)
}

func TestFindFacilities_EmptyQueryIsValidationError(t *testing.T) {
	model := prompttest.New()
	_, err := newLocator(t, model, nil).FindFacilities(context.Background(), "   ")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, model.CallCount("findFacilities"))
}

func TestFindVendors(t *testing.T) {
	loc := newLocator(t, prompttest.New(), nil)

	assert.Len(t, loc.FindVendors(""), 7)

	pharmacies := loc.FindVendors("PHARMACY")
	require.Len(t, pharmacies, 3)
	for _, v := range pharmacies {
		assert.Equal(t, domain.VendorPharmacy, v.Category)
	}

	nairobi := loc.FindVendors("nairobi")
	assert.Len(t, nairobi, 4)
	assert.Empty(t, loc.FindVendors("Lodwar"))
}

func TestResolveVendor(t *testing.T) {
	loc := newLocator(t, prompttest.New(), nil)

	got, ok := loc.ResolveVendor("Goodlife Pharmacy", "City Mall, Mombasa")
	require.True(t, ok)
	assert.Equal(t, "City Mall, Mombasa", got.Address)

	_, ok = loc.ResolveVendor("Goodlife Pharmacy", "Somewhere Else")
	assert.False(t, ok)
}

func TestCacheKey_NormalizesQuery(t *testing.T) {
	assert.Equal(t, CacheKey("v1", "Two  Rivers"), CacheKey("v1", " two rivers "))
	assert.NotEqual(t, CacheKey("v1", "Two Rivers"), CacheKey("v2", "Two Rivers"))
}
