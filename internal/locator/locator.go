/**
 * @description
 * Facility and vendor lookup. Facilities are matched by a LocationMatcher
 * (normally the language model); vendors are filtered locally.
 *
 * @notes
 * - An empty match list is a valid answer, not a failure.
 * - A model answer that fails schema validation degrades to an empty list.
 *   Transport failures are returned so the caller can tell the user.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: optional result cache.
 * - go.uber.org/zap: structured logging.
 */

package locator

import (
	"context"
	"errors"
	"strings"

	"github.com/herodrop/rewards-service/internal/catalog"
	"github.com/herodrop/rewards-service/internal/domain"
	"github.com/herodrop/rewards-service/internal/prompt"
	"go.uber.org/zap"
)

// Locator serves facility and vendor searches.
type Locator struct {
	matcher LocationMatcher
	catalog *catalog.Catalog
	cache   Cache
	logger  *zap.Logger
}

// New builds a Locator. cache may be nil.
func New(matcher LocationMatcher, cat *catalog.Catalog, cache Cache, logger *zap.Logger) *Locator {
	return &Locator{
		matcher: matcher,
		catalog: cat,
		cache:   cache,
		logger:  logger.With(zap.String("component", "locator")),
	}
}

// FindFacilities returns catalog facilities relevant to query, best first.
func (l *Locator) FindFacilities(ctx context.Context, query string) ([]domain.FacilityMatch, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &domain.FieldError{Field: "q", Message: "location query is required"}
	}

	key := CacheKey(l.catalog.Version(), query)
	if l.cache != nil {
		cached, ok, err := l.cache.Get(ctx, key)
		if err != nil {
			l.logger.Warn("facility cache read failed", zap.Error(err))
		} else if ok {
			return cached, nil
		}
	}

	matches, err := l.matcher.Match(ctx, query)
	if err != nil {
		if errors.Is(err, prompt.ErrSchemaValidation) {
			l.logger.Warn("facility match unusable; returning no matches", zap.String("reason", "schema_validation"), zap.Error(err))
			return []domain.FacilityMatch{}, nil
		}
		return nil, err
	}

	if l.cache != nil {
		if err := l.cache.Set(ctx, key, matches); err != nil {
			l.logger.Warn("facility cache write failed", zap.Error(err))
		}
	}
	return matches, nil
}

// FindVendors filters partner vendors by a case-insensitive substring of their
// name, address or category. An empty query lists every vendor.
func (l *Locator) FindVendors(query string) []domain.Vendor {
	vendors := l.catalog.Vendors()
	out := make([]domain.Vendor, 0, len(vendors))
	for _, v := range vendors {
		if v.Matches(query) {
			out = append(out, v)
		}
	}
	return out
}

// ResolveFacility checks that a selected facility exists in the catalog.
func (l *Locator) ResolveFacility(name, address string) (domain.Location, bool) {
	f, ok := l.catalog.LookupFacility(name, address)
	if !ok {
		return domain.Location{}, false
	}
	return domain.Location{Name: f.Name, Address: f.Address}, true
}

// ResolveVendor checks that a selected vendor exists in the catalog.
func (l *Locator) ResolveVendor(name, address string) (domain.Location, bool) {
	n, a := catalog.Normalize(name), catalog.Normalize(address)
	var fallback *domain.Vendor
	for _, v := range l.catalog.Vendors() {
		if catalog.Normalize(v.Name) != n {
			continue
		}
		if catalog.Normalize(v.Address) == a {
			return domain.Location{Name: v.Name, Address: v.Address}, true
		}
		if fallback == nil {
			v := v
			fallback = &v
		}
	}
	if fallback == nil || a != "" {
		return domain.Location{}, false
	}
	return domain.Location{Name: fallback.Name, Address: fallback.Address}, true
}
