/**
 * @description
 * Static reference catalog of donation facilities, partner vendors and
 * redemption items, embedded into the binary as YAML.
 *
 * @notes
 * - The catalog is read-only. Matchers rank and filter it but never mutate it.
 * - Version is derived from the YAML bytes so caches keyed on it are invalidated
 *   whenever the catalog changes.
 *
 * @dependencies
 * - gopkg.in/yaml.v3: catalog decoding.
 */

package catalog

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/herodrop/rewards-service/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embedded []byte

// County groups facilities by administrative region.
type County struct {
	Name       string            `yaml:"name"`
	Facilities []domain.Facility `yaml:"facilities"`
}

type document struct {
	Counties []County                `yaml:"counties"`
	Vendors  []domain.Vendor         `yaml:"vendors"`
	Items    []domain.RedemptionItem `yaml:"items"`
}

// Catalog is an immutable, indexed view over the reference data.
type Catalog struct {
	version    string
	counties   []County
	facilities []domain.Facility
	vendors    []domain.Vendor
	items      []domain.RedemptionItem

	byKey  map[string]int
	byName map[string][]int
	itemID map[string]int
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
	defaultErr  error
)

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCat, defaultErr = Parse(embedded)
	})
	return defaultCat, defaultErr
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	sum := sha256.Sum256(data)
	c := &Catalog{
		version:  hex.EncodeToString(sum[:])[:16],
		counties: doc.Counties,
		vendors:  doc.Vendors,
		items:    doc.Items,
		byKey:    make(map[string]int),
		byName:   make(map[string][]int),
		itemID:   make(map[string]int),
	}

	for _, county := range doc.Counties {
		for _, f := range county.Facilities {
			if strings.TrimSpace(f.Name) == "" {
				return nil, fmt.Errorf("county %s: facility with empty name", county.Name)
			}
			if !f.Availability.Valid() {
				return nil, fmt.Errorf("facility %s: invalid availability %q", f.Name, f.Availability)
			}
			f.County = county.Name
			key := facilityKey(f.Name, f.Address)
			if _, dup := c.byKey[key]; dup {
				return nil, fmt.Errorf("facility %s (%s) listed twice", f.Name, f.Address)
			}
			idx := len(c.facilities)
			c.facilities = append(c.facilities, f)
			c.byKey[key] = idx
			name := Normalize(f.Name)
			c.byName[name] = append(c.byName[name], idx)
		}
	}

	for i, item := range doc.Items {
		if item.ID == "" {
			return nil, fmt.Errorf("item %q has no id", item.Title)
		}
		if item.Cost <= 0 {
			return nil, fmt.Errorf("item %s: cost must be positive", item.ID)
		}
		if item.Category != domain.ItemService && item.Category != domain.ItemProduct {
			return nil, fmt.Errorf("item %s: invalid category %q", item.ID, item.Category)
		}
		if _, dup := c.itemID[item.ID]; dup {
			return nil, fmt.Errorf("item %s listed twice", item.ID)
		}
		c.itemID[item.ID] = i
	}

	return c, nil
}

// Version identifies the catalog contents.
func (c *Catalog) Version() string { return c.version }

// Counties returns the facilities grouped by county.
func (c *Catalog) Counties() []County { return c.counties }

// Facilities returns every facility in catalog order.
func (c *Catalog) Facilities() []domain.Facility { return c.facilities }

// Vendors returns every partner vendor in catalog order.
func (c *Catalog) Vendors() []domain.Vendor { return c.vendors }

// Items returns the redemption items in catalog order.
func (c *Catalog) Items() []domain.RedemptionItem { return c.items }

// Item looks up a redemption item by id.
func (c *Catalog) Item(id string) (domain.RedemptionItem, bool) {
	i, ok := c.itemID[id]
	if !ok {
		return domain.RedemptionItem{}, false
	}
	return c.items[i], true
}

// LookupFacility resolves a facility by name, using address to disambiguate
// facilities that share a name. It reports false when no facility has the name.
func (c *Catalog) LookupFacility(name, address string) (domain.Facility, bool) {
	if i, ok := c.byKey[facilityKey(name, address)]; ok {
		return c.facilities[i], true
	}
	candidates := c.byName[Normalize(name)]
	if len(candidates) == 0 {
		return domain.Facility{}, false
	}
	addr := Normalize(address)
	for _, i := range candidates {
		known := Normalize(c.facilities[i].Address)
		if addr != "" && known != "" && (strings.Contains(addr, known) || strings.Contains(known, addr)) {
			return c.facilities[i], true
		}
	}
	return c.facilities[candidates[0]], true
}

// Normalize lowercases s and collapses runs of whitespace.
func Normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func facilityKey(name, address string) string {
	return Normalize(name) + "|" + Normalize(address)
}
