package domain

import "strings"

// Availability is the appointment availability tier of a facility.
type Availability string

const (
	AvailabilityHigh   Availability = "High"
	AvailabilityMedium Availability = "Medium"
	AvailabilityLow    Availability = "Low"
)

// Valid reports whether a is one of the three known tiers.
func (a Availability) Valid() bool {
	switch a {
	case AvailabilityHigh, AvailabilityMedium, AvailabilityLow:
		return true
	}
	return false
}

// Facility is a hospital or clinic in the reference catalog.
type Facility struct {
	Name         string       `json:"name" yaml:"name"`
	Address      string       `json:"address" yaml:"address"`
	County       string       `json:"county" yaml:"-"`
	Availability Availability `json:"availability" yaml:"availability"`
}

// FacilityMatch is a catalog facility ranked against a location query.
type FacilityMatch struct {
	Name         string       `json:"name"`
	Address      string       `json:"address"`
	Distance     string       `json:"distance"`
	Availability Availability `json:"availability"`
}

// VendorCategory classifies partner stores.
type VendorCategory string

const (
	VendorSupermarket VendorCategory = "Supermarket"
	VendorPharmacy    VendorCategory = "Pharmacy"
)

// Vendor is a partner store where product redemptions are collected.
type Vendor struct {
	Name     string         `json:"name" yaml:"name"`
	Address  string         `json:"address" yaml:"address"`
	Category VendorCategory `json:"category" yaml:"category"`
}

// Matches reports whether the vendor's name, address or category contains q, ignoring case.
func (v Vendor) Matches(q string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(v.Name), q) ||
		strings.Contains(strings.ToLower(v.Address), q) ||
		strings.Contains(strings.ToLower(string(v.Category)), q)
}

// ItemCategory distinguishes services from physical products.
type ItemCategory string

const (
	ItemService ItemCategory = "service"
	ItemProduct ItemCategory = "product"
)

// RedemptionItem is a static catalog entry that tokens can be exchanged for.
type RedemptionItem struct {
	ID              string       `json:"id" yaml:"id"`
	Title           string       `json:"title" yaml:"title"`
	Description     string       `json:"description" yaml:"description"`
	Cost            int64        `json:"cost" yaml:"cost"`
	Category        ItemCategory `json:"category" yaml:"category"`
	RedemptionValue string       `json:"redemption_value" yaml:"redemption_value"`
}

// Location is where a redemption is collected: a facility for services, a vendor for products.
type Location struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func (l Location) String() string {
	if l.Address == "" {
		return l.Name
	}
	return l.Name + ", " + l.Address
}
