package locator

import (
	"context"
	"strings"

	"github.com/herodrop/rewards-service/internal/catalog"
	"github.com/herodrop/rewards-service/internal/domain"
	"github.com/herodrop/rewards-service/internal/prompt"
	"google.golang.org/genai"
)

// LocationMatcher ranks catalog facilities against a free-text query.
type LocationMatcher interface {
	Match(ctx context.Context, query string) ([]domain.FacilityMatch, error)
}

const findFacilitiesText = `You are an intelligent assistant for the HeroDrop+ blood donation platform. Your task is to find and rank donation facilities based on a user's location query.

You must interpret informal location names, slang, and typos. For example, "KNH" should be matched to "Kenyatta National Hospital". A query like "town" in Nairobi should match facilities in the central business district.

Here is the list of available facilities you can match against across all 47 counties of Kenya. This list includes both public and private hospitals:
{{range .Counties}}
**{{.Name}}:**
{{- range .Facilities}}
- {{.Name}}{{if .Address}}, {{.Address}}{{end}}. Availability: {{.Availability}}
{{- end}}
{{end}}
User's location query: "{{.LocationQuery}}"

Based on the query, return a ranked list of the most relevant facilities from the list above. For each facility, provide its official name, full address, a reasonable estimated distance in a string format (e.g., "approx. 5 km"), and its current availability status. If no facilities match, return an empty list.`

type findFacilitiesInput struct {
	LocationQuery string
	Counties      []catalog.County
}

func (in findFacilitiesInput) Validate() error {
	if strings.TrimSpace(in.LocationQuery) == "" {
		return &domain.FieldError{Field: "q", Message: "location query is required"}
	}
	return nil
}

type findFacilitiesOutput struct {
	Facilities []domain.FacilityMatch `json:"facilities"`
}

var findFacilitiesPrompt = prompt.Must[findFacilitiesInput, findFacilitiesOutput](
	"findFacilities",
	findFacilitiesText,
	prompt.Object(map[string]*genai.Schema{
		"facilities": prompt.Array("A ranked list of matching donation facilities.", prompt.Object(map[string]*genai.Schema{
			"name":         prompt.String("The name of the donation facility."),
			"address":      prompt.String("The full address of the facility."),
			"distance":     prompt.String("A reasonable estimate of the distance from the user's query location, in kilometers (e.g., \"5 km\")."),
			"availability": prompt.Enum("The current availability for booking appointments at this facility.", "High", "Medium", "Low"),
		}, "name", "address", "distance", "availability")),
	}, "facilities"),
)

// ModelMatcher asks the language model to match a query against the catalog.
// Names the model invents are dropped and availability always comes from the
// catalog entry.
type ModelMatcher struct {
	model   prompt.Model
	catalog *catalog.Catalog
}

func NewModelMatcher(model prompt.Model, cat *catalog.Catalog) *ModelMatcher {
	return &ModelMatcher{model: model, catalog: cat}
}

func (m *ModelMatcher) Match(ctx context.Context, query string) ([]domain.FacilityMatch, error) {
	out, err := findFacilitiesPrompt.Invoke(ctx, m.model, findFacilitiesInput{
		LocationQuery: strings.TrimSpace(query),
		Counties:      m.catalog.Counties(),
	})
	if err != nil {
		return nil, err
	}
	return restrictToCatalog(m.catalog, out.Facilities), nil
}

func restrictToCatalog(cat *catalog.Catalog, candidates []domain.FacilityMatch) []domain.FacilityMatch {
	matches := make([]domain.FacilityMatch, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		f, ok := cat.LookupFacility(c.Name, c.Address)
		if !ok {
			continue
		}
		key := catalog.Normalize(f.Name) + "|" + catalog.Normalize(f.Address)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		matches = append(matches, domain.FacilityMatch{
			Name:         f.Name,
			Address:      f.Address,
			Distance:     strings.TrimSpace(c.Distance),
			Availability: f.Availability,
		})
	}
	return matches
}
