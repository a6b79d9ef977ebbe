// Package provider defines the lead-data provider boundary: the search
// contract, error classification, and a lazy page iterator the runner
// consumes with backpressure.
package provider

import (
	"context"

	"github.com/leadforge/pipeline/internal/domain"
)

// Record is one raw contact returned by the provider, before sanitization
// and deduplication.
type Record struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"organization_name"`
	Title     string `json:"title"`
	Location  string `json:"location"`
}

// Filters is the search configuration sent with every page request.
type Filters struct {
	Titles        []string `json:"person_titles,omitempty"`
	Locations     []string `json:"person_locations,omitempty"`
	Keywords      []string `json:"q_keywords,omitempty"`
	DomainFilters []string `json:"organization_domains,omitempty"`
}

// Page is one page of search results.
type Page struct {
	Records []Record
	HasMore bool
}

// Searcher is the paginated lead-search contract. Implementations translate
// transport failures into the domain error taxonomy so the runner can
// classify them with errors.Is.
type Searcher interface {
	SearchLeads(ctx context.Context, filters Filters, page, perPage int) (*Page, error)
}

// FiltersFromCampaign maps a campaign's saved search onto provider filters.
func FiltersFromCampaign(c *domain.Campaign) Filters {
	return Filters{
		Titles:        c.Titles,
		Locations:     c.Locations,
		Keywords:      c.Keywords,
		DomainFilters: c.DomainFilters,
	}
}
