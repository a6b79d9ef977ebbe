package domain

import (
	"fmt"
	"time"
)

// SearchMode controls how aggressively the runner pages through provider
// results.
type SearchMode string

const (
	// SearchModeStandard pages at the configured page size until maxLeads or
	// provider exhaustion.
	SearchModeStandard SearchMode = "standard"

	// SearchModeCreditEfficient trades completeness for reduced provider API
	// cost: smaller pages, shallower max depth.
	SearchModeCreditEfficient SearchMode = "credit_efficient"
)

// Campaign is a saved lead-search configuration owned by a user. Immutable
// except for the pause toggle and light field edits.
type Campaign struct {
	ID            string     `db:"id"             json:"id"`
	UserID        string     `db:"user_id"        json:"user_id"`
	Name          string     `db:"name"           json:"name"`
	Titles        []string   `db:"titles"         json:"titles"`
	Locations     []string   `db:"locations"      json:"locations"`
	Keywords      []string   `db:"keywords"       json:"keywords"`
	DomainFilters []string   `db:"domain_filters" json:"domain_filters"`
	MaxLeads      int        `db:"max_leads"      json:"max_leads"`
	PageSize      int        `db:"page_size"      json:"page_size"`
	SearchMode    SearchMode `db:"search_mode"    json:"search_mode"`
	SheetID       string     `db:"sheet_id"       json:"sheet_id"`
	IsActive      bool       `db:"is_active"      json:"is_active"`
	CreatedAt     time.Time  `db:"created_at"     json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"     json:"updated_at"`
}

const (
	defaultMaxLeads = 500
	defaultPageSize = 25

	// creditEfficientPageSize and creditEfficientMaxDepth bound the
	// credit-efficient search mode. Heuristic thresholds, not hard laws.
	creditEfficientPageSize = 10
	creditEfficientMaxDepth = 5
)

// NewCampaign creates a campaign with validation and defaults applied.
func NewCampaign(userID, name, sheetID string) (*Campaign, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidCampaign)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidCampaign)
	}

	now := time.Now().UTC()
	return &Campaign{
		UserID:        userID,
		Name:          name,
		SheetID:       sheetID,
		Titles:        []string{},
		Locations:     []string{},
		Keywords:      []string{},
		DomainFilters: []string{},
		MaxLeads:      defaultMaxLeads,
		PageSize:      defaultPageSize,
		SearchMode:    SearchModeStandard,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// EffectivePageSize returns the page size the runner should request, shrunk
// in credit-efficient mode.
func (c *Campaign) EffectivePageSize() int {
	size := c.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	if c.SearchMode == SearchModeCreditEfficient && size > creditEfficientPageSize {
		size = creditEfficientPageSize
	}
	return size
}

// MaxDepth returns the maximum number of pages worth fetching, or 0 for
// unbounded. Credit-efficient mode stops once depth is no longer worth the
// provider cost.
func (c *Campaign) MaxDepth() int {
	if c.SearchMode == SearchModeCreditEfficient {
		return creditEfficientMaxDepth
	}
	return 0
}
