package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/leadforge/pipeline/internal/domain"
)

// campaignSelectList is the column list for SELECT on campaigns (single
// source for schema changes).
const campaignSelectList = `id, user_id, name, titles, locations, keywords, domain_filters,
			max_leads, page_size, search_mode, sheet_id, is_active, created_at, updated_at`

// CampaignRepository manages campaign rows.
type CampaignRepository struct {
	db *sqlx.DB
}

// NewCampaignRepository creates a new repository.
func NewCampaignRepository(db *sqlx.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create inserts a campaign and fills in its generated id.
func (r *CampaignRepository) Create(ctx context.Context, c *domain.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	query := `
		INSERT INTO campaigns (id, user_id, name, titles, locations, keywords, domain_filters,
			max_leads, page_size, search_mode, sheet_id, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())`

	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.UserID, c.Name,
		pq.StringArray(c.Titles), pq.StringArray(c.Locations),
		pq.StringArray(c.Keywords), pq.StringArray(c.DomainFilters),
		c.MaxLeads, c.PageSize, c.SearchMode, c.SheetID, c.IsActive,
	)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

// GetByID retrieves a single campaign.
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	query := `SELECT ` + campaignSelectList + ` FROM campaigns WHERE id = $1`

	var c domain.Campaign
	var titles, locations, keywords, domains pq.StringArray

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.UserID, &c.Name, &titles, &locations, &keywords, &domains,
		&c.MaxLeads, &c.PageSize, &c.SearchMode, &c.SheetID, &c.IsActive,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}

	c.Titles = titles
	c.Locations = locations
	c.Keywords = keywords
	c.DomainFilters = domains
	return &c, nil
}

// SetActive toggles the pause flag. Returns true when the flag actually
// changed, false when the campaign was already in the requested state, which
// makes pause idempotent.
func (r *CampaignRepository) SetActive(ctx context.Context, id string, active bool) (bool, error) {
	query := `
		UPDATE campaigns
		SET is_active = $2, updated_at = NOW()
		WHERE id = $1 AND is_active <> $2`

	result, err := r.db.ExecContext(ctx, query, id, active)
	if err != nil {
		return false, fmt.Errorf("set campaign active: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get affected rows: %w", err)
	}
	return rows > 0, nil
}

// IsActive reports the current pause flag. The runner checks this at each
// page boundary to observe cancellation mid-run.
func (r *CampaignRepository) IsActive(ctx context.Context, id string) (bool, error) {
	var active bool
	err := r.db.QueryRowContext(ctx, `SELECT is_active FROM campaigns WHERE id = $1`, id).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, domain.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("check campaign active: %w", err)
	}
	return active, nil
}

// Delete removes a campaign. Jobs, attempts, and leads cascade via foreign
// keys.
func (r *CampaignRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM campaigns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get affected rows: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
