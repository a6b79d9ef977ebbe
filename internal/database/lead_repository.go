package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/leadforge/pipeline/internal/domain"
)

// LeadRepository manages lead rows.
type LeadRepository struct {
	db *sqlx.DB
}

// NewLeadRepository creates a new repository.
func NewLeadRepository(db *sqlx.DB) *LeadRepository {
	return &LeadRepository{db: db}
}

// ExistingEmails returns the set of emails already stored for a campaign,
// used by the runner to skip duplicates across pages and runs. Bounded by
// the campaign's maxLeads, not total lead volume.
func (r *LeadRepository) ExistingEmails(ctx context.Context, campaignID string) (map[string]struct{}, error) {
	var emails []string
	err := r.db.SelectContext(ctx, &emails,
		`SELECT email FROM leads WHERE campaign_id = $1`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("existing emails: %w", err)
	}

	set := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		set[e] = struct{}{}
	}
	return set, nil
}

// InsertBatch inserts the surviving leads of one page in a single statement.
// ON CONFLICT DO NOTHING makes the write idempotent against a concurrent
// duplicate; the returned count reflects rows actually persisted.
func (r *LeadRepository) InsertBatch(ctx context.Context, leads []domain.Lead) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}

	const argsPerRow = 10
	placeholders := make([]string, 0, len(leads))
	args := make([]any, 0, len(leads)*argsPerRow)
	for i := range leads {
		l := &leads[i]
		if l.ID == "" {
			l.ID = uuid.NewString()
		}
		base := i * argsPerRow
		placeholders = append(placeholders, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, NOW())",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10,
		))
		args = append(args,
			l.ID, l.CampaignID, l.UserID, l.Email,
			l.FirstName, l.LastName, l.Company, l.Title, l.Location, l.EmailStatus,
		)
	}

	query := `
		INSERT INTO leads (id, campaign_id, user_id, email,
			first_name, last_name, company, title, location, email_status, created_at)
		VALUES ` + strings.Join(placeholders, ", ") + `
		ON CONFLICT (campaign_id, email) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert leads: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get affected rows: %w", err)
	}
	return int(inserted), nil
}

// CountForCampaign returns the live lead count for the status projection.
func (r *LeadRepository) CountForCampaign(ctx context.Context, campaignID string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM leads WHERE campaign_id = $1`, campaignID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count leads: %w", err)
	}
	return count, nil
}
