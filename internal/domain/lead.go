package domain

import "time"

// Lead is a deduplicated, validated contact record belonging to a campaign.
// Created by the runner as provider pages are processed; only suppression and
// validity flags are mutated afterwards, by downstream processes.
type Lead struct {
	ID          string    `db:"id"           json:"id"`
	CampaignID  string    `db:"campaign_id"  json:"campaign_id"`
	UserID      string    `db:"user_id"      json:"user_id"`
	Email       string    `db:"email"        json:"email"`
	FirstName   string    `db:"first_name"   json:"first_name"`
	LastName    string    `db:"last_name"    json:"last_name"`
	Company     string    `db:"company"      json:"company"`
	Title       string    `db:"title"        json:"title"`
	Location    string    `db:"location"     json:"location"`
	EmailStatus string    `db:"email_status" json:"email_status"`
	Suppressed  bool      `db:"suppressed"   json:"suppressed"`
	CreatedAt   time.Time `db:"created_at"   json:"created_at"`
}

// SheetRow renders the lead as a spreadsheet row in the column order the
// external sheet expects.
func (l *Lead) SheetRow() []string {
	return []string{
		l.Email,
		l.FirstName,
		l.LastName,
		l.Company,
		l.Title,
		l.Location,
		l.EmailStatus,
	}
}
