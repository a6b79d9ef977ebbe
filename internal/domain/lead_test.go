package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLeadSheetRow(t *testing.T) {
	l := &Lead{
		Email:       "jane@realcorp.io",
		FirstName:   "Jane",
		LastName:    "Doe",
		Company:     "RealCorp",
		Title:       "VP Sales",
		Location:    "Berlin",
		EmailStatus: "unverified",
	}

	assert.Equal(t, []string{
		"jane@realcorp.io", "Jane", "Doe", "RealCorp", "VP Sales", "Berlin", "unverified",
	}, l.SheetRow())
}
