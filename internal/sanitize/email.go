// Package sanitize normalizes and validates lead email addresses before they
// are persisted.
package sanitize

import (
	"regexp"
	"strings"
)

// emailPattern is intentionally permissive; the goal is rejecting obvious
// garbage, not full RFC 5322 validation.
var emailPattern = regexp.MustCompile(`^[a-z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?(?:\.[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?)+$`)

// disposableDomains are throwaway mail providers whose addresses are
// worthless as leads.
var disposableDomains = map[string]struct{}{
	"mailinator.com":     {},
	"guerrillamail.com":  {},
	"10minutemail.com":   {},
	"tempmail.com":       {},
	"throwawaymail.com":  {},
	"yopmail.com":        {},
	"sharklasers.com":    {},
	"trashmail.com":      {},
	"getnada.com":        {},
	"maildrop.cc":        {},
	"fakeinbox.com":      {},
	"dispostable.com":    {},
	"mintemail.com":      {},
	"mytemp.email":       {},
	"temp-mail.org":      {},
	"emailondeck.com":    {},
	"spamgourmet.com":    {},
	"mailnesia.com":      {},
	"burnermail.io":      {},
	"inboxkitten.com":    {},
}

// genericDomains are placeholder/example domains that providers return when
// no real address exists.
var genericDomains = map[string]struct{}{
	"example.com": {},
	"example.org": {},
	"example.net": {},
	"test.com":    {},
	"email.com":   {},
	"domain.com":  {},
}

// placeholderLocals are local parts providers substitute for locked or
// unavailable contacts.
var placeholderLocals = map[string]struct{}{
	"email_not_unlocked": {},
	"not_unlocked":       {},
	"locked":             {},
	"unavailable":        {},
	"noemail":            {},
	"no-reply":           {},
	"noreply":            {},
}

// Email case-folds and trims the address and returns it, or an empty string
// when the address is malformed, disposable, generic, or a provider
// placeholder. An empty result means "drop this record's email".
func Email(raw string) string {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return ""
	}
	if !emailPattern.MatchString(email) {
		return ""
	}

	at := strings.LastIndex(email, "@")
	local, dom := email[:at], email[at+1:]

	if _, ok := disposableDomains[dom]; ok {
		return ""
	}
	if _, ok := genericDomains[dom]; ok {
		return ""
	}
	if _, ok := placeholderLocals[local]; ok {
		return ""
	}
	return email
}

// Valid reports whether the address survives sanitization unchanged apart
// from case-folding.
func Valid(raw string) bool {
	return Email(raw) != ""
}
