package service

import (
	"strings"

	organizationdomain "github.com/smallbiznis/incentiva/internal/organization/domain"
	reconciledomain "github.com/smallbiznis/incentiva/internal/reconcile/domain"
)

// taxIDLength is the digit count of a well-formed organization tax ID.
const taxIDLength = 14

// Match is the outcome of an organization identity check.
type Match struct {
	Matched bool
	Via     reconciledomain.MatchVia
	Reason  string
}

// Matcher resolves whether an external record's organization identifier
// belongs to the seller's organization or its parent. Pure, no I/O.
type Matcher struct{}

func NewMatcher() *Matcher { return &Matcher{} }

// MatchOrganization normalizes both identifiers to digits before comparing.
// A malformed external identifier is a hard mismatch with its own reason so
// callers can surface "invalid identifier" instead of "wrong organization".
func (m *Matcher) MatchOrganization(externalOrgID string, org *organizationdomain.Organization) Match {
	if org == nil {
		return Match{Via: reconciledomain.ViaNone, Reason: "seller has no organization"}
	}

	raw := strings.TrimSpace(externalOrgID)
	if raw == "" {
		return Match{Via: reconciledomain.ViaNone, Reason: "external record has no organization identifier"}
	}

	// A value with no digits at all ("N/A", "-") is present but unusable,
	// which is a different failure than a missing identifier.
	normalized := normalizeTaxID(externalOrgID)
	if len(normalized) != taxIDLength {
		return Match{Via: reconciledomain.ViaNone, Reason: "invalid organization identifier: " + raw}
	}

	if normalized == normalizeTaxID(org.TaxID) {
		return Match{Matched: true, Via: reconciledomain.ViaDirect}
	}
	if org.Parent != nil && normalized == normalizeTaxID(org.Parent.TaxID) {
		return Match{Matched: true, Via: reconciledomain.ViaParent}
	}

	return Match{Via: reconciledomain.ViaNone, Reason: "organization mismatch"}
}

func normalizeTaxID(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
