package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	organizationdomain "github.com/smallbiznis/incentiva/internal/organization/domain"
	reconciledomain "github.com/smallbiznis/incentiva/internal/reconcile/domain"
)

func TestMatchOrganization_Direct(t *testing.T) {
	m := NewMatcher()
	org := &organizationdomain.Organization{TaxID: "12345678000100"}

	match := m.MatchOrganization("12345678000100", org)
	assert.True(t, match.Matched)
	assert.Equal(t, reconciledomain.ViaDirect, match.Via)
}

func TestMatchOrganization_NormalizesPunctuation(t *testing.T) {
	m := NewMatcher()
	org := &organizationdomain.Organization{TaxID: "12.345.678/0001-00"}

	match := m.MatchOrganization("12345678000100", org)
	assert.True(t, match.Matched)
	assert.Equal(t, reconciledomain.ViaDirect, match.Via)
}

func TestMatchOrganization_Parent(t *testing.T) {
	m := NewMatcher()
	org := &organizationdomain.Organization{
		TaxID:  "12345678000282",
		Parent: &organizationdomain.Organization{TaxID: "12345678000100"},
	}

	match := m.MatchOrganization("12345678000100", org)
	assert.True(t, match.Matched)
	assert.Equal(t, reconciledomain.ViaParent, match.Via)
}

func TestMatchOrganization_Mismatch(t *testing.T) {
	m := NewMatcher()
	org := &organizationdomain.Organization{TaxID: "12345678000100"}

	match := m.MatchOrganization("99999999000199", org)
	assert.False(t, match.Matched)
	assert.Equal(t, reconciledomain.ViaNone, match.Via)
	assert.Equal(t, "organization mismatch", match.Reason)
}

func TestMatchOrganization_InvalidIdentifier(t *testing.T) {
	m := NewMatcher()
	org := &organizationdomain.Organization{TaxID: "12345678000100"}

	match := m.MatchOrganization("1234", org)
	assert.False(t, match.Matched)
	assert.Contains(t, match.Reason, "invalid organization identifier")
}

func TestMatchOrganization_DigitlessIdentifierIsInvalid(t *testing.T) {
	m := NewMatcher()
	org := &organizationdomain.Organization{TaxID: "12345678000100"}

	match := m.MatchOrganization("N/A", org)
	assert.False(t, match.Matched)
	assert.Equal(t, reconciledomain.ViaNone, match.Via)
	assert.Equal(t, "invalid organization identifier: N/A", match.Reason)
}

func TestMatchOrganization_MissingIdentifier(t *testing.T) {
	m := NewMatcher()
	org := &organizationdomain.Organization{TaxID: "12345678000100"}

	match := m.MatchOrganization("  ", org)
	assert.False(t, match.Matched)
	assert.Equal(t, "external record has no organization identifier", match.Reason)
}

func TestMatchOrganization_NoOrganization(t *testing.T) {
	m := NewMatcher()

	match := m.MatchOrganization("12345678000100", nil)
	assert.False(t, match.Matched)
	assert.Equal(t, "seller has no organization", match.Reason)
}
