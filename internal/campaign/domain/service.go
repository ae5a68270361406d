package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// RuleSet is a campaign with its tiers and requirements resolved for one
// reconciliation run.
type RuleSet struct {
	Campaign     *Campaign
	Tiers        map[int]*Tier
	Requirements []*Requirement

	requirementsByID   map[snowflake.ID]*Requirement
	slotRequirementIDs map[int][]snowflake.ID
}

// NewRuleSet indexes the campaign's requirements by ID and by logical slot.
// The slot index (slotOrder -> related requirement IDs across all tiers) is
// built once per run and drives spillover counting.
func NewRuleSet(campaign *Campaign, tiers []*Tier, requirements []*Requirement) *RuleSet {
	rs := &RuleSet{
		Campaign:           campaign,
		Tiers:              make(map[int]*Tier, len(tiers)),
		Requirements:       requirements,
		requirementsByID:   make(map[snowflake.ID]*Requirement, len(requirements)),
		slotRequirementIDs: make(map[int][]snowflake.ID),
	}
	for _, tier := range tiers {
		rs.Tiers[tier.TierNumber] = tier
	}
	for _, req := range requirements {
		rs.requirementsByID[req.ID] = req
		rs.slotRequirementIDs[req.SlotOrder] = append(rs.slotRequirementIDs[req.SlotOrder], req.ID)
	}
	return rs
}

// Requirement returns the requirement with the given ID, or nil.
func (rs *RuleSet) Requirement(id snowflake.ID) *Requirement {
	return rs.requirementsByID[id]
}

// RelatedRequirementIDs returns the IDs of every requirement sharing the
// logical slot, across all tiers.
func (rs *RuleSet) RelatedRequirementIDs(slotOrder int) []snowflake.ID {
	return rs.slotRequirementIDs[slotOrder]
}

// Siblings returns the other requirements of the same tier, ascending by
// slot order, excluding the given requirement.
func (rs *RuleSet) Siblings(failed *Requirement) []*Requirement {
	var siblings []*Requirement
	for _, req := range rs.Requirements {
		if req.TierNumber != failed.TierNumber || req.ID == failed.ID {
			continue
		}
		siblings = append(siblings, req)
	}
	for i := 1; i < len(siblings); i++ {
		for j := i; j > 0 && siblings[j-1].SlotOrder > siblings[j].SlotOrder; j-- {
			siblings[j-1], siblings[j] = siblings[j], siblings[j-1]
		}
	}
	return siblings
}

// TierRequirements returns the requirements belonging to the tier number.
func (rs *RuleSet) TierRequirements(tierNumber int) []*Requirement {
	var reqs []*Requirement
	for _, req := range rs.Requirements {
		if req.TierNumber == tierNumber {
			reqs = append(reqs, req)
		}
	}
	return reqs
}

type CreateCampaignRequest struct {
	Name                     string    `json:"name"`
	ManagerCommissionPercent string    `json:"manager_commission_percent"`
	StartAt                  time.Time `json:"start_at"`
	EndAt                    time.Time `json:"end_at"`
}

// Service exposes campaign lookup and rule-set resolution.
type Service interface {
	Create(ctx context.Context, req CreateCampaignRequest) (*Campaign, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Campaign, error)
	// ResolveRuleSet loads the campaign with tiers, requirements and
	// conditions and returns the indexed rule set for a reconciliation run.
	ResolveRuleSet(ctx context.Context, campaignID snowflake.ID) (*RuleSet, error)
	ListActive(ctx context.Context) ([]*Campaign, error)
}
