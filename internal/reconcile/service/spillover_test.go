package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"

	submissiondomain "github.com/smallbiznis/incentiva/internal/submission/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&submissiondomain.Submission{}))
	return db
}

func newTestAllocator(t *testing.T, db *gorm.DB) *Allocator {
	t.Helper()
	return NewAllocator(AllocatorParams{DB: db, Log: zap.NewNop()})
}

func seedValidated(t *testing.T, db *gorm.DB, node *snowflake.Node, sellerID, campaignID, requirementID snowflake.ID, tier int, orderNumber string) {
	t.Helper()
	assert.NoError(t, db.Create(&submissiondomain.Submission{
		ID:                    node.Generate(),
		OrderNumber:           orderNumber,
		SellerID:              sellerID,
		CampaignID:            campaignID,
		RequirementID:         requirementID,
		DeclaredRequirementID: requirementID,
		Status:                submissiondomain.StatusValidated,
		ValidatedTierNumber:   &tier,
	}).Error)
}

func TestAllocateTier(t *testing.T) {
	a := &Allocator{}

	assert.Equal(t, 1, a.AllocateTier(0, 3))
	assert.Equal(t, 1, a.AllocateTier(2, 3))
	assert.Equal(t, 2, a.AllocateTier(3, 3))
	assert.Equal(t, 2, a.AllocateTier(5, 3))
	assert.Equal(t, 3, a.AllocateTier(6, 3))
	assert.Equal(t, 1, a.AllocateTier(10, 0))
}

func TestAllocate_SpillsToNextTier(t *testing.T) {
	db := newTestDB(t)
	node, _ := snowflake.NewNode(1)
	a := newTestAllocator(t, db)

	ruleSet, frames, _, tier2Frames := testRuleSetForReassign(t)
	sellerID := node.Generate()
	campaignID := ruleSet.Campaign.ID

	// Tier 1 frames slot is full (target 3); the next validated unit of the
	// same logical slot belongs to tier 2, even when it was declared against
	// the tier 1 card.
	seedValidated(t, db, node, sellerID, campaignID, frames.ID, 1, "ORD-1")
	seedValidated(t, db, node, sellerID, campaignID, frames.ID, 1, "ORD-2")
	seedValidated(t, db, node, sellerID, campaignID, frames.ID, 1, "ORD-3")

	tier, err := a.Allocate(context.Background(), nil, ruleSet, frames, sellerID, 0, 12)
	assert.NoError(t, err)
	assert.Equal(t, 2, tier)

	// Counting is slot scoped: units validated under the tier 2 requirement
	// of the same slot count toward the running total.
	seedValidated(t, db, node, sellerID, campaignID, tier2Frames.ID, 2, "ORD-4")
	count, err := a.CountValidatedForSlot(context.Background(), nil, sellerID, campaignID, ruleSet.RelatedRequirementIDs(frames.SlotOrder))
	assert.NoError(t, err)
	assert.Equal(t, int64(4), count)
}

func TestAllocate_PerSellerIsolation(t *testing.T) {
	db := newTestDB(t)
	node, _ := snowflake.NewNode(1)
	a := newTestAllocator(t, db)

	ruleSet, frames, _, _ := testRuleSetForReassign(t)
	sellerA := node.Generate()
	sellerB := node.Generate()

	seedValidated(t, db, node, sellerA, ruleSet.Campaign.ID, frames.ID, 1, "ORD-1")
	seedValidated(t, db, node, sellerA, ruleSet.Campaign.ID, frames.ID, 1, "ORD-2")
	seedValidated(t, db, node, sellerA, ruleSet.Campaign.ID, frames.ID, 1, "ORD-3")

	tier, err := a.Allocate(context.Background(), nil, ruleSet, frames, sellerB, 0, 12)
	assert.NoError(t, err)
	assert.Equal(t, 1, tier)
}

func TestAllocate_OverlayCountsSimulatedUnits(t *testing.T) {
	db := newTestDB(t)
	node, _ := snowflake.NewNode(1)
	a := newTestAllocator(t, db)

	ruleSet, frames, _, _ := testRuleSetForReassign(t)
	sellerID := node.Generate()

	seedValidated(t, db, node, sellerID, ruleSet.Campaign.ID, frames.ID, 1, "ORD-1")
	seedValidated(t, db, node, sellerID, ruleSet.Campaign.ID, frames.ID, 1, "ORD-2")

	// Two persisted plus one simulated earlier in the pass fills tier 1.
	tier, err := a.Allocate(context.Background(), nil, ruleSet, frames, sellerID, 1, 12)
	assert.NoError(t, err)
	assert.Equal(t, 2, tier)
}

func TestAllocate_TierCapacityReached(t *testing.T) {
	db := newTestDB(t)
	node, _ := snowflake.NewNode(1)
	a := newTestAllocator(t, db)

	ruleSet, frames, _, _ := testRuleSetForReassign(t)
	sellerID := node.Generate()

	for i := 0; i < 6; i++ {
		seedValidated(t, db, node, sellerID, ruleSet.Campaign.ID, frames.ID, i/3+1, "ORD-"+string(rune('A'+i)))
	}

	// Tier 3 has no reward row configured.
	_, err := a.Allocate(context.Background(), nil, ruleSet, frames, sellerID, 0, 12)
	assert.ErrorIs(t, err, ErrTierCapacityReached)

	// A configured tier beyond the global ceiling is also rejected.
	_, err = a.Allocate(context.Background(), nil, ruleSet, frames, sellerID, 0, 1)
	assert.ErrorIs(t, err, ErrTierCapacityReached)
}
