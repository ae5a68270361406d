package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	campaigndomain "github.com/smallbiznis/incentiva/internal/campaign/domain"
	submissiondomain "github.com/smallbiznis/incentiva/internal/submission/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrTierCapacityReached marks a validated unit that would land beyond the
// configured tier ceiling. It is a distinct rejection, not a silent drop.
var ErrTierCapacityReached = errors.New("tier_capacity_reached")

// Allocator computes which tier instance a newly validated unit belongs to.
// The validated count is always a fresh aggregate scoped by the related
// requirement IDs of the logical slot; callers must not feed it cached
// progress counters. Both the batch reconciler and the manual override path
// go through this type.
type Allocator struct {
	db  *gorm.DB
	log *zap.Logger
}

type AllocatorParams struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

func NewAllocator(p AllocatorParams) *Allocator {
	return &Allocator{
		db:  p.DB,
		log: p.Log.Named("reconcile.allocator"),
	}
}

// CountValidatedForSlot returns how many of the seller's submissions are
// already VALIDATED for any requirement sharing the logical slot. When tx
// is non-nil the count reads through it.
func (a *Allocator) CountValidatedForSlot(
	ctx context.Context,
	tx *gorm.DB,
	sellerID, campaignID snowflake.ID,
	relatedRequirementIDs []snowflake.ID,
) (int64, error) {
	if len(relatedRequirementIDs) == 0 {
		return 0, nil
	}

	conn := tx
	if conn == nil {
		conn = a.db
	}

	var count int64
	err := conn.WithContext(ctx).
		Model(&submissiondomain.Submission{}).
		Where("seller_id = ? AND campaign_id = ? AND status = ?",
			sellerID, campaignID, submissiondomain.StatusValidated).
		Where("requirement_id IN ?", relatedRequirementIDs).
		Count(&count).Error
	return count, err
}

// AllocateTier maps a prior validated count onto a tier number given the
// candidate tier's target quantity.
func (a *Allocator) AllocateTier(validatedCount int64, targetQuantity int) int {
	if targetQuantity <= 0 {
		return 1
	}
	return int(validatedCount/int64(targetQuantity)) + 1
}

// Allocate derives the tier for a new validated unit of the requirement's
// logical slot. overlay adds units decided earlier in the same simulated
// pass, so simulation and persisted runs agree; persisted runs pass zero
// because each prior unit is already committed. The ceiling check treats a
// tier without a configured reward row the same as one beyond maxTierCount.
func (a *Allocator) Allocate(
	ctx context.Context,
	tx *gorm.DB,
	ruleSet *campaigndomain.RuleSet,
	requirement *campaigndomain.Requirement,
	sellerID snowflake.ID,
	overlay int64,
	maxTierCount int,
) (int, error) {
	related := ruleSet.RelatedRequirementIDs(requirement.SlotOrder)
	count, err := a.CountValidatedForSlot(ctx, tx, sellerID, ruleSet.Campaign.ID, related)
	if err != nil {
		return 0, err
	}

	tier := a.AllocateTier(count+overlay, requirement.TargetQuantity)
	if tier > maxTierCount {
		return 0, ErrTierCapacityReached
	}
	if _, ok := ruleSet.Tiers[tier]; !ok {
		return 0, ErrTierCapacityReached
	}
	return tier, nil
}
