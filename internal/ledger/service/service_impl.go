package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/incentiva/internal/audit/domain"
	campaigndomain "github.com/smallbiznis/incentiva/internal/campaign/domain"
	ledgerdomain "github.com/smallbiznis/incentiva/internal/ledger/domain"
	notificationdomain "github.com/smallbiznis/incentiva/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/incentiva/internal/observability/metrics"
	organizationdomain "github.com/smallbiznis/incentiva/internal/organization/domain"
	submissiondomain "github.com/smallbiznis/incentiva/internal/submission/domain"
	"github.com/smallbiznis/incentiva/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Sink       notificationdomain.Sink
	AuditSvc   auditdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	sink       notificationdomain.Sink
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		sink:       p.Sink,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

// Settle applies the reward side effects of one validated submission. It
// must run inside the same transaction that flips the submission to
// VALIDATED. Completion is recomputed from persisted rows every time; the
// TierCompletion insert is the single idempotency gate, so two concurrent
// settlements of the same tier are resolved by the storage engine's unique
// constraint rather than an application-level check.
func (s *Service) Settle(
	ctx context.Context,
	tx *gorm.DB,
	submission *submissiondomain.Submission,
	ruleSet *campaigndomain.RuleSet,
	seller *organizationdomain.Seller,
) error {
	if tx == nil {
		return ledgerdomain.ErrNilTransaction
	}
	if submission == nil || submission.Status != submissiondomain.StatusValidated {
		return ledgerdomain.ErrInvalidSubmission
	}
	if submission.ValidatedTierNumber == nil {
		return ledgerdomain.ErrMissingTierNumber
	}

	tierNumber := *submission.ValidatedTierNumber
	tier, ok := ruleSet.Tiers[tierNumber]
	if !ok {
		return ledgerdomain.ErrUnknownTier
	}

	if err := s.sink.Notify(ctx, tx, notificationdomain.CreateNotificationRequest{
		BeneficiaryID: seller.ID,
		Kind:          notificationdomain.KindSubmissionAccepted,
		Message:       fmt.Sprintf("Order %s was validated for tier %d.", submission.OrderNumber, tierNumber),
		Metadata: map[string]any{
			"submission_id": submission.ID.String(),
			"campaign_id":   submission.CampaignID.String(),
			"tier_number":   tierNumber,
		},
	}); err != nil {
		return err
	}

	complete, err := s.tierComplete(ctx, tx, submission, ruleSet, tierNumber)
	if err != nil {
		return err
	}
	if !complete {
		return nil
	}

	outcome, err := s.tryAcquireTierLock(ctx, tx, seller.ID, submission.CampaignID, tierNumber)
	if err != nil {
		return err
	}
	if outcome == ledgerdomain.LockAlreadyHeld {
		s.log.Debug("tier already settled",
			zap.String("seller_id", seller.ID.String()),
			zap.String("campaign_id", submission.CampaignID.String()),
			zap.Int("tier_number", tierNumber),
		)
		return nil
	}

	if err := s.applyRewards(ctx, tx, submission, ruleSet, seller, tier); err != nil {
		return err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordTierCompletion(ctx, tierNumber)
	}
	// The audit row shares the transaction: a rolled-back settlement must
	// not leave a settlement trail behind.
	return s.auditSvc.AuditLog(ctx, tx, "ledger.tier_settled", "tier_completion",
		submission.ID.String(), map[string]any{
			"seller_id":   seller.ID.String(),
			"campaign_id": submission.CampaignID.String(),
			"tier_number": tierNumber,
		})
}

// tierComplete recomputes, from validated submissions only, whether every
// requirement of the tier meets its target quantity. The aggregate is read
// through tx so the submission being settled is visible.
func (s *Service) tierComplete(
	ctx context.Context,
	tx *gorm.DB,
	submission *submissiondomain.Submission,
	ruleSet *campaigndomain.RuleSet,
	tierNumber int,
) (bool, error) {
	for _, req := range ruleSet.TierRequirements(tierNumber) {
		relatedIDs := ruleSet.RelatedRequirementIDs(req.SlotOrder)

		var count int64
		err := tx.WithContext(ctx).
			Model(&submissiondomain.Submission{}).
			Where("seller_id = ? AND campaign_id = ? AND status = ? AND validated_tier_number = ?",
				submission.SellerID, submission.CampaignID, submissiondomain.StatusValidated, tierNumber).
			Where("requirement_id IN ?", relatedIDs).
			Count(&count).Error
		if err != nil {
			return false, err
		}
		if count < int64(req.TargetQuantity) {
			return false, nil
		}
	}
	return true, nil
}

// tryAcquireTierLock inserts the TierCompletion row, treating a conflict on
// the unique triple as AlreadyHeld. Any other error propagates and aborts
// the surrounding transaction.
func (s *Service) tryAcquireTierLock(
	ctx context.Context,
	tx *gorm.DB,
	sellerID, campaignID snowflake.ID,
	tierNumber int,
) (ledgerdomain.LockOutcome, error) {
	lock := &ledgerdomain.TierCompletion{
		ID:         s.genID.Generate(),
		SellerID:   sellerID,
		CampaignID: campaignID,
		TierNumber: tierNumber,
	}

	result := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "seller_id"},
			{Name: "campaign_id"},
			{Name: "tier_number"},
		},
		DoNothing: true,
	}).Create(lock)
	if result.Error != nil {
		if db.IsDuplicateKeyErr(result.Error) {
			return ledgerdomain.LockAlreadyHeld, nil
		}
		return ledgerdomain.LockAlreadyHeld, result.Error
	}
	if result.RowsAffected == 0 {
		return ledgerdomain.LockAlreadyHeld, nil
	}
	return ledgerdomain.LockAcquired, nil
}

func (s *Service) applyRewards(
	ctx context.Context,
	tx *gorm.DB,
	submission *submissiondomain.Submission,
	ruleSet *campaigndomain.RuleSet,
	seller *organizationdomain.Seller,
	tier *campaigndomain.Tier,
) error {
	if err := s.credit(ctx, tx, seller.ID, tier.PointAmount, tier.CoinAmount); err != nil {
		return err
	}

	sellerEntry := &ledgerdomain.LedgerEntry{
		ID:            s.genID.Generate(),
		BeneficiaryID: seller.ID,
		Kind:          ledgerdomain.KindSeller,
		CampaignID:    submission.CampaignID,
		TierNumber:    tier.TierNumber,
		PointAmount:   tier.PointAmount,
		CoinAmount:    tier.CoinAmount,
		Note:          fmt.Sprintf("tier %d completed", tier.TierNumber),
	}
	if err := tx.WithContext(ctx).Create(sellerEntry).Error; err != nil {
		return err
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordLedgerEntry(ctx, string(ledgerdomain.KindSeller))
	}

	commission := ruleSet.Campaign.ManagerCommissionPercent
	if seller.ManagerID != nil && commission.IsPositive() {
		points := commissionAmount(tier.PointAmount, commission)
		coins := commissionAmount(tier.CoinAmount, commission)

		if err := s.credit(ctx, tx, *seller.ManagerID, points, coins); err != nil {
			return err
		}

		managerEntry := &ledgerdomain.LedgerEntry{
			ID:            s.genID.Generate(),
			BeneficiaryID: *seller.ManagerID,
			Kind:          ledgerdomain.KindManager,
			CampaignID:    submission.CampaignID,
			TierNumber:    tier.TierNumber,
			PointAmount:   points,
			CoinAmount:    coins,
			Note:          fmt.Sprintf("commission on tier %d of seller %s", tier.TierNumber, seller.ID),
		}
		if err := tx.WithContext(ctx).Create(managerEntry).Error; err != nil {
			return err
		}
		if s.obsMetrics != nil {
			s.obsMetrics.RecordLedgerEntry(ctx, string(ledgerdomain.KindManager))
		}
	}

	return s.sink.Notify(ctx, tx, notificationdomain.CreateNotificationRequest{
		BeneficiaryID: seller.ID,
		Kind:          notificationdomain.KindTierCompleted,
		Message:       fmt.Sprintf("Tier %d of campaign %s is complete. Rewards were credited.", tier.TierNumber, ruleSet.Campaign.Name),
		Metadata: map[string]any{
			"campaign_id": submission.CampaignID.String(),
			"tier_number": tier.TierNumber,
		},
	})
}

func (s *Service) credit(ctx context.Context, tx *gorm.DB, beneficiaryID snowflake.ID, points, coins int64) error {
	return tx.WithContext(ctx).
		Model(&organizationdomain.Seller{}).
		Where("id = ?", beneficiaryID).
		Updates(map[string]any{
			"points_balance": gorm.Expr("points_balance + ?", points),
			"coins_balance":  gorm.Expr("coins_balance + ?", coins),
		}).Error
}

func commissionAmount(base int64, percent decimal.Decimal) int64 {
	return decimal.NewFromInt(base).
		Mul(percent).
		Div(decimal.NewFromInt(100)).
		IntPart()
}
