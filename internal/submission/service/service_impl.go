package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/smallbiznis/incentiva/internal/audit/domain"
	campaigndomain "github.com/smallbiznis/incentiva/internal/campaign/domain"
	"github.com/smallbiznis/incentiva/internal/clock"
	"github.com/smallbiznis/incentiva/internal/config"
	ledgerdomain "github.com/smallbiznis/incentiva/internal/ledger/domain"
	notificationdomain "github.com/smallbiznis/incentiva/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/incentiva/internal/observability/metrics"
	organizationdomain "github.com/smallbiznis/incentiva/internal/organization/domain"
	reconcileservice "github.com/smallbiznis/incentiva/internal/reconcile/service"
	"github.com/smallbiznis/incentiva/internal/submission/domain"
	"github.com/smallbiznis/incentiva/pkg/db"
	"github.com/smallbiznis/incentiva/pkg/db/option"
	"github.com/smallbiznis/incentiva/pkg/db/pagination"
	"github.com/smallbiznis/incentiva/pkg/repository"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	GenID        *snowflake.Node
	ConfigHolder *config.ReconcileConfigHolder
	CampaignSvc  campaigndomain.Service
	OrgSvc       organizationdomain.Service
	LedgerSvc    ledgerdomain.Service
	AuditSvc     auditdomain.Service
	Sink         notificationdomain.Sink
	Allocator    *reconcileservice.Allocator
	Metrics      *obsmetrics.Metrics `optional:"true"`
}

type service struct {
	db             *gorm.DB
	log            *zap.Logger
	clock          clock.Clock
	genID          *snowflake.Node
	configHolder   *config.ReconcileConfigHolder
	campaignSvc    campaigndomain.Service
	orgSvc         organizationdomain.Service
	ledgerSvc      ledgerdomain.Service
	auditSvc       auditdomain.Service
	sink           notificationdomain.Sink
	allocator      *reconcileservice.Allocator
	metrics        *obsmetrics.Metrics
	submissionRepo repository.Repository[domain.Submission]
}

func NewService(p Params) domain.Service {
	return &service{
		db:             p.DB,
		log:            p.Log.Named("submission"),
		clock:          p.Clock,
		genID:          p.GenID,
		configHolder:   p.ConfigHolder,
		campaignSvc:    p.CampaignSvc,
		orgSvc:         p.OrgSvc,
		ledgerSvc:      p.LedgerSvc,
		auditSvc:       p.AuditSvc,
		sink:           p.Sink,
		allocator:      p.Allocator,
		metrics:        p.Metrics,
		submissionRepo: repository.ProvideStore[domain.Submission](p.DB),
	}
}

// Create stages a PENDING submission. Validation here is declarative only;
// whether the order actually qualifies is the reconciler's job.
func (s *service) Create(ctx context.Context, req domain.CreateSubmissionRequest) (*domain.Submission, error) {
	orderNumber := strings.TrimSpace(req.OrderNumber)
	if orderNumber == "" {
		return nil, domain.ErrInvalidOrderNumber
	}

	sellerID, err := snowflake.ParseString(req.SellerID)
	if err != nil {
		return nil, fmt.Errorf("%w: seller_id", domain.ErrInvalidSubmission)
	}
	campaignID, err := snowflake.ParseString(req.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("%w: campaign_id", domain.ErrInvalidSubmission)
	}
	requirementID, err := snowflake.ParseString(req.RequirementID)
	if err != nil {
		return nil, fmt.Errorf("%w: requirement_id", domain.ErrInvalidSubmission)
	}

	campaign, err := s.campaignSvc.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if campaign.Status != campaigndomain.CampaignStatusActive ||
		now.Before(campaign.StartAt) || now.After(campaign.EndAt) {
		return nil, domain.ErrCampaignNotActive
	}

	ruleSet, err := s.campaignSvc.ResolveRuleSet(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if ruleSet.Requirement(requirementID) == nil {
		return nil, domain.ErrRequirementNotInCamp
	}

	if _, err := s.orgSvc.GetSeller(ctx, sellerID); err != nil {
		return nil, err
	}

	existing, err := s.submissionRepo.FindOne(ctx, &domain.Submission{
		OrderNumber: orderNumber,
		SellerID:    sellerID,
		CampaignID:  campaignID,
	})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrDuplicateSubmission
	}

	submission := &domain.Submission{
		ID:                    s.genID.Generate(),
		OrderNumber:           orderNumber,
		SellerID:              sellerID,
		CampaignID:            campaignID,
		RequirementID:         requirementID,
		DeclaredRequirementID: requirementID,
		Status:                domain.StatusPending,
		SubmittedAt:           now,
	}

	if err := s.submissionRepo.Create(ctx, submission); err != nil {
		// The unique index is the real guard; the pre-check only covers the
		// common case without a round trip to error mapping.
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateSubmission
		}
		return nil, err
	}

	s.log.Info("submission created",
		zap.String("submission_id", submission.ID.String()),
		zap.String("order_number", submission.OrderNumber),
		zap.String("campaign_id", campaignID.String()),
	)

	return submission, nil
}

func (s *service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Submission, error) {
	submission, err := s.submissionRepo.FindOne(ctx, &domain.Submission{ID: id})
	if err != nil {
		return nil, err
	}
	if submission == nil {
		return nil, domain.ErrSubmissionNotFound
	}
	return submission, nil
}

func (s *service) List(ctx context.Context, req domain.ListSubmissionsRequest) (domain.ListSubmissionsResponse, error) {
	var resp domain.ListSubmissionsResponse

	filter := domain.Submission{}
	if req.CampaignID != "" {
		id, err := snowflake.ParseString(req.CampaignID)
		if err != nil {
			return resp, fmt.Errorf("%w: campaign_id", domain.ErrInvalidSubmission)
		}
		filter.CampaignID = id
	}
	if req.SellerID != "" {
		id, err := snowflake.ParseString(req.SellerID)
		if err != nil {
			return resp, fmt.Errorf("%w: seller_id", domain.ErrInvalidSubmission)
		}
		filter.SellerID = id
	}
	if req.Status != "" {
		filter.Status = domain.SubmissionStatus(strings.ToUpper(req.Status))
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = 25
	}

	opts := []option.QueryOption{
		option.WithOrder("id DESC"),
		option.WithLimit(limit + 1),
	}
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return resp, fmt.Errorf("%w: page_token", domain.ErrInvalidSubmission)
		}
		opts = append(opts, option.WithCondition("id < ?", cursor.ID))
	}

	submissions, err := s.submissionRepo.Find(ctx, &filter, opts...)
	if err != nil {
		return resp, err
	}

	pageInfo, submissions := pagination.BuildCursorPageInfo(submissions, limit, func(sub *domain.Submission) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: sub.ID.String()})
		return token
	})

	resp.PageInfo = *pageInfo
	resp.Submissions = submissions
	return resp, nil
}

// ValidateOne is the manual override path for operators adjudicating a
// PENDING or CONFLICT submission. It goes through the same tier allocation
// and settlement code as the batch reconciler, so a forced acceptance still
// lands on the correct tier and cannot double-pay.
func (s *service) ValidateOne(ctx context.Context, id snowflake.ID) (*domain.Submission, error) {
	submission, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !overridable(submission.Status) {
		return nil, domain.ErrNotOverridable
	}

	ruleSet, err := s.campaignSvc.ResolveRuleSet(ctx, submission.CampaignID)
	if err != nil {
		return nil, err
	}
	requirement := ruleSet.Requirement(submission.RequirementID)
	if requirement == nil {
		return nil, domain.ErrRequirementNotInCamp
	}

	seller, err := s.orgSvc.GetSeller(ctx, submission.SellerID)
	if err != nil {
		return nil, err
	}

	cfg := s.configHolder.Get()

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tier, err := s.allocator.Allocate(ctx, tx, ruleSet, requirement, submission.SellerID, 0, cfg.MaxTierCount)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		res := tx.Model(&domain.Submission{}).
			Where("id = ? AND status IN ?", submission.ID,
				[]domain.SubmissionStatus{domain.StatusPending, domain.StatusConflict}).
			Updates(map[string]any{
				"status":                domain.StatusValidated,
				"validated_tier_number": tier,
				"validated_at":          now,
				"rejection_reason":      nil,
				"updated_at":            now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotOverridable
		}

		submission.Status = domain.StatusValidated
		submission.ValidatedTierNumber = &tier
		submission.ValidatedAt = &now
		submission.RejectionReason = nil

		return s.ledgerSvc.Settle(ctx, tx, submission, ruleSet, seller)
	}); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordDecision(ctx, string(domain.StatusValidated), false)
	}
	s.auditOverride(ctx, submission, "submission.validate_override", map[string]any{
		"tier_number": *submission.ValidatedTierNumber,
	})

	return submission, nil
}

// RejectOne terminally rejects a PENDING or CONFLICT submission with an
// operator-supplied reason.
func (s *service) RejectOne(ctx context.Context, id snowflake.ID, reason string) (*domain.Submission, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.ErrInvalidRejectReason
	}

	submission, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !overridable(submission.Status) {
		return nil, domain.ErrNotOverridable
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		res := tx.Model(&domain.Submission{}).
			Where("id = ? AND status IN ?", submission.ID,
				[]domain.SubmissionStatus{domain.StatusPending, domain.StatusConflict}).
			Updates(map[string]any{
				"status":           domain.StatusRejected,
				"rejection_reason": reason,
				"updated_at":       now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotOverridable
		}

		submission.Status = domain.StatusRejected
		submission.RejectionReason = &reason

		return s.sink.Notify(ctx, tx, notificationdomain.CreateNotificationRequest{
			BeneficiaryID: submission.SellerID,
			Kind:          notificationdomain.KindSubmissionRejected,
			Message:       fmt.Sprintf("Order %s was rejected: %s", submission.OrderNumber, reason),
			Metadata: map[string]any{
				"submission_id": submission.ID.String(),
				"order_number":  submission.OrderNumber,
			},
		})
	}); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordDecision(ctx, string(domain.StatusRejected), false)
	}
	s.auditOverride(ctx, submission, "submission.reject_override", map[string]any{
		"reason": reason,
	})

	return submission, nil
}

func (s *service) auditOverride(ctx context.Context, submission *domain.Submission, action string, metadata map[string]any) {
	metadata["order_number"] = submission.OrderNumber
	if err := s.auditSvc.AuditLog(ctx, nil, action, "submission", submission.ID.String(), metadata); err != nil {
		s.log.Warn("audit log failed",
			zap.String("submission_id", submission.ID.String()),
			zap.Error(err),
		)
	}
}

func overridable(status domain.SubmissionStatus) bool {
	return status == domain.StatusPending || status == domain.StatusConflict
}
