package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	auditdomain "github.com/smallbiznis/incentiva/internal/audit/domain"
	campaigndomain "github.com/smallbiznis/incentiva/internal/campaign/domain"
	"github.com/smallbiznis/incentiva/internal/clock"
	"github.com/smallbiznis/incentiva/internal/config"
	datasetdomain "github.com/smallbiznis/incentiva/internal/dataset/domain"
	ledgerdomain "github.com/smallbiznis/incentiva/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/incentiva/internal/observability/metrics"
	organizationdomain "github.com/smallbiznis/incentiva/internal/organization/domain"
	reconciledomain "github.com/smallbiznis/incentiva/internal/reconcile/domain"
	submissiondomain "github.com/smallbiznis/incentiva/internal/submission/domain"
)

type ServiceParams struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	ConfigHolder *config.ReconcileConfigHolder
	CampaignSvc  campaigndomain.Service
	OrgSvc       organizationdomain.Service
	LedgerSvc    ledgerdomain.Service
	DatasetSvc   datasetdomain.Service
	AuditSvc     auditdomain.Service
	Allocator    *Allocator
	Metrics      *obsmetrics.Metrics `optional:"true"`
}

// reconciler drives one batch pass: load pending submissions, decide each
// one against the external rows, then persist each decision in its own
// transaction. A failing submission stays PENDING and never aborts the
// batch. Simulation runs the identical decide path and skips the whole
// write phase; parity with a persisted run is kept by an in-memory overlay
// that stands in for the rows a persisted run would have committed.
type reconciler struct {
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	configHolder *config.ReconcileConfigHolder
	campaignSvc  campaigndomain.Service
	orgSvc       organizationdomain.Service
	ledgerSvc    ledgerdomain.Service
	datasetSvc   datasetdomain.Service
	auditSvc     auditdomain.Service
	allocator    *Allocator
	evaluator    *Evaluator
	matcher      *Matcher
	reallocator  *Reallocator
	metrics      *obsmetrics.Metrics
}

func NewService(p ServiceParams) reconciledomain.Service {
	evaluator := NewEvaluator()
	return &reconciler{
		db:           p.DB,
		log:          p.Log.Named("reconcile"),
		clock:        p.Clock,
		configHolder: p.ConfigHolder,
		campaignSvc:  p.CampaignSvc,
		orgSvc:       p.OrgSvc,
		ledgerSvc:    p.LedgerSvc,
		datasetSvc:   p.DatasetSvc,
		auditSvc:     p.AuditSvc,
		allocator:    p.Allocator,
		evaluator:    evaluator,
		matcher:      NewMatcher(),
		reallocator:  NewReallocator(evaluator),
		metrics:      p.Metrics,
	}
}

// pass carries the per-run state shared across submissions of one batch.
type pass struct {
	ruleSet      *campaigndomain.RuleSet
	mapping      reconciledomain.ColumnMapping
	rows         []reconciledomain.ExternalRecord
	simulate     bool
	maxTierCount int

	// slotOverlay counts validated units decided earlier in this simulated
	// pass, keyed by seller and logical slot. Persisted runs leave it empty
	// because each prior unit commits before the next submission is decided.
	slotOverlay map[slotKey]int64
	// validatedOrders tracks simulated order claims for the conflict check.
	validatedOrders map[string]snowflake.ID
	sellers         map[snowflake.ID]*organizationdomain.Seller
}

type slotKey struct {
	sellerID  snowflake.ID
	slotOrder int
}

func (r *reconciler) Reconcile(ctx context.Context, req reconciledomain.ReconcileRequest) (reconciledomain.BatchResult, error) {
	result := reconciledomain.BatchResult{RunID: uuid.NewString()}
	startedAt := r.clock.Now()

	cfg := r.configHolder.Get()

	rows, mapping, err := r.resolveRows(ctx, req)
	if err != nil {
		return result, err
	}
	if len(mapping) == 0 && len(cfg.DefaultColumnMapping) > 0 {
		mapping = reconciledomain.ColumnMapping(cfg.DefaultColumnMapping)
	}
	if _, ok := mapping.Column(reconciledomain.FieldOrderNumber); !ok {
		return result, reconciledomain.ErrMissingOrderMapping
	}
	if _, ok := mapping.Column(reconciledomain.FieldOrgID); !ok {
		return result, reconciledomain.ErrMissingOrgMapping
	}

	ruleSet, err := r.campaignSvc.ResolveRuleSet(ctx, req.CampaignID)
	if err != nil {
		return result, err
	}

	pending, err := r.loadPending(ctx, req.CampaignID, cfg.BatchSize)
	if err != nil {
		return result, err
	}

	p := &pass{
		ruleSet:         ruleSet,
		mapping:         mapping,
		rows:            rows,
		simulate:        req.Simulate,
		maxTierCount:    cfg.MaxTierCount,
		slotOverlay:     make(map[slotKey]int64),
		validatedOrders: make(map[string]snowflake.ID),
		sellers:         make(map[snowflake.ID]*organizationdomain.Seller),
	}

	log := r.log.With(
		zap.String("run_id", result.RunID),
		zap.String("campaign_id", req.CampaignID.String()),
		zap.Bool("simulate", req.Simulate),
	)
	log.Info("reconciliation pass started",
		zap.Int("pending", len(pending)),
		zap.Int("rows", len(rows)),
	)

	for i := range pending {
		sub := &pending[i]
		result.TotalProcessed++

		decision, err := r.decide(ctx, p, sub)
		if err != nil {
			result.Failed++
			log.Error("decide failed",
				zap.String("submission_id", sub.ID.String()),
				zap.Error(err),
			)
			continue
		}

		if !p.simulate {
			if err := r.persist(ctx, p, sub, decision); err != nil {
				result.Failed++
				log.Error("persist failed",
					zap.String("submission_id", sub.ID.String()),
					zap.Error(err),
				)
				continue
			}
			r.audit(ctx, sub, decision)
		} else if decision.Status == submissiondomain.StatusValidated {
			requirement := p.ruleSet.Requirement(decision.RequirementID)
			p.slotOverlay[slotKey{sub.SellerID, requirement.SlotOrder}]++
			p.validatedOrders[sub.OrderNumber] = sub.SellerID
		}

		switch decision.Status {
		case submissiondomain.StatusValidated:
			result.Validated++
		case submissiondomain.StatusConflict:
			result.Conflicts++
		default:
			result.Rejected++
		}
		if r.metrics != nil {
			r.metrics.RecordDecision(ctx, string(decision.Status), p.simulate)
		}
	}

	finishedAt := r.clock.Now()
	if r.metrics != nil {
		r.metrics.RecordReconcileRun(ctx, p.simulate, finishedAt.Sub(startedAt))
	}

	if !p.simulate {
		if err := r.recordRun(ctx, req, result, startedAt, finishedAt); err != nil {
			log.Warn("record run failed", zap.Error(err))
		}
		if req.DatasetID != 0 && result.Failed == 0 {
			if err := r.datasetSvc.MarkReconciled(ctx, req.DatasetID); err != nil {
				log.Warn("mark dataset reconciled failed", zap.Error(err))
			}
		}
	}

	log.Info("reconciliation pass finished",
		zap.Int("validated", result.Validated),
		zap.Int("rejected", result.Rejected),
		zap.Int("conflicts", result.Conflicts),
		zap.Int("failed", result.Failed),
		zap.Duration("took", finishedAt.Sub(startedAt)),
	)

	return result, nil
}

// resolveRows picks inline rows when provided, otherwise falls back to the
// staged dataset, taking the dataset's own column mapping unless the caller
// overrides it.
func (r *reconciler) resolveRows(ctx context.Context, req reconciledomain.ReconcileRequest) ([]reconciledomain.ExternalRecord, reconciledomain.ColumnMapping, error) {
	if len(req.Rows) > 0 {
		return req.Rows, req.ColumnMapping, nil
	}
	if req.DatasetID == 0 {
		return nil, nil, reconciledomain.ErrNoRows
	}

	dataset, err := r.datasetSvc.GetByID(ctx, req.DatasetID)
	if err != nil {
		return nil, nil, err
	}

	raw, err := r.datasetSvc.Rows(ctx, req.DatasetID)
	if err != nil {
		return nil, nil, err
	}
	if len(raw) == 0 {
		return nil, nil, reconciledomain.ErrNoRows
	}

	rows := make([]reconciledomain.ExternalRecord, 0, len(raw))
	for _, row := range raw {
		rows = append(rows, reconciledomain.ExternalRecord(row))
	}

	mapping := req.ColumnMapping
	if len(mapping) == 0 {
		mapping = reconciledomain.ColumnMapping{}
		for field, column := range dataset.ColumnMapping {
			if sv, ok := column.(string); ok {
				mapping[field] = sv
			}
		}
	}
	return rows, mapping, nil
}

func (r *reconciler) loadPending(ctx context.Context, campaignID snowflake.ID, batchSize int) ([]submissiondomain.Submission, error) {
	var pending []submissiondomain.Submission
	err := r.db.WithContext(ctx).
		Where("campaign_id = ? AND status = ?", campaignID, submissiondomain.StatusPending).
		Order("submitted_at ASC, id ASC").
		Limit(batchSize).
		Find(&pending).Error
	return pending, err
}

// decide runs the per-submission pipeline, short-circuiting on the first
// decisive stage. It reads but never writes; returned errors are
// infrastructure failures, every data-quality problem becomes a REJECTED or
// CONFLICT decision instead.
func (r *reconciler) decide(ctx context.Context, p *pass, sub *submissiondomain.Submission) (reconciledomain.Decision, error) {
	record, located := r.locateRecord(p, sub.OrderNumber)
	if !located.found {
		return rejected(sub, "order not found in external dataset", nil), nil
	}
	if located.ambiguous() {
		return conflicted(sub, fmt.Sprintf(
			"ambiguous column mapping: order number matched under columns %s",
			strings.Join(located.columns, ", "),
		)), nil
	}

	seller, err := r.seller(ctx, p, sub.SellerID)
	if err != nil {
		if errors.Is(err, organizationdomain.ErrSellerNotFound) {
			return rejected(sub, "seller not found", nil), nil
		}
		return reconciledomain.Decision{}, err
	}

	orgColumn, _ := p.mapping.Column(reconciledomain.FieldOrgID)
	if match := r.matcher.MatchOrganization(record[orgColumn], seller.Organization); !match.Matched {
		return rejected(sub, match.Reason, nil), nil
	}

	declared := p.ruleSet.Requirement(sub.RequirementID)
	if declared == nil {
		return rejected(sub, "requirement not found in campaign", nil), nil
	}

	effective := declared
	var attemptLog []string
	if verdict := r.evaluator.Evaluate(record, declared, p.mapping); !verdict.Satisfied {
		reassignment := r.reallocator.TryReassign(record, declared, p.ruleSet, p.mapping, verdict.Reason)
		if reassignment.Requirement == nil {
			return rejected(sub, reassignment.CombinedReason(), reassignment.AttemptLog), nil
		}
		effective = reassignment.Requirement
		attemptLog = reassignment.AttemptLog
	}

	conflict, err := hasConflict(ctx, r.db, sub.OrderNumber, sub.CampaignID, sub.SellerID)
	if err != nil {
		return reconciledomain.Decision{}, err
	}
	if !conflict && p.simulate {
		if claimant, ok := p.validatedOrders[sub.OrderNumber]; ok && claimant != sub.SellerID {
			conflict = true
		}
	}
	if conflict {
		return conflicted(sub, "order already validated for another seller"), nil
	}

	overlay := p.slotOverlay[slotKey{sub.SellerID, effective.SlotOrder}]
	tier, err := r.allocator.Allocate(ctx, nil, p.ruleSet, effective, sub.SellerID, overlay, p.maxTierCount)
	if err != nil {
		if errors.Is(err, ErrTierCapacityReached) {
			return rejected(sub, "tier capacity reached", attemptLog), nil
		}
		return reconciledomain.Decision{}, err
	}

	return reconciledomain.Decision{
		SubmissionID:  sub.ID,
		Status:        submissiondomain.StatusValidated,
		RequirementID: effective.ID,
		TierNumber:    tier,
		AttemptLog:    attemptLog,
	}, nil
}

type location struct {
	found   bool
	columns []string
}

func (l location) ambiguous() bool { return len(l.columns) > 1 }

// locateRecord scans the external rows for the submission's order number
// under every mapped column. A hit under more than one distinct column means
// the mapping is ambiguous and the submission cannot be trusted either way.
func (r *reconciler) locateRecord(p *pass, orderNumber string) (reconciledomain.ExternalRecord, location) {
	want := strings.TrimSpace(orderNumber)

	var loc location
	byColumn := make(map[string]reconciledomain.ExternalRecord)
	for _, column := range p.mapping {
		if column == "" {
			continue
		}
		if _, seen := byColumn[column]; seen {
			continue
		}
		for _, row := range p.rows {
			if strings.TrimSpace(row[column]) == want {
				byColumn[column] = row
				loc.columns = append(loc.columns, column)
				break
			}
		}
	}

	loc.found = len(loc.columns) > 0
	if len(loc.columns) != 1 {
		sort.Strings(loc.columns)
		return nil, loc
	}
	return byColumn[loc.columns[0]], loc
}

func (r *reconciler) seller(ctx context.Context, p *pass, id snowflake.ID) (*organizationdomain.Seller, error) {
	if seller, ok := p.sellers[id]; ok {
		return seller, nil
	}
	seller, err := r.orgSvc.GetSeller(ctx, id)
	if err != nil {
		return nil, err
	}
	p.sellers[id] = seller
	return seller, nil
}

// persist applies one decision in its own transaction. The status guard
// keeps a concurrently processed submission from being settled twice; the
// ledger write shares the transaction so a reward failure rolls the status
// back to PENDING. The tier is re-derived through the transaction because
// the decide-time number can go stale the moment another unit of the slot
// commits, a manual override included.
func (r *reconciler) persist(ctx context.Context, p *pass, sub *submissiondomain.Submission, decision reconciledomain.Decision) error {
	ruleSet := p.ruleSet
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.clock.Now()

		tier := decision.TierNumber
		if decision.Status == submissiondomain.StatusValidated {
			requirement := ruleSet.Requirement(decision.RequirementID)
			fresh, err := r.allocator.Allocate(ctx, tx, ruleSet, requirement, sub.SellerID, 0, p.maxTierCount)
			if err != nil {
				// ErrTierCapacityReached here means the ceiling filled up
				// since decide; the submission stays PENDING and the next
				// pass rejects it with the proper reason.
				return err
			}
			tier = fresh
		}

		updates := map[string]any{
			"status":         decision.Status,
			"requirement_id": decision.RequirementID,
			"updated_at":     now,
		}
		if decision.Reason != "" {
			updates["rejection_reason"] = decision.Reason
		}
		if len(decision.AttemptLog) > 0 {
			raw, err := json.Marshal(decision.AttemptLog)
			if err != nil {
				return err
			}
			updates["attempt_log"] = datatypes.JSON(raw)
		}
		if decision.Status == submissiondomain.StatusValidated {
			updates["validated_tier_number"] = tier
			updates["validated_at"] = now
		}

		res := tx.Model(&submissiondomain.Submission{}).
			Where("id = ? AND status = ?", sub.ID, submissiondomain.StatusPending).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Another worker already decided it.
			return nil
		}

		if decision.Status != submissiondomain.StatusValidated {
			return nil
		}

		seller, err := r.orgSvc.GetSeller(ctx, sub.SellerID)
		if err != nil {
			return err
		}

		settled := *sub
		settled.Status = submissiondomain.StatusValidated
		settled.RequirementID = decision.RequirementID
		settled.ValidatedTierNumber = &tier
		settled.ValidatedAt = &now

		return r.ledgerSvc.Settle(ctx, tx, &settled, ruleSet, seller)
	})
}

func (r *reconciler) audit(ctx context.Context, sub *submissiondomain.Submission, decision reconciledomain.Decision) {
	metadata := map[string]any{
		"status":         string(decision.Status),
		"order_number":   sub.OrderNumber,
		"requirement_id": decision.RequirementID.String(),
	}
	if decision.Reason != "" {
		metadata["reason"] = decision.Reason
	}
	if decision.Status == submissiondomain.StatusValidated {
		metadata["tier_number"] = decision.TierNumber
	}
	if err := r.auditSvc.AuditLog(ctx, nil, "reconcile.decision", "submission", sub.ID.String(), metadata); err != nil {
		r.log.Warn("audit log failed",
			zap.String("submission_id", sub.ID.String()),
			zap.Error(err),
		)
	}
}

func (r *reconciler) recordRun(ctx context.Context, req reconciledomain.ReconcileRequest, result reconciledomain.BatchResult, startedAt, finishedAt time.Time) error {
	metadata := datatypes.JSONMap{}
	if req.DatasetID != 0 {
		metadata["dataset_id"] = req.DatasetID.String()
	}

	run := reconciledomain.Run{
		ID:             result.RunID,
		CampaignID:     req.CampaignID,
		Simulate:       req.Simulate,
		TotalProcessed: result.TotalProcessed,
		Validated:      result.Validated,
		Rejected:       result.Rejected,
		Conflicts:      result.Conflicts,
		Failed:         result.Failed,
		Metadata:       metadata,
		StartedAt:      startedAt,
		FinishedAt:     finishedAt,
	}
	return r.db.WithContext(ctx).Create(&run).Error
}

func rejected(sub *submissiondomain.Submission, reason string, attemptLog []string) reconciledomain.Decision {
	return reconciledomain.Decision{
		SubmissionID:  sub.ID,
		Status:        submissiondomain.StatusRejected,
		RequirementID: sub.RequirementID,
		Reason:        reason,
		AttemptLog:    attemptLog,
	}
}

func conflicted(sub *submissiondomain.Submission, reason string) reconciledomain.Decision {
	return reconciledomain.Decision{
		SubmissionID:  sub.ID,
		Status:        submissiondomain.StatusConflict,
		RequirementID: sub.RequirementID,
		Reason:        reason,
	}
}
