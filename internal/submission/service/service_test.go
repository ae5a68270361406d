package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/smallbiznis/incentiva/internal/audit/domain"
	auditservice "github.com/smallbiznis/incentiva/internal/audit/service"
	campaigndomain "github.com/smallbiznis/incentiva/internal/campaign/domain"
	campaignservice "github.com/smallbiznis/incentiva/internal/campaign/service"
	"github.com/smallbiznis/incentiva/internal/clock"
	"github.com/smallbiznis/incentiva/internal/config"
	ledgerdomain "github.com/smallbiznis/incentiva/internal/ledger/domain"
	ledgerservice "github.com/smallbiznis/incentiva/internal/ledger/service"
	notificationdomain "github.com/smallbiznis/incentiva/internal/notification/domain"
	notificationservice "github.com/smallbiznis/incentiva/internal/notification/service"
	organizationdomain "github.com/smallbiznis/incentiva/internal/organization/domain"
	organizationservice "github.com/smallbiznis/incentiva/internal/organization/service"
	reconcileservice "github.com/smallbiznis/incentiva/internal/reconcile/service"
	"github.com/smallbiznis/incentiva/internal/submission/domain"
)

type intakeFixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	svc   domain.Service

	campaign    *campaigndomain.Campaign
	requirement *campaigndomain.Requirement
	seller      *organizationdomain.Seller
}

func newIntakeFixture(t *testing.T) *intakeFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(
		&organizationdomain.Organization{},
		&organizationdomain.Seller{},
		&campaigndomain.Campaign{},
		&campaigndomain.Tier{},
		&campaigndomain.Requirement{},
		&campaigndomain.Condition{},
		&domain.Submission{},
		&ledgerdomain.TierCompletion{},
		&ledgerdomain.LedgerEntry{},
		&notificationdomain.Notification{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(3)
	assert.NoError(t, err)
	log := zap.NewNop()
	fakeClock := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	f := &intakeFixture{db: db, node: node, clock: fakeClock}

	org := &organizationdomain.Organization{
		ID: node.Generate(), Name: "Org", Slug: "org", TaxID: "12345678000100",
	}
	assert.NoError(t, db.Create(org).Error)
	f.seller = &organizationdomain.Seller{
		ID: node.Generate(), Name: "Seller", Email: "seller@example.com", OrganizationID: org.ID,
	}
	assert.NoError(t, db.Create(f.seller).Error)

	f.campaign = &campaigndomain.Campaign{
		ID: node.Generate(), Name: "Camp", Slug: "camp",
		Status:                   campaigndomain.CampaignStatusActive,
		ManagerCommissionPercent: decimal.Zero,
		StartAt:                  fakeClock.Now().AddDate(0, -1, 0),
		EndAt:                    fakeClock.Now().AddDate(0, 1, 0),
	}
	assert.NoError(t, db.Create(f.campaign).Error)

	tier := &campaigndomain.Tier{
		ID: node.Generate(), CampaignID: f.campaign.ID,
		TierNumber: 1, PointAmount: 100, CoinAmount: 10,
	}
	assert.NoError(t, db.Create(tier).Error)

	f.requirement = &campaigndomain.Requirement{
		ID: node.Generate(), CampaignID: f.campaign.ID,
		TierNumber: 1, SlotOrder: 1, TargetQuantity: 3, UnitType: "order",
	}
	assert.NoError(t, db.Create(f.requirement).Error)

	sink := notificationservice.NewService(notificationservice.Params{DB: db, Log: log, GenID: node})
	auditSvc := auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: node})
	campaignSvc := campaignservice.NewService(campaignservice.Params{DB: db, Log: log, GenID: node})
	orgSvc := organizationservice.NewService(organizationservice.Params{DB: db, Log: log})
	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{
		DB: db, Log: log, GenID: node, Sink: sink, AuditSvc: auditSvc,
	})
	allocator := reconcileservice.NewAllocator(reconcileservice.AllocatorParams{DB: db, Log: log})

	holder := config.NewStaticReconcileConfigHolder(config.ReconcileConfig{
		WorkerInterval: time.Minute,
		JobTimeout:     time.Minute,
		BatchSize:      100,
		MaxTierCount:   12,
	})

	f.svc = NewService(Params{
		DB:           db,
		Log:          log,
		Clock:        fakeClock,
		GenID:        node,
		ConfigHolder: holder,
		CampaignSvc:  campaignSvc,
		OrgSvc:       orgSvc,
		LedgerSvc:    ledgerSvc,
		AuditSvc:     auditSvc,
		Sink:         sink,
		Allocator:    allocator,
	})

	return f
}

func (f *intakeFixture) createRequest(orderNumber string) domain.CreateSubmissionRequest {
	return domain.CreateSubmissionRequest{
		OrderNumber:   orderNumber,
		SellerID:      f.seller.ID.String(),
		CampaignID:    f.campaign.ID.String(),
		RequirementID: f.requirement.ID.String(),
	}
}

func TestCreate_AcceptsAndTrims(t *testing.T) {
	f := newIntakeFixture(t)

	sub, err := f.svc.Create(context.Background(), f.createRequest("  ORD-1  "))
	assert.NoError(t, err)
	assert.Equal(t, "ORD-1", sub.OrderNumber)
	assert.Equal(t, domain.StatusPending, sub.Status)
	assert.Equal(t, f.requirement.ID, sub.DeclaredRequirementID)
	assert.Equal(t, f.clock.Now(), sub.SubmittedAt)
}

func TestCreate_RejectsDuplicateOrder(t *testing.T) {
	f := newIntakeFixture(t)

	_, err := f.svc.Create(context.Background(), f.createRequest("ORD-1"))
	assert.NoError(t, err)

	_, err = f.svc.Create(context.Background(), f.createRequest("ORD-1"))
	assert.ErrorIs(t, err, domain.ErrDuplicateSubmission)
}

func TestCreate_RejectsOutsideCampaignWindow(t *testing.T) {
	f := newIntakeFixture(t)

	f.clock.Advance(90 * 24 * time.Hour)
	_, err := f.svc.Create(context.Background(), f.createRequest("ORD-1"))
	assert.ErrorIs(t, err, domain.ErrCampaignNotActive)
}

func TestCreate_RejectsClosedCampaign(t *testing.T) {
	f := newIntakeFixture(t)

	assert.NoError(t, f.db.Model(&campaigndomain.Campaign{}).
		Where("id = ?", f.campaign.ID).
		Update("status", campaigndomain.CampaignStatusClosed).Error)

	_, err := f.svc.Create(context.Background(), f.createRequest("ORD-1"))
	assert.ErrorIs(t, err, domain.ErrCampaignNotActive)
}

func TestCreate_RejectsForeignRequirement(t *testing.T) {
	f := newIntakeFixture(t)

	req := f.createRequest("ORD-1")
	req.RequirementID = f.node.Generate().String()
	_, err := f.svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrRequirementNotInCamp)
}

func TestCreate_RejectsBadInput(t *testing.T) {
	f := newIntakeFixture(t)

	req := f.createRequest("   ")
	_, err := f.svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrInvalidOrderNumber)

	req = f.createRequest("ORD-1")
	req.SellerID = "not-a-number"
	_, err = f.svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrInvalidSubmission)
}

func TestList_FiltersAndPaginates(t *testing.T) {
	f := newIntakeFixture(t)

	for _, order := range []string{"ORD-1", "ORD-2", "ORD-3"} {
		_, err := f.svc.Create(context.Background(), f.createRequest(order))
		assert.NoError(t, err)
	}

	resp, err := f.svc.List(context.Background(), domain.ListSubmissionsRequest{
		CampaignID: f.campaign.ID.String(),
		Status:     "pending",
	})
	assert.NoError(t, err)
	assert.Len(t, resp.Submissions, 3)

	resp, err = f.svc.List(context.Background(), domain.ListSubmissionsRequest{
		Status: "validated",
	})
	assert.NoError(t, err)
	assert.Empty(t, resp.Submissions)
}

func TestValidateOne_Override(t *testing.T) {
	f := newIntakeFixture(t)

	sub, err := f.svc.Create(context.Background(), f.createRequest("ORD-1"))
	assert.NoError(t, err)

	validated, err := f.svc.ValidateOne(context.Background(), sub.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.StatusValidated, validated.Status)
	assert.NotNil(t, validated.ValidatedTierNumber)
	assert.Equal(t, 1, *validated.ValidatedTierNumber)

	// A second override on the same submission must refuse.
	_, err = f.svc.ValidateOne(context.Background(), sub.ID)
	assert.ErrorIs(t, err, domain.ErrNotOverridable)
}

func TestValidateOne_ClearsConflict(t *testing.T) {
	f := newIntakeFixture(t)

	sub, err := f.svc.Create(context.Background(), f.createRequest("ORD-1"))
	assert.NoError(t, err)
	reason := "order already validated for another seller"
	assert.NoError(t, f.db.Model(&domain.Submission{}).
		Where("id = ?", sub.ID).
		Updates(map[string]any{"status": domain.StatusConflict, "rejection_reason": reason}).Error)

	validated, err := f.svc.ValidateOne(context.Background(), sub.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.StatusValidated, validated.Status)
	assert.Nil(t, validated.RejectionReason)
}

func TestRejectOne_Override(t *testing.T) {
	f := newIntakeFixture(t)

	sub, err := f.svc.Create(context.Background(), f.createRequest("ORD-1"))
	assert.NoError(t, err)

	_, err = f.svc.RejectOne(context.Background(), sub.ID, "  ")
	assert.ErrorIs(t, err, domain.ErrInvalidRejectReason)

	rejected, err := f.svc.RejectOne(context.Background(), sub.ID, "manual review failed")
	assert.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rejected.Status)
	assert.Equal(t, "manual review failed", *rejected.RejectionReason)

	// The seller is told why.
	var note notificationdomain.Notification
	assert.NoError(t, f.db.Where("beneficiary_id = ? AND kind = ?",
		f.seller.ID, notificationdomain.KindSubmissionRejected).First(&note).Error)

	_, err = f.svc.RejectOne(context.Background(), sub.ID, "again")
	assert.ErrorIs(t, err, domain.ErrNotOverridable)
}
