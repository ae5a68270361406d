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
	datasetdomain "github.com/smallbiznis/incentiva/internal/dataset/domain"
	datasetservice "github.com/smallbiznis/incentiva/internal/dataset/service"
	ledgerdomain "github.com/smallbiznis/incentiva/internal/ledger/domain"
	ledgerservice "github.com/smallbiznis/incentiva/internal/ledger/service"
	notificationdomain "github.com/smallbiznis/incentiva/internal/notification/domain"
	notificationservice "github.com/smallbiznis/incentiva/internal/notification/service"
	organizationdomain "github.com/smallbiznis/incentiva/internal/organization/domain"
	organizationservice "github.com/smallbiznis/incentiva/internal/organization/service"
	reconciledomain "github.com/smallbiznis/incentiva/internal/reconcile/domain"
	submissiondomain "github.com/smallbiznis/incentiva/internal/submission/domain"
)

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	svc   reconciledomain.Service

	campaign *campaigndomain.Campaign
	frames1  *campaigndomain.Requirement
	lenses1  *campaigndomain.Requirement
	frames2  *campaigndomain.Requirement

	matrix *organizationdomain.Organization
	branch *organizationdomain.Organization

	manager *organizationdomain.Seller
	seller  *organizationdomain.Seller
	rival   *organizationdomain.Seller
}

var testMapping = reconciledomain.ColumnMapping{
	"ORDER_NUMBER":     "order_id",
	"ORG_ID":           "org_tax_id",
	"PRODUCT_CATEGORY": "category",
}

func newFixture(t *testing.T) *fixture {
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
		&submissiondomain.Submission{},
		&ledgerdomain.TierCompletion{},
		&ledgerdomain.LedgerEntry{},
		&notificationdomain.Notification{},
		&auditdomain.AuditLog{},
		&reconciledomain.Run{},
		&datasetdomain.Dataset{},
		&datasetdomain.DatasetRow{},
	))

	node, err := snowflake.NewNode(1)
	assert.NoError(t, err)
	log := zap.NewNop()
	fakeClock := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	f := &fixture{db: db, node: node, clock: fakeClock}

	f.matrix = &organizationdomain.Organization{
		ID: node.Generate(), Name: "Acme", Slug: "acme", TaxID: "12345678000100",
	}
	assert.NoError(t, db.Create(f.matrix).Error)
	f.branch = &organizationdomain.Organization{
		ID: node.Generate(), Name: "Acme East", Slug: "acme-east",
		TaxID: "12345678000282", ParentOrganizationID: &f.matrix.ID,
	}
	assert.NoError(t, db.Create(f.branch).Error)

	f.manager = &organizationdomain.Seller{
		ID: node.Generate(), Name: "Manager", Email: "manager@acme.example",
		OrganizationID: f.matrix.ID,
	}
	assert.NoError(t, db.Create(f.manager).Error)
	f.seller = &organizationdomain.Seller{
		ID: node.Generate(), Name: "Seller", Email: "seller@acme.example",
		OrganizationID: f.branch.ID, ManagerID: &f.manager.ID,
	}
	assert.NoError(t, db.Create(f.seller).Error)
	f.rival = &organizationdomain.Seller{
		ID: node.Generate(), Name: "Rival", Email: "rival@acme.example",
		OrganizationID: f.branch.ID,
	}
	assert.NoError(t, db.Create(f.rival).Error)

	f.campaign = &campaigndomain.Campaign{
		ID: node.Generate(), Name: "Push", Slug: "push",
		Status:                   campaigndomain.CampaignStatusActive,
		ManagerCommissionPercent: decimal.NewFromFloat(2.5),
		StartAt:                  fakeClock.Now().AddDate(0, -1, 0),
		EndAt:                    fakeClock.Now().AddDate(0, 1, 0),
	}
	assert.NoError(t, db.Create(f.campaign).Error)

	tiers := []campaigndomain.Tier{
		{ID: node.Generate(), CampaignID: f.campaign.ID, TierNumber: 1, PointAmount: 100, CoinAmount: 10},
		{ID: node.Generate(), CampaignID: f.campaign.ID, TierNumber: 2, PointAmount: 250, CoinAmount: 25},
	}
	assert.NoError(t, db.Create(&tiers).Error)

	f.frames1 = f.createRequirement(t, 1, 1, 3, "frames")
	f.lenses1 = f.createRequirement(t, 1, 2, 2, "lenses")
	f.frames2 = f.createRequirement(t, 2, 1, 3, "frames")
	f.createRequirement(t, 2, 2, 2, "lenses")

	sink := notificationservice.NewService(notificationservice.Params{DB: db, Log: log, GenID: node})
	auditSvc := auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: node})
	campaignSvc := campaignservice.NewService(campaignservice.Params{DB: db, Log: log, GenID: node})
	orgSvc := organizationservice.NewService(organizationservice.Params{DB: db, Log: log})
	datasetSvc := datasetservice.NewService(datasetservice.Params{DB: db, Log: log, GenID: node})
	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{
		DB: db, Log: log, GenID: node, Sink: sink, AuditSvc: auditSvc,
	})
	allocator := NewAllocator(AllocatorParams{DB: db, Log: log})

	holder := config.NewStaticReconcileConfigHolder(config.ReconcileConfig{
		WorkerInterval: time.Minute,
		JobTimeout:     time.Minute,
		BatchSize:      100,
		MaxTierCount:   12,
	})

	f.svc = NewService(ServiceParams{
		DB:           db,
		Log:          log,
		Clock:        fakeClock,
		ConfigHolder: holder,
		CampaignSvc:  campaignSvc,
		OrgSvc:       orgSvc,
		LedgerSvc:    ledgerSvc,
		DatasetSvc:   datasetSvc,
		AuditSvc:     auditSvc,
		Allocator:    allocator,
	})

	return f
}

func (f *fixture) createRequirement(t *testing.T, tier, slot, target int, category string) *campaigndomain.Requirement {
	t.Helper()
	req := &campaigndomain.Requirement{
		ID: f.node.Generate(), CampaignID: f.campaign.ID,
		TierNumber: tier, SlotOrder: slot, TargetQuantity: target, UnitType: "order",
	}
	assert.NoError(t, f.db.Create(req).Error)
	assert.NoError(t, f.db.Create(&campaigndomain.Condition{
		ID: f.node.Generate(), RequirementID: req.ID,
		Field: "PRODUCT_CATEGORY", Operator: campaigndomain.OperatorEquals, ExpectedValue: category,
	}).Error)
	return req
}

func (f *fixture) createPending(t *testing.T, seller *organizationdomain.Seller, requirement *campaigndomain.Requirement, orderNumber string) *submissiondomain.Submission {
	t.Helper()
	sub := &submissiondomain.Submission{
		ID:                    f.node.Generate(),
		OrderNumber:           orderNumber,
		SellerID:              seller.ID,
		CampaignID:            f.campaign.ID,
		RequirementID:         requirement.ID,
		DeclaredRequirementID: requirement.ID,
		Status:                submissiondomain.StatusPending,
		SubmittedAt:           f.clock.Now(),
	}
	assert.NoError(t, f.db.Create(sub).Error)
	return sub
}

func (f *fixture) frameRow(orderNumber string) reconciledomain.ExternalRecord {
	return reconciledomain.ExternalRecord{
		"order_id":   orderNumber,
		"org_tax_id": f.branch.TaxID,
		"category":   "frames",
	}
}

func (f *fixture) reload(t *testing.T, id snowflake.ID) *submissiondomain.Submission {
	t.Helper()
	var sub submissiondomain.Submission
	assert.NoError(t, f.db.First(&sub, "id = ?", id).Error)
	return &sub
}

func TestReconcile_OrderNotFound(t *testing.T) {
	f := newFixture(t)
	sub := f.createPending(t, f.seller, f.frames1, "ORD-404")

	result, err := f.svc.Reconcile(context.Background(), reconciledomain.ReconcileRequest{
		CampaignID:    f.campaign.ID,
		ColumnMapping: testMapping,
		Rows:          []reconciledomain.ExternalRecord{f.frameRow("ORD-OTHER")},
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, result.Rejected)

	got := f.reload(t, sub.ID)
	assert.Equal(t, submissiondomain.StatusRejected, got.Status)
	assert.NotNil(t, got.RejectionReason)
	assert.Equal(t, "order not found in external dataset", *got.RejectionReason)
}

func TestReconcile_AmbiguousColumnMapping(t *testing.T) {
	f := newFixture(t)
	sub := f.createPending(t, f.seller, f.frames1, "ORD-1")

	// The order number shows up under two mapped columns.
	rows := []reconciledomain.ExternalRecord{
		f.frameRow("ORD-1"),
		{"order_id": "ORD-9", "org_tax_id": f.branch.TaxID, "category": "ORD-1"},
	}

	result, err := f.svc.Reconcile(context.Background(), reconciledomain.ReconcileRequest{
		CampaignID:    f.campaign.ID,
		ColumnMapping: testMapping,
		Rows:          rows,
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, result.Conflicts)

	got := f.reload(t, sub.ID)
	assert.Equal(t, submissiondomain.StatusConflict, got.Status)
	assert.Contains(t, *got.RejectionReason, "ambiguous column mapping")
}

func TestReconcile_OrganizationMismatch(t *testing.T) {
	f := newFixture(t)
	sub := f.createPending(t, f.seller, f.frames1, "ORD-1")

	rows := []reconciledomain.ExternalRecord{
		{"order_id": "ORD-1", "org_tax_id": "99999999000199", "category": "frames"},
	}

	result, err := f.svc.Reconcile(context.Background(), reconciledomain.ReconcileRequest{
		CampaignID:    f.campaign.ID,
		ColumnMapping: testMapping,
		Rows:          rows,
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, result.Rejected)

	got := f.reload(t, sub.ID)
	assert.Equal(t, "organization mismatch", *got.RejectionReason)
}

func TestReconcile_MatchesThroughParentOrganization(t *testing.T) {
	f := newFixture(t)
	f.createPending(t, f.seller, f.frames1, "ORD-1")

	// The external record carries the matrix tax ID, not the branch's.
	rows := []reconciledomain.ExternalRecord{
		{"order_id": "ORD-1", "org_tax_id": f.matrix.TaxID, "category": "frames"},
	}

	result, err := f.svc.Reconcile(context.Background(), reconciledomain.ReconcileRequest{
		CampaignID:    f.campaign.ID,
		ColumnMapping: testMapping,
		Rows:          rows,
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, result.Validated)
}

func TestReconcile_ValidatesAndSettles(t *testing.T) {
	f := newFixture(t)
	subs := []*submissiondomain.Submission{
		f.createPending(t, f.seller, f.frames1, "ORD-1"),
		f.createPending(t, f.seller, f.frames1, "ORD-2"),
		f.createPending(t, f.seller, f.frames1, "ORD-3"),
	}

	rows := []reconciledomain.ExternalRecord{
		f.frameRow("ORD-1"), f.frameRow("ORD-2"), f.frameRow("ORD-3"),
	}

	result, err := f.svc.Reconcile(context.Background(), reconciledomain.ReconcileRequest{
		CampaignID:    f.campaign.ID,
		ColumnMapping: testMapping,
		Rows:          rows,
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, result.Validated)
	assert.Equal(t, 0, result.Rejected)

	for _, sub := range subs {
		got := f.reload(t, sub.ID)
		assert.Equal(t, submissiondomain.StatusValidated, got.Status)
		assert.NotNil(t, got.ValidatedTierNumber)
		assert.Equal(t, 1, *got.ValidatedTierNumber)
	}

	// Frames alone do not complete tier 1; the lenses slot is still open.
	var completions int64
	f.db.Model(&ledgerdomain.TierCompletion{}).Count(&completions)
	assert.Equal(t, int64(0), completions)

	// Completing the lenses slot finishes the tier and pays out once.
	f.createPending(t, f.seller, f.lenses1, "ORD-4")
	f.createPending(t, f.seller, f.lenses1, "ORD-5")
	lensRows := []reconciledomain.ExternalRecord{
		{"order_id": "ORD-4", "org_tax_id": f.branch.TaxID, "category": "lenses"},
		{"order_id": "ORD-5", "org_tax_id": f.branch.TaxID, "category": "lenses"},
	}
	result, err = f.svc.Reconcile(context.Background(), reconciledomain.ReconcileRequest{
		CampaignID:    f.campaign.ID,
		ColumnMapping: testMapping,
		Rows:          lensRows,
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, result.Validated)

	f.db.Model(&ledgerdomain.TierCompletion{}).Count(&completions)
	assert.Equal(t, int64(1), completions)

	var seller organizationdomain.Seller
	assert.NoError(t, f.db.First(&seller, "id = ?", f.seller.ID).Error)
	assert.Equal(t, int64(100), seller.PointsBalance)
	assert.Equal(t, int64(10), seller.CoinsBalance)

	// Manager commission: 2.5% of 100 points.
	var manager organizationdomain.Seller
	assert.NoError(t, f.db.First(&manager, "id = ?", f.manager.ID).Error)
	assert.Equal(t, int64(2), manager.PointsBalance)

	var entries []ledgerdomain.LedgerEntry
	assert.NoError(t, f.db.Find(&entries).Error)
	assert.Len(t, entries, 2)

	var runs int64
	f.db.Model(&reconciledomain.Run{}).Count(&runs)
	assert.Equal(t, int64(2), runs)
}

func TestReconcile_SpilloverIntoNextTier(t *testing.T) {
	f := newFixture(t)
	for _, order := range []string{"ORD-1", "ORD-2", "ORD-3", "ORD-4"} {
		f.createPending(t, f.seller, f.frames1, order)
	}

	rows := []reconciledomain.ExternalRecord{
		f.frameRow("ORD-1"), f.frameRow("ORD-2"), f.frameRow("ORD-3"), f.frameRow("ORD-4"),
	}

	result, err := f.svc.Reconcile(context.Background(), reconciledomain.ReconcileRequest{
		CampaignID:    f.campaign.ID,
		ColumnMapping: testMapping,
		Rows:          rows,
	})
	assert.NoError(t, err)
	assert.Equal(t, 4, result.Validated)

	var tiers []int
	assert.NoError(t, f.db.Model(&submissiondomain.Submission{}).
		Order("order_number ASC").
		Pluck("validated_tier_number", &tiers).Error)
	assert.Equal(t, []int{1, 1, 1, 2}, tiers)
}

func TestPersist_ReallocatesTierThroughTransaction(t *testing.T) {
	f := newFixture(t)
	rec := f.svc.(*reconciler)

	// Two validated tier-1 frame units; one more fits in tier 1.
	tier := 1
	for _, order := range []string{"ORD-1", "ORD-2"} {
		assert.NoError(t, f.db.Create(&submissiondomain.Submission{
			ID:                    f.node.Generate(),
			OrderNumber:           order,
			SellerID:              f.seller.ID,
			CampaignID:            f.campaign.ID,
			RequirementID:         f.frames1.ID,
			DeclaredRequirementID: f.frames1.ID,
			Status:                submissiondomain.StatusValidated,
			ValidatedTierNumber:   &tier,
			SubmittedAt:           f.clock.Now(),
		}).Error)
	}
	sub := f.createPending(t, f.seller, f.frames1, "ORD-3")

	ruleSet, err := rec.campaignSvc.ResolveRuleSet(context.Background(), f.campaign.ID)
	assert.NoError(t, err)
	p := &pass{
		ruleSet:         ruleSet,
		mapping:         testMapping,
		rows:            []reconciledomain.ExternalRecord{f.frameRow("ORD-3")},
		maxTierCount:    12,
		slotOverlay:     make(map[slotKey]int64),
		validatedOrders: make(map[string]snowflake.ID),
		sellers:         make(map[snowflake.ID]*organizationdomain.Seller),
	}

	decision, err := rec.decide(context.Background(), p, sub)
	assert.NoError(t, err)
	assert.Equal(t, 1, decision.TierNumber)

	// A manual override lands a third tier-1 unit between decide and persist.
	assert.NoError(t, f.db.Create(&submissiondomain.Submission{
		ID:                    f.node.Generate(),
		OrderNumber:           "ORD-OVERRIDE",
		SellerID:              f.seller.ID,
		CampaignID:            f.campaign.ID,
		RequirementID:         f.frames1.ID,
		DeclaredRequirementID: f.frames1.ID,
		Status:                submissiondomain.StatusValidated,
		ValidatedTierNumber:   &tier,
		SubmittedAt:           f.clock.Now(),
	}).Error)

	assert.NoError(t, rec.persist(context.Background(), p, sub, decision))

	// Tier 1's slot is full; the persisted unit must spill to tier 2.
	got := f.reload(t, sub.ID)
	assert.Equal(t, submissiondomain.StatusValidated, got.Status)
	assert.Equal(t, 2, *got.ValidatedTierNumber)

	var overfilled int64
	f.db.Model(&submissiondomain.Submission{}).
		Where("seller_id = ? AND validated_tier_number = ?", f.seller.ID, 1).
		Count(&overfilled)
	assert.Equal(t, int64(3), overfilled)
}

func TestReconcile_ReassignsToSiblingSlot(t *testing.T) {
	f := newFixture(t)
	sub := f.createPending(t, f.seller, f.frames1, "ORD-1")

	// Declared frames, but the external record says lenses.
	rows := []reconciledomain.ExternalRecord{
		{"order_id": "ORD-1", "org_tax_id": f.branch.TaxID, "category": "lenses"},
	}

	result, err := f.svc.Reconcile(context.Background(), reconciledomain.ReconcileRequest{
		CampaignID:    f.campaign.ID,
		ColumnMapping: testMapping,
		Rows:          rows,
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, result.Validated)

	got := f.reload(t, sub.ID)
	assert.Equal(t, submissiondomain.StatusValidated, got.Status)
	assert.Equal(t, f.lenses1.ID, got.RequirementID)
	assert.Equal(t, f.frames1.ID, got.DeclaredRequirementID)
	assert.NotEmpty(t, got.AttemptLog)
}

func TestReconcile_RejectsWhenNoSlotQualifies(t *testing.T) {
	f := newFixture(t)
	sub := f.createPending(t, f.seller, f.frames1, "ORD-1")

	rows := []reconciledomain.ExternalRecord{
		{"order_id": "ORD-1", "org_tax_id": f.branch.TaxID, "category": "contacts"},
	}

	result, err := f.svc.Reconcile(context.Background(), reconciledomain.ReconcileRequest{
		CampaignID:    f.campaign.ID,
		ColumnMapping: testMapping,
		Rows:          rows,
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, result.Rejected)

	got := f.reload(t, sub.ID)
	assert.Equal(t, submissiondomain.StatusRejected, got.Status)
	assert.Contains(t, *got.RejectionReason, "slot 1")
	assert.Contains(t, *got.RejectionReason, "slot 2")
}

func TestReconcile_SellerConflict(t *testing.T) {
	f := newFixture(t)

	// Rival already validated ORD-1.
	tier := 1
	assert.NoError(t, f.db.Create(&submissiondomain.Submission{
		ID:                    f.node.Generate(),
		OrderNumber:           "ORD-1",
		SellerID:              f.rival.ID,
		CampaignID:            f.campaign.ID,
		RequirementID:         f.frames1.ID,
		DeclaredRequirementID: f.frames1.ID,
		Status:                submissiondomain.StatusValidated,
		ValidatedTierNumber:   &tier,
		SubmittedAt:           f.clock.Now(),
	}).Error)

	sub := f.createPending(t, f.seller, f.frames1, "ORD-1")

	result, err := f.svc.Reconcile(context.Background(), reconciledomain.ReconcileRequest{
		CampaignID:    f.campaign.ID,
		ColumnMapping: testMapping,
		Rows:          []reconciledomain.ExternalRecord{f.frameRow("ORD-1")},
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, result.Conflicts)

	got := f.reload(t, sub.ID)
	assert.Equal(t, submissiondomain.StatusConflict, got.Status)
	assert.Equal(t, "order already validated for another seller", *got.RejectionReason)
}

func TestReconcile_SimulationParity(t *testing.T) {
	f := newFixture(t)
	for _, order := range []string{"ORD-1", "ORD-2", "ORD-3", "ORD-4"} {
		f.createPending(t, f.seller, f.frames1, order)
	}
	rows := []reconciledomain.ExternalRecord{
		f.frameRow("ORD-1"), f.frameRow("ORD-2"), f.frameRow("ORD-3"), f.frameRow("ORD-4"),
	}

	simulated, err := f.svc.Reconcile(context.Background(), reconciledomain.ReconcileRequest{
		CampaignID:    f.campaign.ID,
		Simulate:      true,
		ColumnMapping: testMapping,
		Rows:          rows,
	})
	assert.NoError(t, err)

	// Nothing was written.
	var pending int64
	f.db.Model(&submissiondomain.Submission{}).
		Where("status = ?", submissiondomain.StatusPending).Count(&pending)
	assert.Equal(t, int64(4), pending)
	var entries, runs int64
	f.db.Model(&ledgerdomain.LedgerEntry{}).Count(&entries)
	f.db.Model(&reconciledomain.Run{}).Count(&runs)
	assert.Equal(t, int64(0), entries)
	assert.Equal(t, int64(0), runs)

	persisted, err := f.svc.Reconcile(context.Background(), reconciledomain.ReconcileRequest{
		CampaignID:    f.campaign.ID,
		ColumnMapping: testMapping,
		Rows:          rows,
	})
	assert.NoError(t, err)

	assert.Equal(t, persisted.Validated, simulated.Validated)
	assert.Equal(t, persisted.Rejected, simulated.Rejected)
	assert.Equal(t, persisted.Conflicts, simulated.Conflicts)
	assert.Equal(t, persisted.TotalProcessed, simulated.TotalProcessed)
}

func TestReconcile_SimulatedConflictBetweenSellers(t *testing.T) {
	f := newFixture(t)
	f.createPending(t, f.seller, f.frames1, "ORD-1")
	f.createPending(t, f.rival, f.frames1, "ORD-1")

	result, err := f.svc.Reconcile(context.Background(), reconciledomain.ReconcileRequest{
		CampaignID:    f.campaign.ID,
		Simulate:      true,
		ColumnMapping: testMapping,
		Rows:          []reconciledomain.ExternalRecord{f.frameRow("ORD-1")},
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, result.Validated)
	assert.Equal(t, 1, result.Conflicts)
}

func TestReconcile_FromStagedDataset(t *testing.T) {
	f := newFixture(t)
	sub := f.createPending(t, f.seller, f.frames1, "ORD-1")

	datasetSvc := datasetservice.NewService(datasetservice.Params{
		DB: f.db, Log: zap.NewNop(), GenID: f.node,
	})
	dataset, err := datasetSvc.Stage(context.Background(), datasetdomain.StageDatasetRequest{
		CampaignID: f.campaign.ID,
		ColumnMapping: map[string]string{
			"ORDER_NUMBER":     "order_id",
			"ORG_ID":           "org_tax_id",
			"PRODUCT_CATEGORY": "category",
		},
		Rows: []map[string]string{
			{"order_id": "ORD-1", "org_tax_id": f.branch.TaxID, "category": "frames"},
		},
	})
	assert.NoError(t, err)

	result, err := f.svc.Reconcile(context.Background(), reconciledomain.ReconcileRequest{
		CampaignID: f.campaign.ID,
		DatasetID:  dataset.ID,
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, result.Validated)

	got := f.reload(t, sub.ID)
	assert.Equal(t, submissiondomain.StatusValidated, got.Status)

	reconciled, err := datasetSvc.GetByID(context.Background(), dataset.ID)
	assert.NoError(t, err)
	assert.Equal(t, datasetdomain.StatusReconciled, reconciled.Status)
}

func TestReconcile_MissingMappings(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Reconcile(context.Background(), reconciledomain.ReconcileRequest{
		CampaignID:    f.campaign.ID,
		ColumnMapping: reconciledomain.ColumnMapping{"ORG_ID": "org_tax_id"},
		Rows:          []reconciledomain.ExternalRecord{f.frameRow("ORD-1")},
	})
	assert.ErrorIs(t, err, reconciledomain.ErrMissingOrderMapping)

	_, err = f.svc.Reconcile(context.Background(), reconciledomain.ReconcileRequest{
		CampaignID:    f.campaign.ID,
		ColumnMapping: reconciledomain.ColumnMapping{"ORDER_NUMBER": "order_id"},
		Rows:          []reconciledomain.ExternalRecord{f.frameRow("ORD-1")},
	})
	assert.ErrorIs(t, err, reconciledomain.ErrMissingOrgMapping)

	_, err = f.svc.Reconcile(context.Background(), reconciledomain.ReconcileRequest{
		CampaignID:    f.campaign.ID,
		ColumnMapping: testMapping,
	})
	assert.ErrorIs(t, err, reconciledomain.ErrNoRows)
}
