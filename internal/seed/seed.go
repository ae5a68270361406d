// Package seed bootstraps demo data for local development: a matrix
// organization with one branch, a manager with two sellers, and an active
// two-tier campaign with two requirement slots.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	campaigndomain "github.com/smallbiznis/incentiva/internal/campaign/domain"
	organizationdomain "github.com/smallbiznis/incentiva/internal/organization/domain"
)

const (
	demoMatrixSlug   = "acme-distribution"
	demoBranchSlug   = "acme-distribution-east"
	demoCampaignSlug = "q3-frame-push"
)

// EnsureDemoData is idempotent; it keys off the demo slugs and does nothing
// when they already exist.
func EnsureDemoData(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		matrix, branch, err := ensureDemoOrgs(ctx, tx, node)
		if err != nil {
			return err
		}
		if err := ensureDemoSellers(ctx, tx, node, matrix, branch); err != nil {
			return err
		}
		return ensureDemoCampaign(ctx, tx, node)
	})
}

func ensureDemoOrgs(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (*organizationdomain.Organization, *organizationdomain.Organization, error) {
	matrix, err := findOrgBySlug(ctx, tx, demoMatrixSlug)
	if err != nil {
		return nil, nil, err
	}
	if matrix == nil {
		matrix = &organizationdomain.Organization{
			ID:    node.Generate(),
			Name:  "Acme Distribution",
			Slug:  demoMatrixSlug,
			TaxID: "12345678000100",
		}
		if err := tx.WithContext(ctx).Create(matrix).Error; err != nil {
			return nil, nil, err
		}
	}

	branch, err := findOrgBySlug(ctx, tx, demoBranchSlug)
	if err != nil {
		return nil, nil, err
	}
	if branch == nil {
		branch = &organizationdomain.Organization{
			ID:                   node.Generate(),
			Name:                 "Acme Distribution East",
			Slug:                 demoBranchSlug,
			TaxID:                "12345678000282",
			ParentOrganizationID: &matrix.ID,
		}
		if err := tx.WithContext(ctx).Create(branch).Error; err != nil {
			return nil, nil, err
		}
	}

	return matrix, branch, nil
}

func findOrgBySlug(ctx context.Context, tx *gorm.DB, slug string) (*organizationdomain.Organization, error) {
	var org organizationdomain.Organization
	err := tx.WithContext(ctx).Where("slug = ?", slug).First(&org).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &org, nil
}

func ensureDemoSellers(ctx context.Context, tx *gorm.DB, node *snowflake.Node, matrix, branch *organizationdomain.Organization) error {
	manager, err := ensureSeller(ctx, tx, node, &organizationdomain.Seller{
		Name:           "Dana Reyes",
		Email:          "dana.reyes@acme.example",
		OrganizationID: matrix.ID,
	})
	if err != nil {
		return err
	}

	if _, err := ensureSeller(ctx, tx, node, &organizationdomain.Seller{
		Name:           "Luis Prado",
		Email:          "luis.prado@acme.example",
		OrganizationID: branch.ID,
		ManagerID:      &manager.ID,
	}); err != nil {
		return err
	}

	_, err = ensureSeller(ctx, tx, node, &organizationdomain.Seller{
		Name:           "Mina Okafor",
		Email:          "mina.okafor@acme.example",
		OrganizationID: branch.ID,
		ManagerID:      &manager.ID,
	})
	return err
}

func ensureSeller(ctx context.Context, tx *gorm.DB, node *snowflake.Node, seller *organizationdomain.Seller) (*organizationdomain.Seller, error) {
	var existing organizationdomain.Seller
	err := tx.WithContext(ctx).Where("email = ?", seller.Email).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	seller.ID = node.Generate()
	if err := tx.WithContext(ctx).Create(seller).Error; err != nil {
		return nil, err
	}
	return seller, nil
}

func ensureDemoCampaign(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	var existing campaigndomain.Campaign
	err := tx.WithContext(ctx).Where("slug = ?", demoCampaignSlug).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	now := time.Now().UTC()
	campaign := &campaigndomain.Campaign{
		ID:                       node.Generate(),
		Name:                     "Q3 Frame Push",
		Slug:                     demoCampaignSlug,
		Status:                   campaigndomain.CampaignStatusActive,
		ManagerCommissionPercent: decimal.NewFromFloat(2.5),
		StartAt:                  now.AddDate(0, -1, 0),
		EndAt:                    now.AddDate(0, 2, 0),
	}
	if err := tx.WithContext(ctx).Create(campaign).Error; err != nil {
		return err
	}

	tiers := []campaigndomain.Tier{
		{ID: node.Generate(), CampaignID: campaign.ID, TierNumber: 1, PointAmount: 100, CoinAmount: 10},
		{ID: node.Generate(), CampaignID: campaign.ID, TierNumber: 2, PointAmount: 250, CoinAmount: 25},
	}
	if err := tx.WithContext(ctx).Create(&tiers).Error; err != nil {
		return err
	}

	for _, tierNumber := range []int{1, 2} {
		frames := &campaigndomain.Requirement{
			ID:             node.Generate(),
			CampaignID:     campaign.ID,
			TierNumber:     tierNumber,
			SlotOrder:      1,
			TargetQuantity: 3,
			UnitType:       "order",
		}
		if err := tx.WithContext(ctx).Create(frames).Error; err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Create(&campaigndomain.Condition{
			ID:            node.Generate(),
			RequirementID: frames.ID,
			Field:         "PRODUCT_CATEGORY",
			Operator:      campaigndomain.OperatorEquals,
			ExpectedValue: "frames",
		}).Error; err != nil {
			return err
		}

		lenses := &campaigndomain.Requirement{
			ID:             node.Generate(),
			CampaignID:     campaign.ID,
			TierNumber:     tierNumber,
			SlotOrder:      2,
			TargetQuantity: 2,
			UnitType:       "order",
		}
		if err := tx.WithContext(ctx).Create(lenses).Error; err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Create(&campaigndomain.Condition{
			ID:            node.Generate(),
			RequirementID: lenses.ID,
			Field:         "PRODUCT_CATEGORY",
			Operator:      campaigndomain.OperatorEquals,
			ExpectedValue: "lenses",
		}).Error; err != nil {
			return err
		}
	}

	return nil
}
