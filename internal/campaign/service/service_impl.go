package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	campaigndomain "github.com/smallbiznis/incentiva/internal/campaign/domain"
	"github.com/smallbiznis/incentiva/pkg/db/option"
	"github.com/smallbiznis/incentiva/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node

	campaignRepo    repository.Repository[campaigndomain.Campaign]
	tierRepo        repository.Repository[campaigndomain.Tier]
	requirementRepo repository.Repository[campaigndomain.Requirement]
}

func NewService(p Params) campaigndomain.Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("campaign.service"),
		genID:           p.GenID,
		campaignRepo:    repository.ProvideStore[campaigndomain.Campaign](p.DB),
		tierRepo:        repository.ProvideStore[campaigndomain.Tier](p.DB),
		requirementRepo: repository.ProvideStore[campaigndomain.Requirement](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req campaigndomain.CreateCampaignRequest) (*campaigndomain.Campaign, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, campaigndomain.ErrInvalidName
	}
	if req.StartAt.IsZero() || req.EndAt.IsZero() || !req.EndAt.After(req.StartAt) {
		return nil, campaigndomain.ErrInvalidSchedule
	}

	commission := decimal.Zero
	if strings.TrimSpace(req.ManagerCommissionPercent) != "" {
		parsed, err := decimal.NewFromString(strings.TrimSpace(req.ManagerCommissionPercent))
		if err != nil || parsed.IsNegative() {
			return nil, campaigndomain.ErrInvalidCampaign
		}
		commission = parsed
	}

	campaign := &campaigndomain.Campaign{
		ID:                       s.genID.Generate(),
		Name:                     name,
		Slug:                     slug.Make(name),
		Status:                   campaigndomain.CampaignStatusDraft,
		ManagerCommissionPercent: commission,
		StartAt:                  req.StartAt.UTC(),
		EndAt:                    req.EndAt.UTC(),
	}
	if err := s.campaignRepo.Create(ctx, campaign); err != nil {
		return nil, err
	}
	return campaign, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*campaigndomain.Campaign, error) {
	if id == 0 {
		return nil, campaigndomain.ErrInvalidCampaign
	}
	campaign, err := s.campaignRepo.FindOne(ctx, &campaigndomain.Campaign{ID: id})
	if err != nil {
		return nil, err
	}
	if campaign == nil {
		return nil, campaigndomain.ErrCampaignNotFound
	}
	return campaign, nil
}

func (s *Service) ResolveRuleSet(ctx context.Context, campaignID snowflake.ID) (*campaigndomain.RuleSet, error) {
	campaign, err := s.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	tiers, err := s.tierRepo.Find(ctx,
		&campaigndomain.Tier{CampaignID: campaignID},
		option.WithOrder("tier_number ASC"),
	)
	if err != nil {
		return nil, err
	}

	requirements, err := s.requirementRepo.Find(ctx,
		&campaigndomain.Requirement{CampaignID: campaignID},
		option.WithPreload("Conditions"),
		option.WithOrder("tier_number ASC, slot_order ASC"),
	)
	if err != nil {
		return nil, err
	}

	return campaigndomain.NewRuleSet(campaign, tiers, requirements), nil
}

func (s *Service) ListActive(ctx context.Context) ([]*campaigndomain.Campaign, error) {
	return s.campaignRepo.Find(ctx,
		&campaigndomain.Campaign{Status: campaigndomain.CampaignStatusActive},
		option.WithOrder("created_at ASC"),
	)
}
