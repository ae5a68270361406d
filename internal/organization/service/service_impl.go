package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	organizationdomain "github.com/smallbiznis/incentiva/internal/organization/domain"
	"github.com/smallbiznis/incentiva/pkg/db/option"
	"github.com/smallbiznis/incentiva/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	orgRepo    repository.Repository[organizationdomain.Organization]
	sellerRepo repository.Repository[organizationdomain.Seller]
}

func NewService(p Params) organizationdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("organization.service"),
		orgRepo:    repository.ProvideStore[organizationdomain.Organization](p.DB),
		sellerRepo: repository.ProvideStore[organizationdomain.Seller](p.DB),
	}
}

func (s *Service) GetSeller(ctx context.Context, id snowflake.ID) (*organizationdomain.Seller, error) {
	if id == 0 {
		return nil, organizationdomain.ErrInvalidSeller
	}

	seller, err := s.sellerRepo.FindOne(ctx,
		&organizationdomain.Seller{ID: id},
		option.WithPreload("Organization"),
		option.WithPreload("Organization.Parent"),
	)
	if err != nil {
		return nil, err
	}
	if seller == nil {
		return nil, organizationdomain.ErrSellerNotFound
	}
	return seller, nil
}

func (s *Service) GetOrganization(ctx context.Context, id snowflake.ID) (*organizationdomain.Organization, error) {
	org, err := s.orgRepo.FindOne(ctx,
		&organizationdomain.Organization{ID: id},
		option.WithPreload("Parent"),
	)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, organizationdomain.ErrOrganizationNotFound
	}
	return org, nil
}
