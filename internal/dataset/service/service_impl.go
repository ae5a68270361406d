package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/smallbiznis/incentiva/internal/dataset/domain"
	"github.com/smallbiznis/incentiva/pkg/db/option"
	"github.com/smallbiznis/incentiva/pkg/repository"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	datasetRepo repository.Repository[domain.Dataset]
	rowRepo     repository.Repository[domain.DatasetRow]
}

func NewService(p Params) domain.Service {
	return &service{
		db:          p.DB,
		log:         p.Log,
		genID:       p.GenID,
		datasetRepo: repository.ProvideStore[domain.Dataset](p.DB),
		rowRepo:     repository.ProvideStore[domain.DatasetRow](p.DB),
	}
}

func (s *service) Stage(ctx context.Context, req domain.StageDatasetRequest) (*domain.Dataset, error) {
	if req.CampaignID == 0 {
		return nil, fmt.Errorf("%w: campaign id is required", domain.ErrInvalidDataset)
	}
	if len(req.Rows) == 0 {
		return nil, domain.ErrEmptyDataset
	}

	mapping := datatypes.JSONMap{}
	for field, column := range req.ColumnMapping {
		mapping[field] = column
	}

	dataset := &domain.Dataset{
		ID:            s.genID.Generate(),
		CampaignID:    req.CampaignID,
		Status:        domain.StatusReady,
		ColumnMapping: mapping,
		RowCount:      len(req.Rows),
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(dataset).Error; err != nil {
			return err
		}

		rows := make([]domain.DatasetRow, 0, len(req.Rows))
		for i, raw := range req.Rows {
			cells := datatypes.JSONMap{}
			for k, v := range raw {
				cells[k] = v
			}
			rows = append(rows, domain.DatasetRow{
				ID:        s.genID.Generate(),
				DatasetID: dataset.ID,
				RowIndex:  i,
				Cells:     cells,
			})
		}

		return tx.CreateInBatches(rows, 500).Error
	}); err != nil {
		return nil, err
	}

	s.log.Info("dataset staged",
		zap.String("dataset_id", dataset.ID.String()),
		zap.String("campaign_id", dataset.CampaignID.String()),
		zap.Int("row_count", dataset.RowCount),
	)

	return dataset, nil
}

func (s *service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Dataset, error) {
	dataset, err := s.datasetRepo.FindOne(ctx, &domain.Dataset{ID: id})
	if err != nil {
		return nil, err
	}
	if dataset == nil {
		return nil, domain.ErrDatasetNotFound
	}
	return dataset, nil
}

func (s *service) Rows(ctx context.Context, id snowflake.ID) ([]map[string]string, error) {
	stored, err := s.rowRepo.Find(ctx, &domain.DatasetRow{DatasetID: id},
		option.WithOrder("row_index ASC"),
	)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]string, 0, len(stored))
	for _, r := range stored {
		cells := make(map[string]string, len(r.Cells))
		for k, v := range r.Cells {
			if sv, ok := v.(string); ok {
				cells[k] = sv
			} else {
				cells[k] = fmt.Sprint(v)
			}
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func (s *service) FindReady(ctx context.Context, campaignID snowflake.ID) ([]*domain.Dataset, error) {
	return s.datasetRepo.Find(ctx, &domain.Dataset{
		CampaignID: campaignID,
		Status:     domain.StatusReady,
	}, option.WithOrder("created_at ASC"))
}

func (s *service) MarkReconciled(ctx context.Context, id snowflake.ID) error {
	return s.db.WithContext(ctx).Model(&domain.Dataset{}).
		Where("id = ?", id).
		Update("status", domain.StatusReconciled).Error
}
