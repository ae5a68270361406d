// Package domain contains staged external datasets: uploaded ERP exports
// parsed into rows elsewhere and persisted here for the periodic
// reconciler. Header-to-column parsing beyond simple lookup is out of
// scope; rows arrive as flat string maps.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type DatasetStatus string

const (
	StatusReady      DatasetStatus = "ready"
	StatusReconciled DatasetStatus = "reconciled"
)

// Dataset is the header of one staged export.
type Dataset struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	CampaignID    snowflake.ID      `gorm:"not null;index" json:"campaign_id"`
	Status        DatasetStatus     `gorm:"type:text;not null;default:'ready';index" json:"status"`
	ColumnMapping datatypes.JSONMap `gorm:"type:jsonb;not null" json:"column_mapping"`
	RowCount      int               `gorm:"not null" json:"row_count"`
	CreatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Dataset) TableName() string { return "datasets" }

// DatasetRow is one row of the staged export.
type DatasetRow struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	DatasetID snowflake.ID      `gorm:"not null;index" json:"dataset_id"`
	RowIndex  int               `gorm:"not null" json:"row_index"`
	Cells     datatypes.JSONMap `gorm:"type:jsonb;not null" json:"cells"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (DatasetRow) TableName() string { return "dataset_rows" }

type StageDatasetRequest struct {
	CampaignID    snowflake.ID
	ColumnMapping map[string]string
	Rows          []map[string]string
}

// Service stages datasets and serves them back to the reconciler.
type Service interface {
	Stage(ctx context.Context, req StageDatasetRequest) (*Dataset, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Dataset, error)
	// Rows returns the dataset's rows in staged order.
	Rows(ctx context.Context, id snowflake.ID) ([]map[string]string, error)
	// FindReady returns ready datasets for the campaign, oldest first.
	FindReady(ctx context.Context, campaignID snowflake.ID) ([]*Dataset, error)
	MarkReconciled(ctx context.Context, id snowflake.ID) error
}

var (
	ErrDatasetNotFound = errors.New("dataset_not_found")
	ErrInvalidDataset  = errors.New("invalid_dataset")
	ErrEmptyDataset    = errors.New("empty_dataset")
)
