// Package domain contains persistence models for organizations and sellers.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Organization is a customer of the incentive platform. Branch offices
// point at their head office ("matrix") through ParentOrganizationID.
type Organization struct {
	ID                   snowflake.ID  `gorm:"primaryKey" json:"id"`
	Name                 string        `gorm:"type:text;not null" json:"name"`
	Slug                 string        `gorm:"type:text;not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	TaxID                string        `gorm:"type:text;not null;index" json:"tax_id"`
	ParentOrganizationID *snowflake.ID `gorm:"index" json:"parent_organization_id,omitempty"`
	Parent               *Organization `gorm:"foreignKey:ParentOrganizationID" json:"parent,omitempty"`
	CreatedAt            time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt            time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// Seller is a field seller who submits order numbers against campaigns.
// Point and coin balances are incremented only by the reward ledger.
type Seller struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	Name           string        `gorm:"type:text;not null" json:"name"`
	Email          string        `gorm:"type:text;not null;uniqueIndex:ux_sellers_email" json:"email"`
	OrganizationID snowflake.ID  `gorm:"not null;index" json:"organization_id"`
	Organization   *Organization `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
	ManagerID      *snowflake.ID `gorm:"index" json:"manager_id,omitempty"`
	PointsBalance  int64         `gorm:"not null;default:0" json:"points_balance"`
	CoinsBalance   int64         `gorm:"not null;default:0" json:"coins_balance"`
	CreatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Seller) TableName() string { return "sellers" }

var (
	ErrOrganizationNotFound = errors.New("organization_not_found")
	ErrSellerNotFound       = errors.New("seller_not_found")
	ErrInvalidSeller        = errors.New("invalid_seller")
)
