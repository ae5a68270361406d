// Package domain contains persistence models for campaigns and their rule
// sets. A campaign groups requirements ("cards") into tiers; requirements
// sharing a slot order across tiers are the same logical slot at different
// tiers and must be counted together for spillover.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type CampaignStatus string

const (
	CampaignStatusDraft  CampaignStatus = "draft"
	CampaignStatusActive CampaignStatus = "active"
	CampaignStatusClosed CampaignStatus = "closed"
)

// Campaign is one incentive campaign.
type Campaign struct {
	ID     snowflake.ID   `gorm:"primaryKey" json:"id"`
	Name   string         `gorm:"type:text;not null" json:"name"`
	Slug   string         `gorm:"type:text;not null;uniqueIndex:ux_campaigns_slug" json:"slug"`
	Status CampaignStatus `gorm:"type:text;not null;default:'draft';index" json:"status"`

	// ManagerCommissionPercent is the percentage of a tier's reward paid to
	// the seller's manager when a tier completes. Zero disables it.
	ManagerCommissionPercent decimal.Decimal `gorm:"type:numeric(7,4);not null;default:0" json:"manager_commission_percent"`

	StartAt   time.Time `gorm:"not null" json:"start_at"`
	EndAt     time.Time `gorm:"not null" json:"end_at"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Campaign) TableName() string { return "campaigns" }

// Tier groups the requirements under one tier number and carries the reward
// amounts granted when every requirement of the tier meets its target.
type Tier struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	CampaignID  snowflake.ID `gorm:"not null;index;uniqueIndex:ux_tiers_campaign_number,priority:1" json:"campaign_id"`
	TierNumber  int          `gorm:"not null;uniqueIndex:ux_tiers_campaign_number,priority:2" json:"tier_number"`
	PointAmount int64        `gorm:"not null;default:0" json:"point_amount"`
	CoinAmount  int64        `gorm:"not null;default:0" json:"coin_amount"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Tier) TableName() string { return "tiers" }

// Requirement is one card slot inside a tier.
type Requirement struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	CampaignID     snowflake.ID `gorm:"not null;index" json:"campaign_id"`
	TierNumber     int          `gorm:"not null;index" json:"tier_number"`
	SlotOrder      int          `gorm:"not null" json:"slot_order"`
	TargetQuantity int          `gorm:"not null" json:"target_quantity"`
	UnitType       string       `gorm:"type:text;not null" json:"unit_type"`
	Conditions     []Condition  `gorm:"foreignKey:RequirementID" json:"conditions"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Requirement) TableName() string { return "requirements" }

type ConditionOperator string

const (
	OperatorEquals      ConditionOperator = "EQUALS"
	OperatorNotEquals   ConditionOperator = "NOT_EQUALS"
	OperatorContains    ConditionOperator = "CONTAINS"
	OperatorNotContains ConditionOperator = "NOT_CONTAINS"
	OperatorGreaterThan ConditionOperator = "GREATER_THAN"
	OperatorLessThan    ConditionOperator = "LESS_THAN"
)

// Condition is one data-driven rule on a requirement. All conditions of a
// requirement are AND-ed; a requirement without conditions is vacuously
// satisfied.
type Condition struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	RequirementID snowflake.ID      `gorm:"not null;index" json:"requirement_id"`
	Field         string            `gorm:"type:text;not null" json:"field"`
	Operator      ConditionOperator `gorm:"type:text;not null" json:"operator"`
	ExpectedValue string            `gorm:"type:text;not null" json:"expected_value"`
	CreatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Condition) TableName() string { return "conditions" }

var (
	ErrCampaignNotFound = errors.New("campaign_not_found")
	ErrInvalidCampaign  = errors.New("invalid_campaign")
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidSchedule  = errors.New("invalid_schedule")
	ErrInvalidTier      = errors.New("invalid_tier")
	ErrInvalidSlot      = errors.New("invalid_slot")
)
