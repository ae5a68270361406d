// Package domain contains the reward ledger models. TierCompletion is the
// idempotency lock: the existence of the row is the sole proof that rewards
// for a (seller, campaign, tier) were granted. It is created exactly once
// and never updated or deleted.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	campaigndomain "github.com/smallbiznis/incentiva/internal/campaign/domain"
	organizationdomain "github.com/smallbiznis/incentiva/internal/organization/domain"
	submissiondomain "github.com/smallbiznis/incentiva/internal/submission/domain"
	"gorm.io/gorm"
)

// TierCompletion is the settlement lock row, unique per
// (seller, campaign, tier).
type TierCompletion struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	SellerID   snowflake.ID `gorm:"not null;uniqueIndex:ux_tier_completions_seller_campaign_tier,priority:1" json:"seller_id"`
	CampaignID snowflake.ID `gorm:"not null;uniqueIndex:ux_tier_completions_seller_campaign_tier,priority:2" json:"campaign_id"`
	TierNumber int          `gorm:"not null;uniqueIndex:ux_tier_completions_seller_campaign_tier,priority:3" json:"tier_number"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (TierCompletion) TableName() string { return "tier_completions" }

type LedgerEntryKind string

const (
	KindSeller  LedgerEntryKind = "SELLER"
	KindManager LedgerEntryKind = "MANAGER"
)

// LedgerEntry is one append-only reward posting.
type LedgerEntry struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	BeneficiaryID snowflake.ID    `gorm:"not null;index" json:"beneficiary_id"`
	Kind          LedgerEntryKind `gorm:"type:text;not null" json:"kind"`
	CampaignID    snowflake.ID    `gorm:"not null;index" json:"campaign_id"`
	TierNumber    int             `gorm:"not null" json:"tier_number"`
	PointAmount   int64           `gorm:"not null" json:"point_amount"`
	CoinAmount    int64           `gorm:"not null" json:"coin_amount"`
	Note          string          `gorm:"type:text;not null" json:"note"`
	CreatedAt     time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "ledger_entries" }

// LockOutcome is the result of a tier-lock acquisition attempt.
// AlreadyHeld is a normal, expected outcome, not an error.
type LockOutcome int

const (
	LockAcquired LockOutcome = iota
	LockAlreadyHeld
)

// Service settles rewards for validated submissions. Settle must be invoked
// inside the same transaction that persists the submission's VALIDATED
// status; a failure rolls back both.
type Service interface {
	Settle(
		ctx context.Context,
		tx *gorm.DB,
		submission *submissiondomain.Submission,
		ruleSet *campaigndomain.RuleSet,
		seller *organizationdomain.Seller,
	) error
}

var (
	ErrInvalidSubmission = errors.New("invalid_submission")
	ErrMissingTierNumber = errors.New("missing_tier_number")
	ErrUnknownTier       = errors.New("unknown_tier")
	ErrNilTransaction    = errors.New("nil_transaction")
)
