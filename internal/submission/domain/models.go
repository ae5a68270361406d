// Package domain contains persistence models for seller submissions.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type SubmissionStatus string

const (
	StatusPending   SubmissionStatus = "PENDING"
	StatusValidated SubmissionStatus = "VALIDATED"
	StatusRejected  SubmissionStatus = "REJECTED"
	// StatusConflict marks submissions needing human adjudication, unlike
	// rejection which is a terminal rule failure.
	StatusConflict SubmissionStatus = "CONFLICT"
)

// Submission is one order number submitted by a seller against a campaign
// requirement. OrderNumber is immutable; status is mutated only by the
// reconciliation pipeline and the manual override path. RequirementID may be
// reassigned to a sibling slot of the same tier when the declared one fails
// rule evaluation; the original declaration and the per-sibling attempt log
// are kept for audit.
type Submission struct {
	ID                    snowflake.ID     `gorm:"primaryKey" json:"id"`
	OrderNumber           string           `gorm:"type:text;not null;uniqueIndex:ux_submissions_order_seller_campaign,priority:1" json:"order_number"`
	SellerID              snowflake.ID     `gorm:"not null;index;uniqueIndex:ux_submissions_order_seller_campaign,priority:2" json:"seller_id"`
	CampaignID            snowflake.ID     `gorm:"not null;index;uniqueIndex:ux_submissions_order_seller_campaign,priority:3" json:"campaign_id"`
	RequirementID         snowflake.ID     `gorm:"not null;index" json:"requirement_id"`
	DeclaredRequirementID snowflake.ID     `gorm:"not null" json:"declared_requirement_id"`
	Status                SubmissionStatus `gorm:"type:text;not null;default:'PENDING';index" json:"status"`
	ValidatedTierNumber   *int             `gorm:"index" json:"validated_tier_number,omitempty"`
	RejectionReason       *string          `gorm:"type:text" json:"rejection_reason,omitempty"`
	AttemptLog            datatypes.JSON   `json:"attempt_log,omitempty"`
	SubmittedAt           time.Time        `gorm:"not null" json:"submitted_at"`
	ValidatedAt           *time.Time       `json:"validated_at,omitempty"`
	CreatedAt             time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt             time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Submission) TableName() string { return "submissions" }

var (
	ErrSubmissionNotFound   = errors.New("submission_not_found")
	ErrInvalidSubmission    = errors.New("invalid_submission")
	ErrInvalidOrderNumber   = errors.New("invalid_order_number")
	ErrDuplicateSubmission  = errors.New("duplicate_submission")
	ErrNotOverridable       = errors.New("submission_not_overridable")
	ErrInvalidRejectReason  = errors.New("invalid_reject_reason")
	ErrCampaignNotActive    = errors.New("campaign_not_active")
	ErrRequirementNotInCamp = errors.New("requirement_not_in_campaign")
)
