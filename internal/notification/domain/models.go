// Package domain contains the notification sink consumed by the reward
// pipeline. Delivery transport is out of scope; rows are drained by an
// external dispatcher.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type NotificationKind string

const (
	KindSubmissionAccepted NotificationKind = "submission_accepted"
	KindSubmissionRejected NotificationKind = "submission_rejected"
	KindTierCompleted      NotificationKind = "tier_completed"
)

// Notification is one message queued for a beneficiary.
type Notification struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	BeneficiaryID snowflake.ID      `gorm:"not null;index" json:"beneficiary_id"`
	Kind          NotificationKind  `gorm:"type:text;not null;index" json:"kind"`
	Message       string            `gorm:"type:text;not null" json:"message"`
	Metadata      datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`
	CreatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Notification) TableName() string { return "notifications" }

type CreateNotificationRequest struct {
	BeneficiaryID snowflake.ID
	Kind          NotificationKind
	Message       string
	Metadata      map[string]any
}

// Sink accepts notifications. When tx is non-nil the row is written inside
// that transaction so reward notifications commit atomically with rewards.
type Sink interface {
	Notify(ctx context.Context, tx *gorm.DB, req CreateNotificationRequest) error
}

var (
	ErrInvalidBeneficiary = errors.New("invalid_beneficiary")
	ErrInvalidMessage     = errors.New("invalid_message")
)
