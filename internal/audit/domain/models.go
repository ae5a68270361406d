// Package domain contains the append-only audit log written alongside
// reconciliation decisions and reward settlements.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog is one immutable audit row.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	ActorType  string            `gorm:"type:text;not null;index" json:"actor_type"`
	ActorID    string            `gorm:"type:text;not null" json:"actor_id"`
	Action     string            `gorm:"type:text;not null;index" json:"action"`
	TargetType string            `gorm:"type:text;not null;index" json:"target_type"`
	TargetID   string            `gorm:"type:text;not null;index" json:"target_id"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }

// Service records audit events. Actor identity is taken from the context.
// When tx is non-nil the row is written inside that transaction so the
// audit trail commits atomically with the change it describes.
type Service interface {
	AuditLog(ctx context.Context, tx *gorm.DB, action, targetType, targetID string, metadata map[string]any) error
}

var ErrInvalidAction = errors.New("invalid_action")
