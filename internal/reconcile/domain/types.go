// Package domain defines the reconciliation engine's contract: external
// records located by a caller-supplied column mapping, per-submission
// decisions and batch results.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	submissiondomain "github.com/smallbiznis/incentiva/internal/submission/domain"
	"gorm.io/datatypes"
)

// Logical field names resolved through the column mapping. The caller
// guarantees at least the order-number and organization-identifier entries.
const (
	FieldOrderNumber = "ORDER_NUMBER"
	FieldOrgID       = "ORG_ID"
)

// ColumnMapping maps logical field names to external column names.
type ColumnMapping map[string]string

// Column returns the external column bound to the logical field.
func (m ColumnMapping) Column(field string) (string, bool) {
	column, ok := m[field]
	return column, ok && column != ""
}

// ExternalRecord is one row of the external dataset.
type ExternalRecord map[string]string

// MatchVia reports how an organization identity matched.
type MatchVia string

const (
	ViaDirect MatchVia = "DIRECT"
	ViaParent MatchVia = "PARENT"
	ViaNone   MatchVia = "NONE"
)

// Decision is the outcome of reconciling a single submission. Decisions are
// computed by a pure decide step; persistence happens afterwards, per
// submission, in its own transaction.
type Decision struct {
	SubmissionID snowflake.ID
	Status       submissiondomain.SubmissionStatus
	// RequirementID is the effective requirement after any reassignment.
	RequirementID snowflake.ID
	TierNumber    int
	Reason        string
	AttemptLog    []string
}

type ReconcileRequest struct {
	CampaignID    snowflake.ID
	Simulate      bool
	ColumnMapping ColumnMapping
	Rows          []ExternalRecord
	// DatasetID selects a staged dataset when Rows is empty.
	DatasetID snowflake.ID
}

// BatchResult aggregates one reconciliation pass. Failed counts submissions
// whose own transaction failed; they stay PENDING and do not abort the rest.
type BatchResult struct {
	RunID          string `json:"run_id"`
	TotalProcessed int    `json:"total_processed"`
	Validated      int    `json:"validated"`
	Rejected       int    `json:"rejected"`
	Conflicts      int    `json:"conflicts"`
	Failed         int    `json:"failed"`
}

// Run records one reconciliation pass for the operator audit trail.
type Run struct {
	ID             string            `gorm:"primaryKey;type:text" json:"id"`
	CampaignID     snowflake.ID      `gorm:"not null;index" json:"campaign_id"`
	Simulate       bool              `gorm:"not null" json:"simulate"`
	TotalProcessed int               `gorm:"not null" json:"total_processed"`
	Validated      int               `gorm:"not null" json:"validated"`
	Rejected       int               `gorm:"not null" json:"rejected"`
	Conflicts      int               `gorm:"not null" json:"conflicts"`
	Failed         int               `gorm:"not null" json:"failed"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`
	StartedAt      time.Time         `gorm:"not null" json:"started_at"`
	FinishedAt     time.Time         `gorm:"not null" json:"finished_at"`
}

// TableName sets the database table name.
func (Run) TableName() string { return "reconciliation_runs" }

// Service runs batch reconciliation for a campaign.
type Service interface {
	Reconcile(ctx context.Context, req ReconcileRequest) (BatchResult, error)
}

var (
	ErrMissingOrderMapping = errors.New("missing_order_number_mapping")
	ErrMissingOrgMapping   = errors.New("missing_org_id_mapping")
	ErrNoRows              = errors.New("no_external_rows")
)
