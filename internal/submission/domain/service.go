package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/incentiva/pkg/db/pagination"
)

type CreateSubmissionRequest struct {
	OrderNumber   string `json:"order_number"`
	SellerID      string `json:"seller_id"`
	CampaignID    string `json:"campaign_id"`
	RequirementID string `json:"requirement_id"`
}

type ListSubmissionsRequest struct {
	CampaignID string `form:"campaign_id"`
	SellerID   string `form:"seller_id"`
	Status     string `form:"status"`
	pagination.Pagination
}

type ListSubmissionsResponse struct {
	pagination.PageInfo
	Submissions []*Submission `json:"submissions"`
}

// Service exposes submission intake, listing and the manual override path.
// ValidateOne and RejectOne share the spillover and settlement code with the
// batch reconciler.
type Service interface {
	Create(ctx context.Context, req CreateSubmissionRequest) (*Submission, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Submission, error)
	List(ctx context.Context, req ListSubmissionsRequest) (ListSubmissionsResponse, error)
	ValidateOne(ctx context.Context, id snowflake.ID) (*Submission, error)
	RejectOne(ctx context.Context, id snowflake.ID, reason string) (*Submission, error)
}
