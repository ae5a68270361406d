package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Service exposes seller and organization lookups to the reconciliation
// engine and the HTTP surface.
type Service interface {
	// GetSeller returns the seller with its organization and, when present,
	// the organization's parent preloaded.
	GetSeller(ctx context.Context, id snowflake.ID) (*Seller, error)
	GetOrganization(ctx context.Context, id snowflake.ID) (*Organization, error)
}
