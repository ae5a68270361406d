package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	submissiondomain "github.com/smallbiznis/incentiva/internal/submission/domain"
	"gorm.io/gorm"
)

// hasConflict reports whether a different seller already holds a VALIDATED
// submission for the same (orderNumber, campaign). It runs after rule
// evaluation succeeds and before the ledger is touched.
func hasConflict(
	ctx context.Context,
	conn *gorm.DB,
	orderNumber string,
	campaignID, candidateSellerID snowflake.ID,
) (bool, error) {
	var count int64
	err := conn.WithContext(ctx).
		Model(&submissiondomain.Submission{}).
		Where("order_number = ? AND campaign_id = ? AND status = ? AND seller_id <> ?",
			orderNumber, campaignID, submissiondomain.StatusValidated, candidateSellerID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
