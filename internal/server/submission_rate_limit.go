package server

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/incentiva/internal/observability/logger"
)

type submissionRateLimitKey struct {
	SellerID string `json:"seller_id"`
}

// SubmissionIntakeRateLimit throttles submission creation per seller. The
// body is peeked for the seller identifier and restored for the handler.
func (s *Server) SubmissionIntakeRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.intakeLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()

		sellerID, err := readSubmissionSellerID(c)
		if err != nil {
			logger.FromContext(ctx).Warn("submission rate limit read body failed", zap.Error(err))
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		if sellerID == "" {
			c.Next()
			return
		}

		allowed, err := s.intakeLimiter.AllowSeller(ctx, sellerID)
		if err != nil {
			logger.FromContext(ctx).Warn("submission rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !allowed {
			logger.FromContext(ctx).Warn("submission rate limit exceeded",
				zap.String("seller_id", sellerID),
			)
			if s.obsMetrics != nil {
				s.obsMetrics.RecordRateLimitDenied(ctx, c.FullPath())
			}
			c.Header("Retry-After", "1")
			AbortWithError(c, ErrRateLimited)
			return
		}

		c.Next()
	}
}

func readSubmissionSellerID(c *gin.Context) (string, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", err
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	if len(body) == 0 {
		return "", nil
	}

	var payload submissionRateLimitKey
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", nil
	}
	return strings.TrimSpace(payload.SellerID), nil
}
