package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/incentiva/internal/config"
)

const keySubmissionIntakeSeller = "submission:intake:seller:%s"

// SubmissionIntakeLimiter throttles submission creation per seller. A nil
// limiter is valid and means the feature is off.
type SubmissionIntakeLimiter struct {
	enabled bool

	bucket *TokenBucket

	sellerRate  float64
	sellerBurst int
}

func NewSubmissionIntakeLimiter(cfg config.Config) (*SubmissionIntakeLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.SellerRate <= 0 || limitCfg.SellerBurst <= 0 {
		return nil, errors.New("seller rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &SubmissionIntakeLimiter{
		enabled:     true,
		bucket:      NewTokenBucket(client),
		sellerRate:  limitCfg.SellerRate,
		sellerBurst: limitCfg.SellerBurst,
	}, nil
}

func (l *SubmissionIntakeLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *SubmissionIntakeLimiter) AllowSeller(ctx context.Context, sellerID string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	return l.bucket.Allow(ctx,
		fmt.Sprintf(keySubmissionIntakeSeller, strings.TrimSpace(sellerID)),
		l.sellerRate, l.sellerBurst,
	)
}
