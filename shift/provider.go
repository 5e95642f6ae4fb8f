// Package shift looks up the shift a user is held to when capturing
// attendance. Lookups never fail the caller: a missing shift or a broken
// lookup both yield nil and callers fall back to the default rules.
package shift

import (
	"context"
	"encoding/json"
	"time"

	"timekeeping/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const CacheKeyPrefix = "attendance:shift:user:"

func CacheKey(userID uuid.UUID) string {
	return CacheKeyPrefix + userID.String()
}

type Provider interface {
	GetShiftForUser(ctx context.Context, userID uuid.UUID) *models.Shift
	Invalidate(ctx context.Context, userID uuid.UUID)
}

type provider struct {
	repo   Repository
	rdb    redis.Cmdable
	ttl    time.Duration
	sf     *singleflight.Group
	logger *zap.Logger
}

// NewProvider returns a Provider. rdb may be nil to disable caching.
func NewProvider(repo Repository, rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) Provider {
	if logger == nil {
		logger = zap.L()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &provider{
		repo:   repo,
		rdb:    rdb,
		ttl:    ttl,
		sf:     &singleflight.Group{},
		logger: logger.Named("shift.provider"),
	}
}

func (p *provider) GetShiftForUser(ctx context.Context, userID uuid.UUID) *models.Shift {
	key := CacheKey(userID)

	if p.rdb != nil {
		cached, err := p.rdb.Get(ctx, key).Result()
		if err == nil {
			var s models.Shift
			if err := json.Unmarshal([]byte(cached), &s); err == nil {
				return &s
			}
		} else if err != redis.Nil {
			p.logger.Warn("shift cache read failed", zap.String("user_id", userID.String()), zap.Error(err))
		}
	}

	v, err, _ := p.sf.Do(key, func() (interface{}, error) {
		s, err := p.repo.FindShiftForUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		if s != nil && p.rdb != nil {
			if data, err := json.Marshal(s); err == nil {
				if err := p.rdb.Set(ctx, key, data, p.ttl).Err(); err != nil {
					p.logger.Warn("shift cache write failed", zap.String("user_id", userID.String()), zap.Error(err))
				}
			}
		}
		return s, nil
	})
	if err != nil {
		p.logger.Warn("shift lookup failed, using default rules",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		return nil
	}

	s, _ := v.(*models.Shift)
	if s == nil {
		p.logger.Debug("user has no shift, using default rules", zap.String("user_id", userID.String()))
	}
	return s
}

func (p *provider) Invalidate(ctx context.Context, userID uuid.UUID) {
	if p.rdb == nil {
		return
	}
	if err := p.rdb.Del(ctx, CacheKey(userID)).Err(); err != nil {
		p.logger.Warn("shift cache invalidate failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
}
