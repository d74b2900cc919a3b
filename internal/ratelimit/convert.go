package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/extractolabs/conversor/internal/config"
)

const (
	keyConvertIP   = "convert:ip:%s"
	keyRecordLock  = "convert:record:%s"
	defaultLockTTL = 30 * time.Second
)

// ConvertLimiter throttles conversion requests per source IP and guards
// usage recording with a per-identity lock so a retried request cannot
// double-book the same conversion. A nil limiter disables both checks.
type ConvertLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	ipRate  float64
	ipBurst int
	lockTTL time.Duration
}

func NewConvertLimiter(cfg config.Config) (*ConvertLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.ConvertIPRate <= 0 || limitCfg.ConvertIPBurst <= 0 {
		return nil, errors.New("convert ip rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	lockTTL := time.Duration(limitCfg.RecordLockTTL) * time.Second
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}

	return &ConvertLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		ipRate:  limitCfg.ConvertIPRate,
		ipBurst: limitCfg.ConvertIPBurst,
		lockTTL: lockTTL,
	}, nil
}

func (l *ConvertLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *ConvertLimiter) AllowIP(ctx context.Context, ip string) (bool, time.Duration, error) {
	if !l.Enabled() {
		return true, 0, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyConvertIP, strings.TrimSpace(ip)), l.ipRate, l.ipBurst)
}

func (l *ConvertLimiter) TryRecordLock(ctx context.Context, identity string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, fmt.Sprintf(keyRecordLock, strings.TrimSpace(identity)), l.lockTTL)
}

func (l *ConvertLimiter) ReleaseRecordLock(ctx context.Context, identity, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, fmt.Sprintf(keyRecordLock, strings.TrimSpace(identity)), token)
}
