package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/extractolabs/conversor/internal/conversion/domain"
	entdomain "github.com/extractolabs/conversor/internal/entitlement/domain"
	"github.com/extractolabs/conversor/internal/ratelimit"
	usagedomain "github.com/extractolabs/conversor/internal/usage/domain"
)

type ServiceParam struct {
	fx.In

	Log         *zap.Logger
	Entitlement entdomain.Service
	Usage       usagedomain.Service
	Limiter     *ratelimit.ConvertLimiter `optional:"true"`
}

type Service struct {
	log         *zap.Logger
	entitlement entdomain.Service
	usage       usagedomain.Service
	limiter     *ratelimit.ConvertLimiter
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		log:         p.Log.Named("conversion.service"),
		entitlement: p.Entitlement,
		usage:       p.Usage,
		limiter:     p.Limiter,
	}
}

func (s *Service) Complete(ctx context.Context, req domain.CompleteRequest) (domain.CompleteResult, error) {
	if req.PagesCount < 1 {
		return domain.CompleteResult{}, usagedomain.ErrInvalidPages
	}

	identity := usagedomain.Identity{UserID: req.UserID, IP: req.IP}
	if identity.Anonymous() && req.IP == "" {
		return domain.CompleteResult{}, usagedomain.ErrInvalidIdentity
	}

	allowed, _, err := s.limiter.AllowIP(ctx, req.IP)
	if err != nil {
		// Throttling is advisory. A broken limiter never blocks traffic.
		s.log.Warn("ip throttle check degraded, allowing request",
			zap.String("policy", "fail_open"),
			zap.String("ip", req.IP),
			zap.Error(err),
		)
	} else if !allowed {
		return domain.CompleteResult{}, domain.ErrThrottled
	}

	check, err := s.entitlement.Check(ctx, req.UserID, req.IP)
	if err != nil {
		return domain.CompleteResult{}, err
	}
	if !check.Decision.CanProcess {
		return domain.CompleteResult{Plan: check.Plan, Decision: check.Decision}, domain.ErrLimitExceeded
	}

	if req.RequestKey != "" {
		lockKey := s.lockKey(req)
		token, ok, lockErr := s.limiter.TryRecordLock(ctx, lockKey)
		if lockErr != nil {
			s.log.Warn("record lock degraded, booking without dedup guard",
				zap.String("policy", "fail_open"),
				zap.Error(lockErr),
			)
		} else if !ok {
			return domain.CompleteResult{Plan: check.Plan, Decision: check.Decision}, domain.ErrDuplicateRequest
		} else {
			defer func() {
				if err := s.limiter.ReleaseRecordLock(ctx, lockKey, token); err != nil {
					s.log.Warn("record lock release failed", zap.Error(err))
				}
			}()
		}
	}

	if err := s.usage.Record(ctx, usagedomain.RecordRequest{
		Identity:          identity,
		PagesCount:        req.PagesCount,
		FilesCount:        req.FilesCount,
		Filename:          req.Filename,
		TransactionsCount: req.TransactionsCount,
		Metadata:          req.Metadata,
	}); err != nil {
		// The conversion was already delivered. Surface the failure but
		// report the standing we could compute.
		s.log.Error("usage recording incomplete", zap.Error(err))
		return domain.CompleteResult{Plan: check.Plan, Decision: check.Decision}, err
	}

	return domain.CompleteResult{Plan: check.Plan, Decision: check.Decision}, nil
}

func (s *Service) lockKey(req domain.CompleteRequest) string {
	who := req.IP
	if req.UserID != 0 {
		who = req.UserID.String()
	}
	return fmt.Sprintf("%s:%s", who, req.RequestKey)
}

func (s *Service) History(ctx context.Context, userID snowflake.ID, limit int) ([]usagedomain.ConversionEvent, error) {
	return s.usage.History(ctx, userID, limit)
}
