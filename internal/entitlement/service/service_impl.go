package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/extractolabs/conversor/internal/clock"
	"github.com/extractolabs/conversor/internal/entitlement/domain"
	"github.com/extractolabs/conversor/internal/plan"
	usagedomain "github.com/extractolabs/conversor/internal/usage/domain"
)

type ServiceParam struct {
	fx.In

	Log   *zap.Logger
	Repo  domain.Repository
	Usage usagedomain.Service
	Clock clock.Clock
}

type Service struct {
	log   *zap.Logger
	repo  domain.Repository
	usage usagedomain.Service
	clock clock.Clock
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		log:   p.Log.Named("entitlement.service"),
		repo:  p.Repo,
		usage: p.Usage,
		clock: p.Clock,
	}
}

func (s *Service) Check(ctx context.Context, userID snowflake.ID, ip string) (domain.CheckResult, error) {
	identity := usagedomain.Identity{UserID: userID, IP: ip}

	if identity.Anonymous() {
		decision := s.usage.Evaluate(ctx, identity, plan.PlanAnonymous, time.Time{})
		return domain.CheckResult{Plan: plan.PlanAnonymous, Decision: decision}, nil
	}

	row, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		// Same fail-open stance as the evaluator: a broken read must not
		// block a legitimate caller.
		s.log.Warn("entitlement lookup degraded, treating caller as free",
			zap.String("policy", "fail_open"),
			zap.Stringer("user_id", userID),
			zap.Error(err),
		)
		decision := s.usage.Evaluate(ctx, identity, plan.PlanFree, time.Time{})
		return domain.CheckResult{Plan: plan.PlanFree, Decision: decision}, nil
	}

	memberSince := s.clock.Now()
	facts := plan.SubscriptionFacts{Plan: plan.PlanFree}
	if row != nil {
		facts = row.Facts()
		memberSince = row.CreatedAt
	}

	res := plan.Resolve(facts, s.clock.Now())
	decision := s.usage.Evaluate(ctx, identity, res.EffectivePlan, memberSince)
	return domain.CheckResult{
		Plan:               res.EffectivePlan,
		SubscriptionLapsed: res.Lapsed,
		Decision:           decision,
	}, nil
}

// Ensure backfills a free-plan row the first time a registered user shows
// up. Races with a concurrent first request settle on the existing row.
func (s *Service) Ensure(ctx context.Context, userID snowflake.ID, email string) (*domain.UserEntitlement, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, domain.ErrInvalidEmail
	}

	existing, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	row := &domain.UserEntitlement{
		ID:    userID,
		Email: email,
		Plan:  plan.PlanFree,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		if existing, findErr := s.repo.FindByID(ctx, userID); findErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	s.log.Info("entitlement created", zap.Stringer("user_id", userID))
	return row, nil
}

func (s *Service) Get(ctx context.Context, userID snowflake.ID) (*domain.UserEntitlement, error) {
	row, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, domain.ErrNotFound
	}
	return row, nil
}
