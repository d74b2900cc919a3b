package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/extractolabs/conversor/internal/clock"
	"github.com/extractolabs/conversor/internal/config"
	obsmetrics "github.com/extractolabs/conversor/internal/observability/metrics"
	"github.com/extractolabs/conversor/internal/plan"
	usagedomain "github.com/extractolabs/conversor/internal/usage/domain"
)

const (
	cooldownWindow = 24 * time.Hour
	rollingWindow  = 30 * 24 * time.Hour
)

type ServiceParam struct {
	fx.In

	Log     *zap.Logger
	Repo    usagedomain.Repository
	Plans   *config.PlansHolder
	Clock   clock.Clock
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	repo    usagedomain.Repository
	plans   *config.PlansHolder
	clock   clock.Clock
	metrics *obsmetrics.Metrics
}

func NewService(p ServiceParam) usagedomain.Service {
	return &Service{
		log:     p.Log.Named("usage.service"),
		repo:    p.Repo,
		plans:   p.Plans,
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

func (s *Service) Evaluate(ctx context.Context, identity usagedomain.Identity, effective plan.Plan, memberSince time.Time) usagedomain.Decision {
	now := s.clock.Now()
	cfg := s.plans.Get()

	var decision usagedomain.Decision
	switch {
	case identity.Anonymous():
		decision = s.evaluateAnonymous(ctx, identity.IP, cfg, now)
	case effective.Paid():
		decision = s.evaluateRolling(ctx, identity, effective, cfg, memberSince, now)
	default:
		decision = s.evaluateFree(ctx, identity, cfg, now)
	}

	s.countDecision(string(effective), identity, decision)
	return decision
}

// evaluateAnonymous is a binary gate: one conversion per rolling 24h per
// IP, measured from the last write to the anonymous counter rather than
// a midnight boundary.
func (s *Service) evaluateAnonymous(ctx context.Context, ip string, cfg config.PlansConfig, now time.Time) usagedomain.Decision {
	limit := cfg.Anonymous.DailyPages
	decision := usagedomain.Decision{
		CanProcess: true,
		Limit:      limit,
		LimitType:  usagedomain.LimitDaily,
	}

	latest, err := s.repo.LatestAnonymous(ctx, ip)
	if err != nil {
		return s.failOpen("anonymous", ip, limit, err)
	}
	if latest == nil {
		return decision
	}

	if now.Sub(latest.UpdatedAt) < cooldownWindow {
		decision.CanProcess = false
		decision.PagesUsed = limit
		reset := latest.UpdatedAt.Add(cooldownWindow)
		decision.ResetAt = &reset
		return decision
	}

	// Backup check against the calendar-day counter in case the cooldown
	// timestamp lags a concurrent write.
	if latest.Date == usagedomain.DateKey(now) && latest.PagesProcessed >= limit {
		decision.CanProcess = false
		decision.PagesUsed = limit
		reset := nextMidnight(now)
		decision.ResetAt = &reset
	}
	return decision
}

// evaluateFree applies the same 24h-since-last-conversion gate as the
// anonymous tier but with the configured daily page allowance. While the
// cooldown is active the decision reports pagesUsed=limit so callers see
// a consistent blocked state even when the calendar-day counter is lower.
func (s *Service) evaluateFree(ctx context.Context, identity usagedomain.Identity, cfg config.PlansConfig, now time.Time) usagedomain.Decision {
	limit := cfg.Free.DailyPages
	decision := usagedomain.Decision{
		CanProcess: true,
		Limit:      limit,
		LimitType:  usagedomain.LimitDaily,
	}

	lastAt, err := s.repo.LastEventAt(ctx, identity.UserID)
	if err != nil {
		return s.failOpen("free", identity.IP, limit, err)
	}
	dailyPages, err := s.repo.DailyPages(ctx, identity.UserID, usagedomain.DateKey(now))
	if err != nil {
		return s.failOpen("free", identity.IP, limit, err)
	}

	if lastAt != nil && now.Sub(*lastAt) < cooldownWindow {
		decision.CanProcess = false
		decision.PagesUsed = limit
		reset := lastAt.Add(cooldownWindow)
		decision.ResetAt = &reset
		return decision
	}

	decision.PagesUsed = dailyPages
	if decision.PagesUsed >= limit {
		decision.CanProcess = false
		decision.PagesUsed = limit
		if decision.ResetAt == nil {
			reset := nextMidnight(now)
			decision.ResetAt = &reset
		}
	}
	return decision
}

// evaluateRolling sums event pages over the trailing 30 days. An event
// aged exactly 30 days still counts; one second older does not. ResetAt
// is populated only when the caller is blocked: 30 days past the oldest
// event in the window, or past memberSince when the window is empty.
func (s *Service) evaluateRolling(ctx context.Context, identity usagedomain.Identity, effective plan.Plan, cfg config.PlansConfig, memberSince time.Time, now time.Time) usagedomain.Decision {
	limit := plan.Limits(effective, cfg).MonthlyPages
	decision := usagedomain.Decision{
		Limit:     limit,
		LimitType: usagedomain.LimitMonthly,
	}

	since := now.Add(-rollingWindow)
	pages, oldest, err := s.repo.WindowTotals(ctx, identity.UserID, since)
	if err != nil {
		return s.failOpen(string(effective), identity.IP, limit, err)
	}

	decision.PagesUsed = pages
	decision.CanProcess = pages < limit
	if !decision.CanProcess {
		anchor := memberSince
		if oldest != nil {
			anchor = *oldest
		}
		reset := anchor.Add(rollingWindow)
		decision.ResetAt = &reset
	}
	return decision
}

// failOpen is the degraded-mode outcome for store read failures: allow
// with zero usage rather than block a legitimate conversion, and leave a
// loud trace for operators.
func (s *Service) failOpen(tier, ip string, limit int, err error) usagedomain.Decision {
	s.log.Warn("usage evaluation degraded, allowing request",
		zap.String("policy", "fail_open"),
		zap.String("tier", tier),
		zap.String("ip", ip),
		zap.Error(err),
	)
	return usagedomain.Decision{
		CanProcess: true,
		Limit:      limit,
		LimitType:  usagedomain.LimitDaily,
		Permissive: true,
	}
}

func (s *Service) Record(ctx context.Context, req usagedomain.RecordRequest) error {
	if req.PagesCount < 1 {
		return usagedomain.ErrInvalidPages
	}
	if req.Identity.Anonymous() && req.Identity.IP == "" {
		return usagedomain.ErrInvalidIdentity
	}

	now := s.clock.Now()
	date := usagedomain.DateKey(now)
	files := req.FilesCount
	if files <= 0 {
		files = 1
	}

	// Every write is attempted even when an earlier one fails. A dropped
	// secondary counter must not take back a conversion the user already
	// received.
	var errs []error
	if err := s.repo.IncrementDaily(ctx, req.Identity.UserID, date, req.PagesCount, files); err != nil {
		errs = append(errs, err)
		s.log.Error("daily counter upsert failed", zap.Error(err))
	}
	if err := s.repo.IncrementMonthly(ctx, req.Identity.UserID, now.Year(), int(now.Month()), req.PagesCount, files); err != nil {
		errs = append(errs, err)
		s.log.Error("monthly counter upsert failed", zap.Error(err))
	}
	if req.Identity.Anonymous() {
		if err := s.repo.IncrementAnonymous(ctx, req.Identity.IP, date, req.PagesCount, files); err != nil {
			errs = append(errs, err)
			s.log.Error("anonymous counter upsert failed", zap.Error(err))
		}
	}

	event := &usagedomain.ConversionEvent{
		UserID:            req.Identity.UserID,
		Filename:          req.Filename,
		PagesCount:        req.PagesCount,
		TransactionsCount: req.TransactionsCount,
		CreatedAt:         now,
	}
	if len(req.Metadata) > 0 {
		event.Metadata = datatypes.JSONMap(req.Metadata)
	}
	if err := s.repo.AppendEvent(ctx, event); err != nil {
		errs = append(errs, err)
		s.log.Error("conversion event append failed", zap.Error(err))
	}

	if s.metrics != nil {
		label := "user"
		if req.Identity.Anonymous() {
			label = "anonymous"
		}
		s.metrics.IncConversionRecorded(label)
	}
	return errors.Join(errs...)
}

func (s *Service) History(ctx context.Context, userID snowflake.ID, limit int) ([]usagedomain.ConversionEvent, error) {
	if userID == 0 {
		return nil, usagedomain.ErrInvalidIdentity
	}
	return s.repo.ListEvents(ctx, userID, limit)
}

func (s *Service) countDecision(planLabel string, identity usagedomain.Identity, d usagedomain.Decision) {
	if s.metrics == nil {
		return
	}
	if identity.Anonymous() {
		planLabel = "anonymous"
	}
	outcome := obsmetrics.OutcomeAllowed
	switch {
	case d.Permissive:
		outcome = obsmetrics.OutcomePermissive
	case !d.CanProcess:
		outcome = obsmetrics.OutcomeDenied
	}
	s.metrics.IncEntitlementDecision(planLabel, outcome)
}

func nextMidnight(now time.Time) time.Time {
	next := now.UTC().AddDate(0, 0, 1)
	return time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, time.UTC)
}
