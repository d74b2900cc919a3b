package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/extractolabs/conversor/internal/clock"
	"github.com/extractolabs/conversor/internal/config"
	entdomain "github.com/extractolabs/conversor/internal/entitlement/domain"
	"github.com/extractolabs/conversor/internal/mercadopago"
	obsmetrics "github.com/extractolabs/conversor/internal/observability/metrics"
	"github.com/extractolabs/conversor/internal/plan"
	"github.com/extractolabs/conversor/internal/subscription/domain"
)

// perItemTimeout bounds each authoritative fetch during a poll run so
// one slow preapproval cannot stall the whole batch.
const perItemTimeout = 15 * time.Second

type ServiceParam struct {
	fx.In

	Log     *zap.Logger
	Config  config.Config
	Plans   *config.PlansHolder
	Repo    entdomain.Repository
	MP      mercadopago.Client
	Clock   clock.Clock
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	cfg     config.Config
	plans   *config.PlansHolder
	repo    entdomain.Repository
	mp      mercadopago.Client
	clock   clock.Clock
	metrics *obsmetrics.Metrics
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		log:     p.Log.Named("subscription.service"),
		cfg:     p.Config,
		plans:   p.Plans,
		repo:    p.Repo,
		mp:      p.MP,
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

func (s *Service) Reconcile(ctx context.Context, preapprovalID string) error {
	preapprovalID = strings.TrimSpace(preapprovalID)
	if preapprovalID == "" {
		return domain.ErrMissingID
	}

	row, err := s.repo.FindBySubscriptionID(ctx, preapprovalID)
	if err != nil {
		return err
	}
	if row == nil {
		return domain.ErrNotLinked
	}

	// The webhook payload is only a hint. Fetch the authoritative state
	// before touching the entitlement.
	pre, err := s.mp.GetPreapproval(ctx, preapprovalID)
	if err != nil {
		return err
	}

	action := domain.ApplyStatus(row, pre.Status, s.clock.Now(), s.plans.Get().GracePeriod())
	if err := s.repo.Update(ctx, row); err != nil {
		return err
	}

	s.log.Info("subscription reconciled",
		zap.Stringer("user_id", row.ID),
		zap.String("preapproval_id", preapprovalID),
		zap.String("status", string(pre.Status)),
		zap.String("action", string(action)),
	)
	return nil
}

func (s *Service) PollAll(ctx context.Context) (domain.Summary, error) {
	rows, err := s.repo.ListWithSubscription(ctx, 0)
	if err != nil {
		return domain.Summary{}, err
	}

	summary := domain.Summary{Checked: len(rows)}
	now := s.clock.Now()
	grace := s.plans.Get().GracePeriod()

	for i := range rows {
		row := &rows[i]
		if row.MPSubscriptionID == nil {
			continue
		}
		subID := *row.MPSubscriptionID

		status, err := s.fetchStatus(ctx, subID)
		if err != nil {
			summary.Errors++
			s.log.Warn("poll: preapproval fetch failed",
				zap.Stringer("user_id", row.ID),
				zap.String("preapproval_id", subID),
				zap.Error(err),
			)
			continue
		}

		// No discrepancy, nothing to write.
		if status == row.MPSubscriptionStatus {
			continue
		}

		dbStatus := row.MPSubscriptionStatus
		action := domain.ApplyStatus(row, status, now, grace)
		if err := s.repo.Update(ctx, row); err != nil {
			summary.Errors++
			s.log.Error("poll: entitlement update failed",
				zap.Stringer("user_id", row.ID),
				zap.Error(err),
			)
			continue
		}

		summary.Updated++
		summary.Details = append(summary.Details, domain.Detail{
			UserID:         row.ID,
			SubscriptionID: subID,
			DBStatus:       dbStatus,
			MPStatus:       status,
			Action:         action,
		})
	}

	if s.metrics != nil {
		s.metrics.ObserveReconcileRun(summary.Updated, summary.Errors)
	}
	s.log.Info("subscription poll completed",
		zap.Int("checked", summary.Checked),
		zap.Int("updated", summary.Updated),
		zap.Int("errors", summary.Errors),
	)
	return summary, nil
}

func (s *Service) fetchStatus(ctx context.Context, preapprovalID string) (plan.SubscriptionStatus, error) {
	itemCtx, cancel := context.WithTimeout(ctx, perItemTimeout)
	defer cancel()

	pre, err := s.mp.GetPreapproval(itemCtx, preapprovalID)
	if err != nil {
		return plan.StatusNone, err
	}
	return pre.Status, nil
}

func (s *Service) Link(ctx context.Context, userID snowflake.ID, preapprovalID string) (domain.LinkResult, error) {
	preapprovalID = strings.TrimSpace(preapprovalID)
	if preapprovalID == "" {
		return domain.LinkResult{}, domain.ErrMissingID
	}

	row, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return domain.LinkResult{}, err
	}
	if row == nil {
		return domain.LinkResult{}, entdomain.ErrNotFound
	}

	pre, err := s.mp.GetPreapproval(ctx, preapprovalID)
	if err != nil {
		return domain.LinkResult{}, err
	}
	if pre.Status != plan.StatusAuthorized {
		return domain.LinkResult{}, domain.ErrNotAuthorized
	}

	target, err := s.planForPreapprovalPlan(pre.PreapprovalPlanID)
	if err != nil {
		return domain.LinkResult{}, err
	}

	// Refuse to steal a preapproval already linked to another account.
	if other, err := s.repo.FindBySubscriptionID(ctx, preapprovalID); err != nil {
		return domain.LinkResult{}, err
	} else if other != nil && other.ID != userID {
		return domain.LinkResult{}, domain.ErrAlreadyLinked
	}

	now := s.clock.Now()
	row.Plan = target
	row.MPSubscriptionID = &pre.ID
	row.MPSubscriptionStatus = plan.StatusAuthorized
	row.GracePeriodUntil = nil
	row.SubscriptionUpdatedAt = &now
	if err := s.repo.Update(ctx, row); err != nil {
		return domain.LinkResult{}, err
	}

	s.log.Info("subscription linked",
		zap.Stringer("user_id", userID),
		zap.String("preapproval_id", pre.ID),
		zap.String("plan", string(target)),
	)
	return domain.LinkResult{Plan: target, SubscriptionID: pre.ID}, nil
}

func (s *Service) planForPreapprovalPlan(planID string) (plan.Plan, error) {
	if planID == "" {
		return plan.PlanFree, domain.ErrUnknownPlan
	}
	switch planID {
	case s.cfg.MPPremiumPlanID:
		return plan.PlanPremium, nil
	case s.cfg.MPProPlanID:
		return plan.PlanPro, nil
	default:
		s.log.Warn("unrecognized preapproval plan", zap.String("preapproval_plan_id", planID))
		return plan.PlanFree, domain.ErrUnknownPlan
	}
}

func (s *Service) ChangePlan(ctx context.Context, userID snowflake.ID, target plan.Plan) error {
	if !target.Paid() {
		return domain.ErrUnknownPlan
	}

	row, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if row == nil {
		return entdomain.ErrNotFound
	}
	if row.MPSubscriptionID == nil {
		return domain.ErrNoSubscription
	}

	if row.Plan == target {
		return nil
	}

	row.Plan = target
	now := s.clock.Now()
	row.SubscriptionUpdatedAt = &now
	if err := s.repo.Update(ctx, row); err != nil {
		return err
	}

	s.log.Info("plan changed",
		zap.Stringer("user_id", userID),
		zap.String("plan", string(target)),
	)
	return nil
}
