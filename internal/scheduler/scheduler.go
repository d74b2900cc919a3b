// Package scheduler runs the periodic subscription reconcile loop. It is
// the in-process counterpart of the authenticated cron endpoint, for
// deployments without an external cron trigger.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/extractolabs/conversor/internal/clock"
	subdomain "github.com/extractolabs/conversor/internal/subscription/domain"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependencies")

type Params struct {
	fx.In

	Log             *zap.Logger
	SubscriptionSvc subdomain.Service
	Clock           clock.Clock
	Config          Config `optional:"true"`
}

type Scheduler struct {
	log             *zap.Logger
	cfg             Config
	clock           clock.Clock
	subscriptionSvc subdomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.SubscriptionSvc == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:             p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:             p.Config.withDefaults(),
		clock:           p.Clock,
		subscriptionSvc: p.SubscriptionSvc,
	}, nil
}

// RunOnce executes a single reconcile pass. Per-item failures are
// already isolated inside PollAll; only run-level failures propagate.
func (s *Scheduler) RunOnce(parent context.Context) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	summary, err := s.subscriptionSvc.PollAll(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			s.log.Warn("reconcile run timed out",
				zap.Duration("timeout", s.cfg.JobTimeout),
				zap.Error(err),
			)
			return nil
		}
		return err
	}

	s.log.Info("reconcile run finished",
		zap.Int("checked", summary.Checked),
		zap.Int("updated", summary.Updated),
		zap.Int("errors", summary.Errors),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("reconcile run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
