package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/extractolabs/conversor/internal/clock"
	subdomain "github.com/extractolabs/conversor/internal/subscription/domain"
)

type stubSubscriptionSvc struct {
	subdomain.Service

	polls   int
	summary subdomain.Summary
	err     error
}

func (s *stubSubscriptionSvc) PollAll(ctx context.Context) (subdomain.Summary, error) {
	s.polls++
	if err := ctx.Err(); err != nil {
		return subdomain.Summary{}, err
	}
	return s.summary, s.err
}

func newTestScheduler(t *testing.T, svc subdomain.Service) *Scheduler {
	t.Helper()
	sched, err := New(Params{
		Log:             zap.NewNop(),
		SubscriptionSvc: svc,
		Clock:           clock.NewFakeClock(time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return sched
}

func TestRunOncePollsSubscriptions(t *testing.T) {
	svc := &stubSubscriptionSvc{summary: subdomain.Summary{Checked: 3, Updated: 1}}
	sched := newTestScheduler(t, svc)

	err := sched.RunOnce(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, svc.polls)
}

func TestRunOncePropagatesRunFailures(t *testing.T) {
	svc := &stubSubscriptionSvc{err: assert.AnError}
	sched := newTestScheduler(t, svc)

	err := sched.RunOnce(context.Background())

	assert.ErrorIs(t, err, assert.AnError)
}

func TestRunOnceSwallowsTimeouts(t *testing.T) {
	svc := &stubSubscriptionSvc{err: context.DeadlineExceeded}
	sched := newTestScheduler(t, svc)

	err := sched.RunOnce(context.Background())

	assert.NoError(t, err)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})

	assert.ErrorIs(t, err, ErrInvalidConfig)
}
