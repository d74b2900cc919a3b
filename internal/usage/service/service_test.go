package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/extractolabs/conversor/internal/clock"
	"github.com/extractolabs/conversor/internal/config"
	"github.com/extractolabs/conversor/internal/plan"
	usagedomain "github.com/extractolabs/conversor/internal/usage/domain"
	usagerepo "github.com/extractolabs/conversor/internal/usage/repository"
)

func newTestService(t *testing.T, clk clock.Clock) (usagedomain.Service, usagedomain.Repository) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := db.AutoMigrate(
		&usagedomain.DailyUsage{},
		&usagedomain.MonthlyUsage{},
		&usagedomain.AnonymousUsage{},
		&usagedomain.ConversionEvent{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}

	repo := usagerepo.New(usagerepo.Params{DB: db, GenID: node, Clock: clk})
	svc := NewService(ServiceParam{
		Log:   zap.NewNop(),
		Repo:  repo,
		Plans: &config.PlansHolder{},
		Clock: clk,
	})
	return svc, repo
}

func TestRecordAccumulatesCounters(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC))
	svc, repo := newTestService(t, clk)
	ctx := context.Background()

	user := snowflake.ID(42)
	identity := usagedomain.Identity{UserID: user, IP: "203.0.113.9"}

	assert.NoError(t, svc.Record(ctx, usagedomain.RecordRequest{
		Identity:   identity,
		PagesCount: 2,
		Filename:   "statement-may.pdf",
	}))
	assert.NoError(t, svc.Record(ctx, usagedomain.RecordRequest{
		Identity:   identity,
		PagesCount: 3,
		Filename:   "statement-june.pdf",
	}))

	pages, err := repo.DailyPages(ctx, user, usagedomain.DateKey(clk.Now()))
	assert.NoError(t, err)
	assert.Equal(t, 5, pages)

	events, err := repo.ListEvents(ctx, user, 10)
	assert.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestRecordRejectsInvalidInput(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, clk)

	err := svc.Record(context.Background(), usagedomain.RecordRequest{
		Identity:   usagedomain.Identity{UserID: 1},
		PagesCount: 0,
	})
	assert.ErrorIs(t, err, usagedomain.ErrInvalidPages)

	err = svc.Record(context.Background(), usagedomain.RecordRequest{
		Identity:   usagedomain.Identity{},
		PagesCount: 1,
	})
	assert.ErrorIs(t, err, usagedomain.ErrInvalidIdentity)
}

func TestAnonymousGateIsBinary(t *testing.T) {
	start := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(start)
	svc, _ := newTestService(t, clk)
	ctx := context.Background()

	identity := usagedomain.Identity{IP: "198.51.100.7"}

	first := svc.Evaluate(ctx, identity, plan.PlanAnonymous, time.Time{})
	assert.True(t, first.CanProcess)
	assert.Equal(t, 0, first.PagesUsed)
	assert.Nil(t, first.ResetAt)

	assert.NoError(t, svc.Record(ctx, usagedomain.RecordRequest{
		Identity:   identity,
		PagesCount: 1,
		Filename:   "statement.pdf",
	}))

	blocked := svc.Evaluate(ctx, identity, plan.PlanAnonymous, time.Time{})
	assert.False(t, blocked.CanProcess)
	assert.Equal(t, blocked.Limit, blocked.PagesUsed)
	if assert.NotNil(t, blocked.ResetAt) {
		assert.Equal(t, clk.Now().Add(24*time.Hour), blocked.ResetAt.UTC())
	}

	// A different IP is unaffected.
	other := svc.Evaluate(ctx, usagedomain.Identity{IP: "198.51.100.8"}, plan.PlanAnonymous, time.Time{})
	assert.True(t, other.CanProcess)

	clk.Advance(24*time.Hour + time.Second)
	again := svc.Evaluate(ctx, identity, plan.PlanAnonymous, time.Time{})
	assert.True(t, again.CanProcess)
	assert.Equal(t, 0, again.PagesUsed)
}

func TestFreeCooldownReportsFullyConsumed(t *testing.T) {
	start := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(start)
	svc, _ := newTestService(t, clk)
	ctx := context.Background()

	identity := usagedomain.Identity{UserID: snowflake.ID(7), IP: "203.0.113.1"}

	open := svc.Evaluate(ctx, identity, plan.PlanFree, time.Time{})
	assert.True(t, open.CanProcess)
	assert.Equal(t, 0, open.PagesUsed)

	assert.NoError(t, svc.Record(ctx, usagedomain.RecordRequest{
		Identity:   identity,
		PagesCount: 1,
		Filename:   "statement.pdf",
	}))

	// One page recorded, but the cooldown presents the limit as consumed.
	blocked := svc.Evaluate(ctx, identity, plan.PlanFree, time.Time{})
	assert.False(t, blocked.CanProcess)
	assert.Equal(t, blocked.Limit, blocked.PagesUsed)
	if assert.NotNil(t, blocked.ResetAt) {
		assert.Equal(t, start.Add(24*time.Hour), blocked.ResetAt.UTC())
	}

	clk.Advance(25 * time.Hour)
	after := svc.Evaluate(ctx, identity, plan.PlanFree, time.Time{})
	assert.True(t, after.CanProcess)
	assert.Equal(t, 0, after.PagesUsed)
}

func TestRollingWindowBoundary(t *testing.T) {
	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(now)
	svc, repo := newTestService(t, clk)
	ctx := context.Background()

	user := snowflake.ID(99)
	memberSince := now.AddDate(0, -6, 0)

	// Exactly 30 days old: still inside the window.
	inside := &usagedomain.ConversionEvent{
		UserID:     user,
		Filename:   "edge-inside.pdf",
		PagesCount: 10,
		CreatedAt:  now.Add(-30 * 24 * time.Hour),
	}
	assert.NoError(t, repo.AppendEvent(ctx, inside))

	d := svc.Evaluate(ctx, proIdentity(user), plan.PlanPro, memberSince)
	assert.True(t, d.CanProcess)
	assert.Equal(t, 10, d.PagesUsed)
	assert.Nil(t, d.ResetAt)

	// One second older: expired out of the window.
	clk.Advance(time.Second)
	d = svc.Evaluate(ctx, proIdentity(user), plan.PlanPro, memberSince)
	assert.Equal(t, 0, d.PagesUsed)
}

func proIdentity(id snowflake.ID) usagedomain.Identity {
	return usagedomain.Identity{UserID: id, IP: "192.0.2.4"}
}

func TestRollingWindowBlocksAtLimit(t *testing.T) {
	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(now)
	svc, repo := newTestService(t, clk)
	ctx := context.Background()

	user := snowflake.ID(55)
	identity := usagedomain.Identity{UserID: user, IP: "192.0.2.5"}
	memberSince := now.AddDate(0, -2, 0)

	oldest := now.Add(-20 * 24 * time.Hour)
	assert.NoError(t, repo.AppendEvent(ctx, &usagedomain.ConversionEvent{
		UserID: user, Filename: "a.pdf", PagesCount: 70, CreatedAt: oldest,
	}))
	assert.NoError(t, repo.AppendEvent(ctx, &usagedomain.ConversionEvent{
		UserID: user, Filename: "b.pdf", PagesCount: 50, CreatedAt: now.Add(-time.Hour),
	}))

	d := svc.Evaluate(ctx, identity, plan.PlanPro, memberSince)
	assert.False(t, d.CanProcess)
	assert.Equal(t, 120, d.PagesUsed)
	if assert.NotNil(t, d.ResetAt) {
		assert.Equal(t, oldest.Add(30*24*time.Hour), d.ResetAt.UTC())
	}
}

func TestRollingWindowEmptyUsesMemberSince(t *testing.T) {
	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(now)
	svc, _ := newTestService(t, clk)

	// Premium with no events: allowed, and no reset time is advertised.
	d := svc.Evaluate(context.Background(), usagedomain.Identity{UserID: 3, IP: "192.0.2.6"}, plan.PlanPremium, now.AddDate(0, -1, 0))
	assert.True(t, d.CanProcess)
	assert.Equal(t, 0, d.PagesUsed)
	assert.Equal(t, 300, d.Limit)
	assert.Nil(t, d.ResetAt)
}

type failingRepo struct {
	usagedomain.Repository
}

func (failingRepo) LatestAnonymous(context.Context, string) (*usagedomain.AnonymousUsage, error) {
	return nil, assert.AnError
}

func (failingRepo) LastEventAt(context.Context, snowflake.ID) (*time.Time, error) {
	return nil, assert.AnError
}

func TestEvaluateFailsOpenOnStoreError(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC))
	svc := NewService(ServiceParam{
		Log:   zap.NewNop(),
		Repo:  failingRepo{},
		Plans: &config.PlansHolder{},
		Clock: clk,
	})

	d := svc.Evaluate(context.Background(), usagedomain.Identity{IP: "198.51.100.1"}, plan.PlanAnonymous, time.Time{})
	assert.True(t, d.CanProcess)
	assert.True(t, d.Permissive)
	assert.Equal(t, 0, d.PagesUsed)

	d = svc.Evaluate(context.Background(), usagedomain.Identity{UserID: 9, IP: "198.51.100.2"}, plan.PlanFree, time.Time{})
	assert.True(t, d.CanProcess)
	assert.True(t, d.Permissive)
}
