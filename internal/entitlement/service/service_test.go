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
	"github.com/extractolabs/conversor/internal/entitlement/domain"
	entrepo "github.com/extractolabs/conversor/internal/entitlement/repository"
	"github.com/extractolabs/conversor/internal/plan"
	usagedomain "github.com/extractolabs/conversor/internal/usage/domain"
	usagerepo "github.com/extractolabs/conversor/internal/usage/repository"
	usageservice "github.com/extractolabs/conversor/internal/usage/service"
)

type fixture struct {
	svc   domain.Service
	repo  domain.Repository
	usage usagedomain.Service
	clk   *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.UserEntitlement{},
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

	clk := clock.NewFakeClock(time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC))
	usage := usageservice.NewService(usageservice.ServiceParam{
		Log:   zap.NewNop(),
		Repo:  usagerepo.New(usagerepo.Params{DB: db, GenID: node, Clock: clk}),
		Plans: &config.PlansHolder{},
		Clock: clk,
	})
	repo := entrepo.New(entrepo.Params{DB: db, Clock: clk})
	svc := NewService(ServiceParam{
		Log:   zap.NewNop(),
		Repo:  repo,
		Usage: usage,
		Clock: clk,
	})
	return &fixture{svc: svc, repo: repo, usage: usage, clk: clk}
}

func TestEnsureCreatesFreeRowOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Ensure(ctx, snowflake.ID(10), "Ana@Example.COM")
	assert.NoError(t, err)
	assert.Equal(t, plan.PlanFree, created.Plan)
	assert.Equal(t, "ana@example.com", created.Email)

	again, err := f.svc.Ensure(ctx, snowflake.ID(10), "ana@example.com")
	assert.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)

	_, err = f.svc.Ensure(ctx, snowflake.ID(11), "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)
}

func TestCheckAnonymousUsesIPGate(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Check(context.Background(), 0, "198.51.100.20")
	assert.NoError(t, err)
	assert.Equal(t, plan.PlanAnonymous, res.Plan)
	assert.True(t, res.Decision.CanProcess)
	assert.Equal(t, 1, res.Decision.Limit)
}

func TestCheckUnknownUserIsFree(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Check(context.Background(), snowflake.ID(999), "203.0.113.2")
	assert.NoError(t, err)
	assert.Equal(t, plan.PlanFree, res.Plan)
	assert.False(t, res.SubscriptionLapsed)
}

func TestCheckLapsedDowngradesWithoutPersisting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	subID := "sub-123"
	row := &domain.UserEntitlement{
		ID:                   snowflake.ID(20),
		Email:                "pro@example.com",
		Plan:                 plan.PlanPro,
		MPSubscriptionID:     &subID,
		MPSubscriptionStatus: plan.StatusCancelled,
	}
	assert.NoError(t, f.repo.Create(ctx, row))

	res, err := f.svc.Check(ctx, row.ID, "203.0.113.3")
	assert.NoError(t, err)
	assert.Equal(t, plan.PlanFree, res.Plan)
	assert.True(t, res.SubscriptionLapsed)

	// The purchased plan stays untouched in storage.
	stored, err := f.repo.FindByID(ctx, row.ID)
	assert.NoError(t, err)
	assert.Equal(t, plan.PlanPro, stored.Plan)
}

func TestCheckGraceKeepsPaidPlan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	grace := f.clk.Now().Add(48 * time.Hour)
	subID := "sub-456"
	row := &domain.UserEntitlement{
		ID:                   snowflake.ID(21),
		Email:                "premium@example.com",
		Plan:                 plan.PlanPremium,
		MPSubscriptionID:     &subID,
		MPSubscriptionStatus: plan.StatusPaused,
		GracePeriodUntil:     &grace,
	}
	assert.NoError(t, f.repo.Create(ctx, row))

	res, err := f.svc.Check(ctx, row.ID, "203.0.113.4")
	assert.NoError(t, err)
	assert.Equal(t, plan.PlanPremium, res.Plan)
	assert.False(t, res.SubscriptionLapsed)
	assert.Equal(t, 300, res.Decision.Limit)

	// Past the grace window the same row resolves to free.
	f.clk.Advance(72 * time.Hour)
	res, err = f.svc.Check(ctx, row.ID, "203.0.113.4")
	assert.NoError(t, err)
	assert.Equal(t, plan.PlanFree, res.Plan)
	assert.True(t, res.SubscriptionLapsed)
}
