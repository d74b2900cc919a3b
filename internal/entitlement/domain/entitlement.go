// Package domain defines the per-user entitlement record and the gateway
// contract that answers "what can this caller do right now".
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/extractolabs/conversor/internal/plan"
	usagedomain "github.com/extractolabs/conversor/internal/usage/domain"
)

var (
	ErrNotFound     = errors.New("entitlement_not_found")
	ErrInvalidPlan  = errors.New("invalid_plan")
	ErrInvalidEmail = errors.New("invalid_email")
)

// UserEntitlement is the single row of billing truth per registered user.
// Plan is the purchased tier and stays sticky until the user changes it;
// the effective tier is derived on read and never written back here by
// the resolver. Only the reconciler and the explicit link/change-plan
// operations mutate subscription fields.
type UserEntitlement struct {
	ID                    snowflake.ID            `gorm:"primaryKey"`
	Email                 string                  `gorm:"type:varchar(255);not null;uniqueIndex:ux_entitlements_email"`
	Plan                  plan.Plan               `gorm:"type:varchar(16);not null;default:free"`
	MPSubscriptionID      *string                 `gorm:"type:varchar(64);column:mp_subscription_id"`
	MPSubscriptionStatus  plan.SubscriptionStatus `gorm:"type:varchar(16);column:mp_subscription_status"`
	GracePeriodUntil      *time.Time
	SubscriptionUpdatedAt *time.Time
	CreatedAt             time.Time `gorm:"not null"`
	UpdatedAt             time.Time `gorm:"not null"`
}

func (UserEntitlement) TableName() string { return "user_entitlements" }

// Facts extracts the resolver inputs from the stored row.
func (e *UserEntitlement) Facts() plan.SubscriptionFacts {
	return plan.SubscriptionFacts{
		Plan:             e.Plan,
		Status:           e.MPSubscriptionStatus,
		GracePeriodUntil: e.GracePeriodUntil,
	}
}

// CheckResult is the gateway verdict: the effective tier, whether the
// purchased plan is currently lapsed, and the usage decision under that
// tier.
type CheckResult struct {
	Plan               plan.Plan
	SubscriptionLapsed bool
	Decision           usagedomain.Decision
}

type Repository interface {
	FindByID(ctx context.Context, id snowflake.ID) (*UserEntitlement, error)
	FindByEmail(ctx context.Context, email string) (*UserEntitlement, error)
	// FindBySubscriptionID locates the row holding the external
	// subscription reference, or nil when unknown.
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (*UserEntitlement, error)
	// ListWithSubscription returns rows with a non-null subscription id,
	// ordered by id, up to limit.
	ListWithSubscription(ctx context.Context, limit int) ([]UserEntitlement, error)
	Create(ctx context.Context, entitlement *UserEntitlement) error
	Update(ctx context.Context, entitlement *UserEntitlement) error
}

type Service interface {
	// Check resolves the caller's effective plan and evaluates the usage
	// window for it. Anonymous callers (userID 0) are gated purely by IP.
	Check(ctx context.Context, userID snowflake.ID, ip string) (CheckResult, error)

	// Ensure returns the user's entitlement row, creating a free-plan row
	// on first sight. Safe to call on every authenticated request.
	Ensure(ctx context.Context, userID snowflake.ID, email string) (*UserEntitlement, error)

	Get(ctx context.Context, userID snowflake.ID) (*UserEntitlement, error)
}
