// Package domain holds the subscription state-transition rules shared by
// the webhook and the poller.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"

	entdomain "github.com/extractolabs/conversor/internal/entitlement/domain"
	"github.com/extractolabs/conversor/internal/plan"
)

var (
	ErrNotLinked      = errors.New("subscription_not_linked")
	ErrNotAuthorized  = errors.New("subscription_not_authorized")
	ErrUnknownPlan    = errors.New("unknown_subscription_plan")
	ErrMissingID      = errors.New("missing_preapproval_id")
	ErrAlreadyLinked  = errors.New("subscription_linked_elsewhere")
	ErrNoSubscription = errors.New("no_subscription_on_file")
)

type Action string

const (
	ActionReactivated    Action = "reactivated"
	ActionGraceSet       Action = "grace_period_set"
	ActionStatusRecorded Action = "status_recorded"
)

// ApplyStatus folds an authoritative processor status into the
// entitlement row. Authorized reactivations clear any grace window.
// Paused and cancelled grant a fresh grace window only when none is
// active, so webhook retries never extend the deadline. Pending is
// recorded as-is.
func ApplyStatus(e *entdomain.UserEntitlement, status plan.SubscriptionStatus, now time.Time, grace time.Duration) Action {
	e.MPSubscriptionStatus = status
	stamp := now
	e.SubscriptionUpdatedAt = &stamp

	switch status {
	case plan.StatusAuthorized:
		e.GracePeriodUntil = nil
		return ActionReactivated
	case plan.StatusPaused, plan.StatusCancelled:
		if e.GracePeriodUntil == nil || !e.GracePeriodUntil.After(now) {
			until := now.Add(grace)
			e.GracePeriodUntil = &until
		}
		return ActionGraceSet
	default:
		return ActionStatusRecorded
	}
}

// Detail describes one applied poll update. Surfaced only outside
// production.
type Detail struct {
	UserID         snowflake.ID            `json:"userId"`
	SubscriptionID string                  `json:"mpId"`
	DBStatus       plan.SubscriptionStatus `json:"dbStatus"`
	MPStatus       plan.SubscriptionStatus `json:"mpStatus"`
	Action         Action                  `json:"action"`
}

// Summary is the poll run outcome.
type Summary struct {
	Checked int      `json:"checked"`
	Updated int      `json:"updated"`
	Errors  int      `json:"errors"`
	Details []Detail `json:"details,omitempty"`
}

// LinkResult reports a successful preapproval link.
type LinkResult struct {
	Plan           plan.Plan
	SubscriptionID string
}

type Service interface {
	// Reconcile re-fetches the authoritative status for one preapproval
	// and applies it to the linked entitlement. ErrNotLinked means no
	// local row references the id; callers decide whether that is fatal.
	Reconcile(ctx context.Context, preapprovalID string) error

	// PollAll walks every entitlement holding a subscription reference
	// and reconciles each one, isolating per-item failures.
	PollAll(ctx context.Context) (Summary, error)

	// Link attaches a verified, authorized preapproval to the user and
	// upgrades the purchased plan accordingly.
	Link(ctx context.Context, userID snowflake.ID, preapprovalID string) (LinkResult, error)

	// ChangePlan switches the purchased paid tier for a user whose
	// subscription is on file.
	ChangePlan(ctx context.Context, userID snowflake.ID, target plan.Plan) error
}
