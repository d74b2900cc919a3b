// Package plan holds the tier vocabulary and the pure effective-plan resolver.
package plan

import (
	"strings"

	"github.com/extractolabs/conversor/internal/config"
)

// Plan is the purchased tier. PlanAnonymous is a pseudo-tier reported for
// unauthenticated identities; it is never stored.
type Plan string

const (
	PlanAnonymous Plan = "anonymous"
	PlanFree      Plan = "free"
	PlanPro       Plan = "pro"
	PlanPremium   Plan = "premium"
)

// SubscriptionStatus mirrors the processor's preapproval status values.
// StatusNone marks entitlements with no subscription recorded.
type SubscriptionStatus string

const (
	StatusNone       SubscriptionStatus = ""
	StatusAuthorized SubscriptionStatus = "authorized"
	StatusPaused     SubscriptionStatus = "paused"
	StatusCancelled  SubscriptionStatus = "cancelled"
	StatusPending    SubscriptionStatus = "pending"
)

// ParseStatus maps a raw processor status onto the closed enum. Unknown
// values are rejected rather than coerced.
func ParseStatus(raw string) (SubscriptionStatus, bool) {
	switch SubscriptionStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusAuthorized:
		return StatusAuthorized, true
	case StatusPaused:
		return StatusPaused, true
	case StatusCancelled:
		return StatusCancelled, true
	case StatusPending:
		return StatusPending, true
	default:
		return StatusNone, false
	}
}

func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanPremium:
		return true
	default:
		return false
	}
}

// Paid reports whether the plan meters against the rolling 30-day window.
func (p Plan) Paid() bool {
	return p == PlanPro || p == PlanPremium
}

// Limits returns the page allowance for the plan from the active config.
func Limits(p Plan, cfg config.PlansConfig) config.PlanLimits {
	switch p {
	case PlanPro:
		return cfg.Pro
	case PlanPremium:
		return cfg.Premium
	case PlanFree:
		return cfg.Free
	default:
		return cfg.Anonymous
	}
}
