package plan

import "time"

// SubscriptionFacts are the stored entitlement fields the resolver reads.
type SubscriptionFacts struct {
	Plan             Plan
	Status           SubscriptionStatus
	GracePeriodUntil *time.Time
}

// Resolution is the outcome of resolving a purchased plan against live
// subscription state.
type Resolution struct {
	EffectivePlan Plan
	Lapsed        bool
}

// Resolve derives the plan a user is entitled to right now. Pure and total:
// no I/O, safe to call on every request and against replicas. The purchased
// plan is never rewritten here; only the reconciler persists plan changes.
//
//   - free users are always free, whatever the subscription fields say
//   - an authorized subscription keeps the purchased plan
//   - a live grace window keeps the purchased plan through processor retries
//   - otherwise the user is served as free and flagged lapsed
func Resolve(facts SubscriptionFacts, now time.Time) Resolution {
	if facts.Plan == PlanFree || !facts.Plan.Valid() {
		return Resolution{EffectivePlan: PlanFree}
	}

	if facts.Status == StatusAuthorized {
		return Resolution{EffectivePlan: facts.Plan}
	}

	if facts.GracePeriodUntil != nil && facts.GracePeriodUntil.After(now) {
		return Resolution{EffectivePlan: facts.Plan}
	}

	return Resolution{EffectivePlan: PlanFree, Lapsed: true}
}
