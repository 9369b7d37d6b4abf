package entitlements

import (
	"strings"
	"time"

	"github.com/mhartwig/shelfmark/app/models"
)

type Plan string

const (
	PlanFree     Plan = "free"
	PlanExplorer Plan = "explorer"
	PlanTraveler Plan = "traveler"
	PlanDevourer Plan = "devourer"
)

// Limits are the per-plan allowances consumed by the book/shelf controllers.
type Limits struct {
	MaxBooks        int
	MaxShelves      int
	CanPostUpdates  bool
	CanShareShelves bool
}

// LimitsFor returns the allowances of a plan. Free tier gets a small shelf;
// every paid tier unlocks the community feed.
func LimitsFor(plan Plan) Limits {
	switch plan {
	case PlanDevourer:
		return Limits{MaxBooks: -1, MaxShelves: -1, CanPostUpdates: true, CanShareShelves: true}
	case PlanTraveler:
		return Limits{MaxBooks: 2000, MaxShelves: 50, CanPostUpdates: true, CanShareShelves: true}
	case PlanExplorer:
		return Limits{MaxBooks: 500, MaxShelves: 15, CanPostUpdates: true, CanShareShelves: true}
	default:
		return Limits{MaxBooks: 100, MaxShelves: 3, CanPostUpdates: false, CanShareShelves: false}
	}
}

// Normalize maps a raw plan column value to a known plan, defaulting to free.
func Normalize(raw string) Plan {
	switch Plan(strings.ToLower(strings.TrimSpace(raw))) {
	case PlanExplorer:
		return PlanExplorer
	case PlanTraveler:
		return PlanTraveler
	case PlanDevourer:
		return PlanDevourer
	default:
		return PlanFree
	}
}

// EffectiveLimits computes the allowances for a user right now. A lapsed
// subscription falls back to the free tier even while the plan column still
// names a paid plan.
func EffectiveLimits(u *models.User, now time.Time) Limits {
	if u == nil || !u.HasActiveSubscription(now) {
		return LimitsFor(PlanFree)
	}
	return LimitsFor(Normalize(u.Plan))
}

// WithinLimit reports whether adding one more item stays inside the limit.
// A negative limit means unlimited.
func WithinLimit(limit, current int) bool {
	return limit < 0 || current < limit
}
